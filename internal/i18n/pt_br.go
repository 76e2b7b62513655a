package i18n

// PtBRMessages Brazilian Portuguese message catalog
var PtBRMessages = map[string]string{
	"error.login":        "Falha ao fazer login. Verifique seu e-mail e senha.",
	"error.register":     "Falha ao registrar. Tente novamente.",
	"error.history":      "Falha ao carregar as previsões",
	"error.upload":       "Falha ao enviar o vídeo. Tente novamente.",
	"error.me":           "Falha ao obter o usuário atual",
	"error.logout":       "Falha ao sair",
	"error.network":      "Não foi possível conectar ao servidor. Verifique sua conexão e tente novamente.",
	"error.unauthorized": "Sua sessão expirou. Faça login novamente.",
	"error.generic":      "Algo deu errado",

	"validation.email":            "Digite um e-mail válido",
	"validation.password":         "A senha é obrigatória",
	"validation.password_confirm": "As senhas não coincidem",
	"validation.name":             "O nome é obrigatório",
	"validation.duration":         "O vídeo precisa ter pelo menos %s",

	"prompt.email":            "E-mail: ",
	"prompt.name":             "Nome: ",
	"prompt.password":         "Senha: ",
	"prompt.password_confirm": "Confirmar senha: ",

	"auth.logged_in":       "Conectado como %s",
	"auth.logged_out":      "Sessão encerrada",
	"auth.registered":      "Conta criada para %s. Agora você pode fazer login.",
	"auth.registered_in":   "Conta criada. Conectado como %s",
	"auth.not_logged_in":   "Você não está conectado. Execute `vidpredict login` primeiro.",
	"auth.session_expired": "Sessão encerrada pelo servidor",

	"me.id":    "ID",
	"me.email": "E-mail",
	"me.name":  "Nome",

	"history.title":   "Histórico de previsões",
	"history.empty":   "Nenhuma previsão encontrada",
	"history.loading": "Carregando...",
	"history.more":    "Há mais resultados: /more ou --page %d",
	"history.end":     "Não há mais previsões",
	"history.offline": "Offline: exibindo %d previsões em cache",
	"history.count":   "%d previsões",

	"upload.uploading": "Enviando vídeo...",
	"upload.success":   "Vídeo enviado com sucesso!",
	"upload.result":    "Previsão: %s",

	"browser.detail":    "Previsão",
	"browser.created":   "Criado em",
	"browser.signedout": "Desconectado",
	"keys.quit":         "q sair",
	"keys.refresh":      "r recarregar",
	"keys.open":         "enter detalhes",
	"keys.back":         "esc voltar",
	"keys.more":         "↓ carregar mais",

	"shell.welcome":   "Shell do vidpredict. Digite /help para ver os comandos.",
	"shell.unknown":   "Comando desconhecido: %s",
	"shell.usage":     "Uso: %s",
	"shell.help":      "Comandos: /login [email]  /register  /me [refresh]  /history  /more  /predict ARQUIVO [duração]  /logout  /help  /exit",
	"shell.bye":       "Até logo",
	"shell.no_cursor": "Execute /history primeiro",

	"config.created": "%s criado",
	"config.exists":  "%s já existe",
	"config.api_set": "URL da API definida como %s em %s",

	"devserver.listening": "API de desenvolvimento ouvindo em %s",
}
