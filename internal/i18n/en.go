package i18n

// EnMessages English message catalog
var EnMessages = map[string]string{
	// Errors - per-operation fallbacks when the server gives no detail
	"error.login":        "Login failed. Check your email and password.",
	"error.register":     "Registration failed. Please try again.",
	"error.history":      "Failed to load predictions",
	"error.upload":       "Failed to upload video. Please try again.",
	"error.me":           "Could not load your profile",
	"error.logout":       "Logout failed",
	"error.network":      "Could not reach the server. Check your connection and try again.",
	"error.unauthorized": "Your session has expired. Please log in again.",
	"error.generic":      "Something went wrong",

	// Validation
	"validation.email":            "Please enter a valid email",
	"validation.password":         "Password is required",
	"validation.password_confirm": "Passwords do not match",
	"validation.name":             "Name is required",
	"validation.duration":         "The video needs to be at least %s long",

	// Prompts
	"prompt.email":            "E-mail: ",
	"prompt.name":             "Name: ",
	"prompt.password":         "Password: ",
	"prompt.password_confirm": "Confirm Password: ",

	// Auth
	"auth.logged_in":       "Logged in as %s",
	"auth.logged_out":      "Logged out",
	"auth.registered":      "Account created for %s. You can now log in.",
	"auth.registered_in":   "Account created. Logged in as %s",
	"auth.not_logged_in":   "Not logged in. Run `vidpredict login` first.",
	"auth.session_expired": "Session cleared by the server",

	// Profile
	"me.id":    "ID",
	"me.email": "E-mail",
	"me.name":  "Name",

	// History
	"history.title":   "Prediction history",
	"history.empty":   "No predictions found",
	"history.loading": "Loading...",
	"history.more":    "More results available: /more or --page %d",
	"history.end":     "No more predictions",
	"history.offline": "Offline: showing %d cached predictions",
	"history.count":   "%d predictions",

	// Upload
	"upload.uploading": "Uploading video...",
	"upload.success":   "Video uploaded successfully!",
	"upload.result":    "Prediction: %s",

	// Browser (TUI)
	"browser.detail":    "Prediction",
	"browser.created":   "Created",
	"browser.signedout": "Signed out",
	"keys.quit":         "q quit",
	"keys.refresh":      "r refresh",
	"keys.open":         "enter details",
	"keys.back":         "esc back",
	"keys.more":         "↓ load more",

	// Shell
	"shell.welcome":   "vidpredict shell. Type /help for commands.",
	"shell.unknown":   "Unknown command: %s",
	"shell.usage":     "Usage: %s",
	"shell.help":      "Commands: /login [email]  /register  /me [refresh]  /history  /more  /predict FILE [duration]  /logout  /help  /exit",
	"shell.bye":       "Bye",
	"shell.no_cursor": "Run /history first",

	// Config
	"config.created": "Created %s",
	"config.exists":  "%s already exists",
	"config.api_set": "API base URL set to %s in %s",

	// Dev server
	"devserver.listening": "Dev API listening on %s",
}
