package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type APIConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutMS      int    `json:"timeout_ms"`
	UserAgent      string `json:"user_agent"`
	RevokeOnLogout bool   `json:"revoke_on_logout"`
}

type HistoryConfig struct {
	PageSize int `json:"page_size"`
}

type UploadConfig struct {
	MaxBytes       int64 `json:"max_bytes"`
	MinDurationSec int   `json:"min_duration_sec"`
}

type StorageConfig struct {
	BaseDir       string `json:"base_dir"`
	Backend       string `json:"backend"`
	LogMaxMB      int    `json:"log_max_mb"`
	LogLevel      string `json:"log_level"`
	CacheTTLHours int    `json:"cache_ttl_hours"`
}

type UIConfig struct {
	Locale string `json:"locale"`
}

type Config struct {
	API     APIConfig     `json:"api"`
	History HistoryConfig `json:"history"`
	Upload  UploadConfig  `json:"upload"`
	Storage StorageConfig `json:"storage"`
	UI      UIConfig      `json:"ui"`
}

type fileAPIConfig struct {
	BaseURL        *string `json:"base_url"`
	TimeoutMS      *int    `json:"timeout_ms"`
	UserAgent      *string `json:"user_agent"`
	RevokeOnLogout *bool   `json:"revoke_on_logout"`
}

type fileConfig struct {
	API     *fileAPIConfig `json:"api"`
	History *HistoryConfig `json:"history"`
	Upload  *UploadConfig  `json:"upload"`
	Storage *StorageConfig `json:"storage"`
	UI      *UIConfig      `json:"ui"`
}

func Default() Config {
	return Config{
		API: APIConfig{
			BaseURL:   DefaultAPIBaseURL,
			TimeoutMS: DefaultAPITimeoutMS,
			UserAgent: DefaultUserAgent,
		},
		History: HistoryConfig{
			PageSize: DefaultHistoryPageSize,
		},
		Upload: UploadConfig{
			MaxBytes:       DefaultUploadMaxBytes,
			MinDurationSec: DefaultUploadMinDurationSec,
		},
		Storage: StorageConfig{
			BaseDir:       "~/.vidpredict",
			Backend:       BackendSQLite,
			LogMaxMB:      20,
			LogLevel:      "info",
			CacheTTLHours: 168,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("VIDPREDICT_CONFIG_PATH")); envPath != "" && resolvedPath == "" {
		resolvedPath = envPath
	}
	if resolvedPath == "" {
		resolvedPath = findProjectConfigPath()
	}
	if err := mergeFromFile(&cfg, resolvedPath); err != nil {
		return Config{}, err
	}

	if err := normalize(&cfg); err != nil {
		return Config{}, err
	}
	return applyEnv(cfg)
}

func globalConfigPaths() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".vidpredict", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"vidpredict.config.json",
		".vidpredict/config.json",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func mergeFromFile(cfg *Config, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}

	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("expand config path %q: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %q: %w", resolved, err)
	}

	cleaned := stripJSONComments(data)
	var fileCfg fileConfig
	if err := json.Unmarshal(cleaned, &fileCfg); err != nil {
		return fmt.Errorf("parse config %q: %w", resolved, err)
	}
	applyFileConfig(cfg, fileCfg)
	return nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.API != nil {
		if fc.API.BaseURL != nil && strings.TrimSpace(*fc.API.BaseURL) != "" {
			cfg.API.BaseURL = *fc.API.BaseURL
		}
		if fc.API.TimeoutMS != nil && *fc.API.TimeoutMS > 0 {
			cfg.API.TimeoutMS = *fc.API.TimeoutMS
		}
		if fc.API.UserAgent != nil && strings.TrimSpace(*fc.API.UserAgent) != "" {
			cfg.API.UserAgent = *fc.API.UserAgent
		}
		if fc.API.RevokeOnLogout != nil {
			cfg.API.RevokeOnLogout = *fc.API.RevokeOnLogout
		}
	}
	if fc.History != nil && fc.History.PageSize > 0 {
		cfg.History.PageSize = fc.History.PageSize
	}
	if fc.Upload != nil {
		if fc.Upload.MaxBytes > 0 {
			cfg.Upload.MaxBytes = fc.Upload.MaxBytes
		}
		if fc.Upload.MinDurationSec > 0 {
			cfg.Upload.MinDurationSec = fc.Upload.MinDurationSec
		}
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
	if fc.UI != nil && strings.TrimSpace(fc.UI.Locale) != "" {
		cfg.UI.Locale = fc.UI.Locale
	}
}

func mergeStorage(base StorageConfig, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.BaseDir) != "" {
		base.BaseDir = override.BaseDir
	}
	if strings.TrimSpace(override.Backend) != "" {
		base.Backend = override.Backend
	}
	if override.LogMaxMB > 0 {
		base.LogMaxMB = override.LogMaxMB
	}
	if strings.TrimSpace(override.LogLevel) != "" {
		base.LogLevel = override.LogLevel
	}
	if override.CacheTTLHours > 0 {
		base.CacheTTLHours = override.CacheTTLHours
	}
	return base
}

func normalize(cfg *Config) error {
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultAPIBaseURL
	}
	if cfg.API.TimeoutMS <= 0 {
		cfg.API.TimeoutMS = DefaultAPITimeoutMS
	}
	if strings.TrimSpace(cfg.API.UserAgent) == "" {
		cfg.API.UserAgent = DefaultUserAgent
	}

	if cfg.History.PageSize <= 0 {
		cfg.History.PageSize = DefaultHistoryPageSize
	}
	if cfg.History.PageSize > MaxHistoryPageSize {
		cfg.History.PageSize = MaxHistoryPageSize
	}

	if cfg.Upload.MaxBytes <= 0 {
		cfg.Upload.MaxBytes = DefaultUploadMaxBytes
	}
	if cfg.Upload.MinDurationSec <= 0 {
		cfg.Upload.MinDurationSec = DefaultUploadMinDurationSec
	}

	if strings.TrimSpace(cfg.Storage.BaseDir) == "" {
		cfg.Storage.BaseDir = Default().Storage.BaseDir
	}
	storageDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return err
	}
	cfg.Storage.BaseDir = storageDir

	backend := strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
	switch backend {
	case BackendSQLite, BackendFile:
		cfg.Storage.Backend = backend
	case "":
		cfg.Storage.Backend = BackendSQLite
	default:
		return fmt.Errorf("unknown storage backend %q (want %q or %q)", cfg.Storage.Backend, BackendSQLite, BackendFile)
	}
	if cfg.Storage.LogMaxMB <= 0 {
		cfg.Storage.LogMaxMB = Default().Storage.LogMaxMB
	}
	cfg.Storage.LogLevel = strings.ToLower(strings.TrimSpace(cfg.Storage.LogLevel))
	if cfg.Storage.LogLevel == "" {
		cfg.Storage.LogLevel = Default().Storage.LogLevel
	}
	if cfg.Storage.CacheTTLHours <= 0 {
		cfg.Storage.CacheTTLHours = Default().Storage.CacheTTLHours
	}

	cfg.UI.Locale = strings.TrimSpace(cfg.UI.Locale)
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("VIDPREDICT_API_URL")); v != "" {
		cfg.API.BaseURL = v
	} else if v := strings.TrimSpace(os.Getenv("EXPO_PUBLIC_API_URL")); v != "" {
		cfg.API.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("VIDPREDICT_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid VIDPREDICT_TIMEOUT_MS: %q", v)
		}
		cfg.API.TimeoutMS = n
	}
	if v := strings.TrimSpace(os.Getenv("VIDPREDICT_HOME")); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("VIDPREDICT_LANG")); v != "" {
		cfg.UI.Locale = v
	}
	if v := strings.TrimSpace(os.Getenv("VIDPREDICT_LOG_LEVEL")); v != "" {
		cfg.Storage.LogLevel = v
	}

	return cfg, normalize(&cfg)
}

// SessionFile is the JSON session path used by the file backend.
func (c Config) SessionFile() string {
	return filepath.Join(c.Storage.BaseDir, "session.json")
}

// DatabaseFile is the SQLite database path used by the sqlite backend.
func (c Config) DatabaseFile() string {
	return filepath.Join(c.Storage.BaseDir, "vidpredict.db")
}

func (c Config) LogsDir() string {
	return filepath.Join(c.Storage.BaseDir, "logs")
}

// CacheTTL is how long cached history pages stay valid.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Storage.CacheTTLHours) * time.Hour
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.API.TimeoutMS) * time.Millisecond
}

func (c Config) MinDuration() time.Duration {
	return time.Duration(c.Upload.MinDurationSec) * time.Second
}

func (c Config) HistoryFile() string {
	return filepath.Join(c.Storage.BaseDir, "shell.history")
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		if path == "~" {
			path = home
		} else {
			path = filepath.Join(home, strings.TrimPrefix(path, "~/"))
		}
	}
	return filepath.Abs(path)
}

func stripJSONComments(data []byte) []byte {
	const (
		stateNormal = iota
		stateString
		stateLineComment
		stateBlockComment
	)

	state := stateNormal
	escaped := false
	out := bytes.Buffer{}

	for i := 0; i < len(data); i++ {
		c := data[i]
		next := byte(0)
		if i+1 < len(data) {
			next = data[i+1]
		}

		switch state {
		case stateNormal:
			if c == '"' {
				state = stateString
				out.WriteByte(c)
				continue
			}
			if c == '/' && next == '/' {
				state = stateLineComment
				i++
				continue
			}
			if c == '/' && next == '*' {
				state = stateBlockComment
				i++
				continue
			}
			out.WriteByte(c)
		case stateString:
			out.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			if c == '\\' {
				escaped = true
				continue
			}
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
				out.WriteByte(c)
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return out.Bytes()
}
