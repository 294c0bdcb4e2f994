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
)

type ServerConfig struct {
	BaseURL   string `json:"base_url"`
	TimeoutMS int    `json:"timeout_ms"`
}

type StorageConfig struct {
	BaseDir  string `json:"base_dir"`
	LogMaxMB int    `json:"log_max_mb"`
}

type SyncConfig struct {
	ChatIntervalMS          int `json:"chat_interval_ms"`
	NotificationsIntervalMS int `json:"notifications_interval_ms"`
	DashboardIntervalMS     int `json:"dashboard_interval_ms"`
}

type UIConfig struct {
	// Plain 以行式 REPL 运行，不启动全屏界面。
	// Plain runs the line-based REPL instead of the full-screen UI.
	Plain bool `json:"plain"`
	// Theme 当前仅支持 dark / only "dark" today.
	Theme string `json:"theme"`
}

type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Sync    SyncConfig    `json:"sync"`
	UI      UIConfig      `json:"ui"`
}

type fileUIConfig struct {
	Plain *bool   `json:"plain"`
	Theme *string `json:"theme"`
}

type fileConfig struct {
	Server  *ServerConfig  `json:"server"`
	Storage *StorageConfig `json:"storage"`
	Sync    *SyncConfig    `json:"sync"`
	UI      *fileUIConfig  `json:"ui"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			BaseURL:   "http://localhost:8000/api",
			TimeoutMS: 30000,
		},
		Storage: StorageConfig{
			BaseDir:  "~/.refind",
			LogMaxMB: 20,
		},
		Sync: SyncConfig{
			ChatIntervalMS:          3000,
			NotificationsIntervalMS: 15000,
			DashboardIntervalMS:     30000,
		},
		UI: UIConfig{
			Plain: false,
			Theme: "dark",
		},
	}
}

// Load 依次合并默认值、全局配置、项目配置与环境变量
// Load merges defaults, the global config file, an explicit or project-level
// config file, then environment overrides, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	for _, globalPath := range globalConfigPaths() {
		if err := mergeFromFile(&cfg, globalPath); err != nil {
			return Config{}, err
		}
	}

	resolvedPath := strings.TrimSpace(path)
	if envPath := strings.TrimSpace(os.Getenv("REFIND_CONFIG_PATH")); envPath != "" {
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
	return []string{filepath.Join(home, ".refind", "config.json")}
}

func findProjectConfigPath() string {
	candidates := []string{
		"refind.config.json",
		".refind/config.json",
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
	if fc.Server != nil {
		cfg.Server = mergeServer(cfg.Server, *fc.Server)
	}
	if fc.Storage != nil {
		cfg.Storage = mergeStorage(cfg.Storage, *fc.Storage)
	}
	if fc.Sync != nil {
		cfg.Sync = mergeSync(cfg.Sync, *fc.Sync)
	}
	if fc.UI != nil {
		if fc.UI.Plain != nil {
			cfg.UI.Plain = *fc.UI.Plain
		}
		if fc.UI.Theme != nil && strings.TrimSpace(*fc.UI.Theme) != "" {
			cfg.UI.Theme = *fc.UI.Theme
		}
	}
}

func mergeServer(base ServerConfig, override ServerConfig) ServerConfig {
	if strings.TrimSpace(override.BaseURL) != "" {
		base.BaseURL = override.BaseURL
	}
	if override.TimeoutMS > 0 {
		base.TimeoutMS = override.TimeoutMS
	}
	return base
}

func mergeStorage(base StorageConfig, override StorageConfig) StorageConfig {
	if strings.TrimSpace(override.BaseDir) != "" {
		base.BaseDir = override.BaseDir
	}
	if override.LogMaxMB > 0 {
		base.LogMaxMB = override.LogMaxMB
	}
	return base
}

func mergeSync(base SyncConfig, override SyncConfig) SyncConfig {
	if override.ChatIntervalMS > 0 {
		base.ChatIntervalMS = override.ChatIntervalMS
	}
	if override.NotificationsIntervalMS > 0 {
		base.NotificationsIntervalMS = override.NotificationsIntervalMS
	}
	if override.DashboardIntervalMS > 0 {
		base.DashboardIntervalMS = override.DashboardIntervalMS
	}
	return base
}

func normalize(cfg *Config) error {
	def := Default()
	if strings.TrimSpace(cfg.Server.BaseURL) == "" {
		cfg.Server.BaseURL = def.Server.BaseURL
	}
	cfg.Server.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Server.BaseURL), "/")
	if cfg.Server.TimeoutMS <= 0 {
		cfg.Server.TimeoutMS = def.Server.TimeoutMS
	}

	if cfg.Sync.ChatIntervalMS <= 0 {
		cfg.Sync.ChatIntervalMS = def.Sync.ChatIntervalMS
	}
	if cfg.Sync.NotificationsIntervalMS <= 0 {
		cfg.Sync.NotificationsIntervalMS = def.Sync.NotificationsIntervalMS
	}
	if cfg.Sync.DashboardIntervalMS <= 0 {
		cfg.Sync.DashboardIntervalMS = def.Sync.DashboardIntervalMS
	}

	storageDir, err := expandPath(cfg.Storage.BaseDir)
	if err != nil {
		return err
	}
	if storageDir == "" {
		storageDir, err = expandPath(def.Storage.BaseDir)
		if err != nil {
			return err
		}
	}
	cfg.Storage.BaseDir = storageDir
	if cfg.Storage.LogMaxMB <= 0 {
		cfg.Storage.LogMaxMB = def.Storage.LogMaxMB
	}

	if strings.TrimSpace(cfg.UI.Theme) == "" {
		cfg.UI.Theme = def.UI.Theme
	}
	return nil
}

func applyEnv(cfg Config) (Config, error) {
	if v := strings.TrimSpace(os.Getenv("REFIND_BASE_URL")); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REFIND_TIMEOUT_MS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid REFIND_TIMEOUT_MS: %q", v)
		}
		cfg.Server.TimeoutMS = n
	}
	if v := strings.TrimSpace(os.Getenv("REFIND_STORAGE_DIR")); v != "" {
		cfg.Storage.BaseDir = v
	}
	if v := strings.TrimSpace(os.Getenv("REFIND_PLAIN")); v != "" {
		plain, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid REFIND_PLAIN: %q", v)
		}
		cfg.UI.Plain = plain
	}
	return cfg, normalize(&cfg)
}

// DBPath 数据库文件位置 / DBPath is where the SQLite database lives.
func (c Config) DBPath() string {
	return filepath.Join(c.Storage.BaseDir, "refind.db")
}

// LogPath 日志文件位置 / LogPath is where the log file lives.
func (c Config) LogPath() string {
	return filepath.Join(c.Storage.BaseDir, "refind.log")
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
