package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Port        string `json:"port"`
	DSLDir      string `json:"dslDir"`
	Manifest    string `json:"manifest"` // файл или каталог с routes.yaml
	DBURL       string `json:"dbUrl"`    // пусто = хранилище в памяти
	AutoMigrate bool   `json:"autoMigrate"`

	BasePath string `json:"basePath"`
	APIToken string `json:"apiToken"` // если задан, все операции требуют Bearer-токен
	Title    string `json:"title"`    // заголовок OpenAPI
	LogLevel string `json:"logLevel"`
}

func def() Config {
	return Config{
		Port:        "8080",
		DSLDir:      "dsl",
		Manifest:    "routes.yaml",
		DBURL:       "",
		AutoMigrate: false,

		BasePath: "/api/v2",
		Title:    "AutoDojo",
		LogLevel: "info",
	}
}

func loadJSON(path string, c *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, c); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

func getenv(k, fallback string) string {
	if v, ok := os.LookupEnv(k); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func getenvBool(k string, fallback bool) bool {
	if v, ok := os.LookupEnv(k); ok {
		v = strings.TrimSpace(strings.ToLower(v))
		if v == "1" || v == "true" || v == "yes" {
			return true
		}
		if v == "0" || v == "false" || v == "no" {
			return false
		}
	}
	return fallback
}

// BindFlags регистрирует флаги; значения по умолчанию только для справки,
// применяются лишь явно переданные флаги.
func BindFlags(fs *pflag.FlagSet) {
	d := def()
	fs.String("config", "config.json", "Path to config JSON")
	fs.String("port", d.Port, "HTTP port")
	fs.String("dsl", d.DSLDir, "Path to DSL directory")
	fs.String("manifest", d.Manifest, "Router manifest (YAML file or directory)")
	fs.String("db", d.DBURL, "Postgres URL (empty = in-memory)")
	fs.Bool("auto-migrate", d.AutoMigrate, "Create schemas, tables and foreign keys on start")
	fs.String("base-path", d.BasePath, "Mount point of generated routers")
	fs.String("api-token", d.APIToken, "Require 'Authorization: Bearer <token>'")
	fs.String("title", d.Title, "OpenAPI document title")
	fs.String("log-level", d.LogLevel, "debug|info|warn|error")
}

// Load: умолчания -> JSON (если файл есть) -> AUTODOJO_* -> флаги.
func Load(fs *pflag.FlagSet) (Config, error) {
	cfg := def()

	jsonPath := "config.json"
	if fs != nil {
		if p, err := fs.GetString("config"); err == nil {
			jsonPath = p
		}
	}
	jsonPath = getenv("AUTODOJO_CONFIG", jsonPath)
	if st, err := os.Stat(jsonPath); err == nil && !st.IsDir() {
		if err := loadJSON(jsonPath, &cfg); err != nil {
			return cfg, err
		}
	}

	// ENV overrides
	cfg.Port = getenv("AUTODOJO_PORT", cfg.Port)
	cfg.DSLDir = getenv("AUTODOJO_DSL_DIR", cfg.DSLDir)
	cfg.Manifest = getenv("AUTODOJO_MANIFEST", cfg.Manifest)
	cfg.DBURL = getenv("AUTODOJO_DB_URL", cfg.DBURL)
	cfg.AutoMigrate = getenvBool("AUTODOJO_AUTO_MIGRATE", cfg.AutoMigrate)
	cfg.BasePath = getenv("AUTODOJO_BASE_PATH", cfg.BasePath)
	cfg.APIToken = getenv("AUTODOJO_API_TOKEN", cfg.APIToken)
	cfg.Title = getenv("AUTODOJO_TITLE", cfg.Title)
	cfg.LogLevel = getenv("AUTODOJO_LOG_LEVEL", cfg.LogLevel)

	// Flags overrides
	if fs != nil {
		str := func(name string, dst *string) {
			if fs.Changed(name) {
				v, _ := fs.GetString(name)
				*dst = strings.TrimSpace(v)
			}
		}
		str("port", &cfg.Port)
		str("dsl", &cfg.DSLDir)
		str("manifest", &cfg.Manifest)
		str("db", &cfg.DBURL)
		str("base-path", &cfg.BasePath)
		str("api-token", &cfg.APIToken)
		str("title", &cfg.Title)
		str("log-level", &cfg.LogLevel)
		if fs.Changed("auto-migrate") {
			cfg.AutoMigrate, _ = fs.GetBool("auto-migrate")
		}
	}

	cfg.BasePath = "/" + strings.Trim(cfg.BasePath, "/")
	if cfg.BasePath == "/" {
		cfg.BasePath = ""
	}
	return cfg, nil
}

// Logger — production-логгер zap с уровнем из конфига.
func (c Config) Logger() (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logLevel: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
