package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "TESSERA"
	configFileName = "tessera"
	configFileType = "yaml"

	KeyDatabasePath  = "database_path"
	KeyPort          = "port"
	KeySessionSecret = "session_secret"
	KeyThemesDir     = "themes_dir"
	KeyViewsDir      = "views_dir"
	KeyMediaDir      = "media_dir"
	KeyMediaBaseURL  = "media_base_url"
	KeyCacheDir      = "cache_dir"
	KeyCacheMaxAge   = "cache_max_age"
	KeyLogLevel      = "log_level"
	KeyLogFormat     = "log_format"
)

type Config struct {
	DatabasePath  string
	Port          string
	SessionSecret string
	ThemesDir     string
	ViewsDir      string
	MediaDir      string
	MediaBaseURL  string
	CacheDir      string
	CacheMaxAge   time.Duration
	LogLevel      string
	LogFormat     string
}

// Load reads configuration from defaults, an optional tessera.yaml in dir (or
// the working directory when dir is empty), a .env file and TESSERA_*
// environment variables, in increasing precedence. A missing file is not an
// error.
func Load(dir string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetDefault(KeyDatabasePath, "tessera.db")
	v.SetDefault(KeyPort, "8080")
	v.SetDefault(KeyViewsDir, "views")
	v.SetDefault(KeyThemesDir, "views/themes")
	v.SetDefault(KeyMediaDir, "public/media")
	v.SetDefault(KeyMediaBaseURL, "/public/media")
	v.SetDefault(KeyCacheDir, "cache")
	v.SetDefault(KeyCacheMaxAge, "10m")
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	if dir == "" {
		dir = "."
	}
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		DatabasePath:  v.GetString(KeyDatabasePath),
		Port:          v.GetString(KeyPort),
		SessionSecret: v.GetString(KeySessionSecret),
		ThemesDir:     v.GetString(KeyThemesDir),
		ViewsDir:      v.GetString(KeyViewsDir),
		MediaDir:      v.GetString(KeyMediaDir),
		MediaBaseURL:  v.GetString(KeyMediaBaseURL),
		CacheDir:      v.GetString(KeyCacheDir),
		CacheMaxAge:   v.GetDuration(KeyCacheMaxAge),
		LogLevel:      v.GetString(KeyLogLevel),
		LogFormat:     v.GetString(KeyLogFormat),
	}
	return cfg, nil
}

// Validate checks the settings that serve needs; migrate only needs the
// database path.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%s not set", KeyDatabasePath)
	}
	if c.SessionSecret == "" {
		return fmt.Errorf("%s not set (env %s_SESSION_SECRET)", KeySessionSecret, envPrefix)
	}
	return nil
}
