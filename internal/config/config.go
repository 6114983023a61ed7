package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix namespaces environment overrides, e.g. ENIGMA_SERVER_ADDR.
const EnvPrefix = "ENIGMA"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Data      DataConfig      `mapstructure:"data"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Client    ClientConfig    `mapstructure:"client"`

	v  *viper.Viper
	mu sync.Mutex
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	StaticDir      string   `mapstructure:"static_dir"`
	DevFrontendURL string   `mapstructure:"dev_frontend_url"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DataConfig struct {
	MetricsFile string `mapstructure:"metrics_file"`
	BooleanFile string `mapstructure:"boolean_file"`
}

type DatabaseConfig struct {
	Path          string `mapstructure:"path"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Issuer    string        `mapstructure:"issuer"`
}

type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	Console    bool   `mapstructure:"console"`
}

type NotifyConfig struct {
	AdminEmail string `mapstructure:"admin_email"`
}

// DirectoryConfig points at the spreadsheets imported into a new database.
type DirectoryConfig struct {
	CollaboratorsCSV string `mapstructure:"collaborators_csv"`
	AdminsCSV        string `mapstructure:"admins_csv"`
	RequestAdminsCSV string `mapstructure:"request_admins_csv"`
}

type ClientConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.dev_frontend_url", "")
	v.SetDefault("server.mode", "production")
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("data.metrics_file", "data/metrics_data.json")
	v.SetDefault("data.boolean_file", "data/anonymized_data.csv")

	v.SetDefault("database.path", "data/enigma.db")
	v.SetDefault("database.migrations_dir", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", "12h")
	v.SetDefault("auth.issuer", "enigma-request")

	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 7)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.console", true)

	v.SetDefault("notify.admin_email", "npnlusc@gmail.com")

	v.SetDefault("directory.collaborators_csv", "")
	v.SetDefault("directory.admins_csv", "")
	v.SetDefault("directory.request_admins_csv", "")

	v.SetDefault("client.base_url", "http://localhost:8080")
	v.SetDefault("client.token", "")
	v.SetDefault("client.timeout", "30s")
}

// Load reads configuration from file (or config/config.yaml under root when
// file is empty), then applies ENIGMA_* environment overrides. A missing
// default config file is not an error.
func Load(root, file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(filepath.Join(root, "config"))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{v: v}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return cfg, nil
}

// File returns the config file in use, or "" when running on defaults.
func (c *Config) File() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch reloads the file on change and hands the new values to onChange.
// The receiver keeps its startup values; runtime changes are read from the
// reloaded copy only.
func (c *Config) Watch(log *zap.Logger, onChange func(*Config)) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		c.reload(log, onChange)
	})
	c.v.WatchConfig()
}

// reload decodes the file viper has just re-read. Reloads are serialized.
func (c *Config) reload(log *zap.Logger, onChange func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := &Config{v: c.v}
	if err := c.v.Unmarshal(next); err != nil {
		log.Error("Error reloading configuration", zap.Error(err))
		return
	}
	if onChange != nil {
		onChange(next)
	}
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret must be set (ENIGMA_AUTH_JWT_SECRET)")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	if strings.TrimSpace(c.Database.Path) == "" {
		return errors.New("database.path must be set")
	}
	return nil
}
