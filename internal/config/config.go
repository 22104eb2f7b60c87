package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"github.com/satishbabariya/prisma-go-client/runtime/client"
)

// AppFs is the filesystem configuration is read from and written to.
var AppFs = afero.NewOsFs()

const (
	envPrefix  = "PRISMA_GO"
	configName = "prisma-go"
)

// Engine kinds.
const (
	EngineMemory = "memory"
	EngineSQL    = "sql"
	EngineHTTP   = "http"
)

// Config holds the application configuration
type Config struct {
	SchemaPath      string           `mapstructure:"schema_path"`
	Engine          string           `mapstructure:"engine"`
	Provider        string           `mapstructure:"provider"`
	DatabaseURL     string           `mapstructure:"database_url"`
	EngineURL       string           `mapstructure:"engine_url"`
	Listen          string           `mapstructure:"listen"`
	MaxOpenConns    int              `mapstructure:"max_open_conns"`
	MaxTransactions int64            `mapstructure:"max_transactions"`
	Metrics         bool             `mapstructure:"metrics"`
	RollbackTimeout time.Duration    `mapstructure:"rollback_timeout"`
	Transaction     client.TxOptions `mapstructure:"transaction"`
}

var defaults = map[string]interface{}{
	"schema_path":                 "schema.prisma",
	"engine":                      EngineMemory,
	"provider":                    "",
	"database_url":                "",
	"engine_url":                  "",
	"listen":                      "127.0.0.1:4466",
	"max_open_conns":              10,
	"max_transactions":            16,
	"metrics":                     true,
	"rollback_timeout":            client.DefaultRollbackTimeout,
	"transaction.max_wait":        client.DefaultMaxWait,
	"transaction.timeout":         client.DefaultTimeout,
	"transaction.isolation_level": "",
	"transaction.max_retries":     0,
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetFs(AppFs)
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	_ = v.BindEnv("database_url", envName("database_url"), "DATABASE_URL")
	return v
}

// envName returns the environment variable read for key.
func envName(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Load reads configuration from, in increasing priority: defaults, a
// prisma-go.yaml in dir, the home directory or ~/.config/prisma-go, dir/.env,
// the process environment and dir/.env.local.
func Load(dir string) (*Config, error) {
	v := newViper()
	v.AddConfigPath(dir)
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(home)
		v.AddConfigPath(filepath.Join(home, ".config", configName))
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "read config")
		}
	}

	if err := loadDotenv(v, filepath.Join(dir, ".env"), false); err != nil {
		return nil, err
	}
	if err := loadDotenv(v, filepath.Join(dir, ".env.local"), true); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// loadDotenv applies the variables of a dotenv file. Unless override is
// set, variables already present in the process environment win.
func loadDotenv(v *viper.Viper, path string, override bool) error {
	b, err := afero.ReadFile(AppFs, path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	vars, err := godotenv.Parse(bytes.NewReader(b))
	if err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	keys := make(map[string][]string)
	for key := range defaults {
		keys[envName(key)] = append(keys[envName(key)], key)
	}
	keys["DATABASE_URL"] = []string{"database_url"}

	for name, value := range vars {
		if _, set := os.LookupEnv(name); set && !override {
			continue
		}
		for _, key := range keys[name] {
			v.Set(key, value)
		}
	}
	return nil
}

// DefaultPath is where Save writes when no path is given.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", configName, configName+".yaml"), nil
}

// Save writes cfg as YAML to path, or to DefaultPath when path is empty.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return err
		}
	}
	v := viper.New()
	v.SetFs(AppFs)
	v.Set("schema_path", cfg.SchemaPath)
	v.Set("engine", cfg.Engine)
	v.Set("provider", cfg.Provider)
	v.Set("engine_url", cfg.EngineURL)
	v.Set("listen", cfg.Listen)
	v.Set("max_open_conns", cfg.MaxOpenConns)
	v.Set("max_transactions", cfg.MaxTransactions)
	v.Set("metrics", cfg.Metrics)
	v.Set("rollback_timeout", cfg.RollbackTimeout.String())
	v.Set("transaction.max_wait", cfg.Transaction.MaxWait.String())
	v.Set("transaction.timeout", cfg.Transaction.Timeout.String())
	v.Set("transaction.isolation_level", string(cfg.Transaction.IsolationLevel))
	v.Set("transaction.max_retries", cfg.Transaction.MaxRetries)

	if err := AppFs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}

// Validate checks that the selected engine has what it needs.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineMemory:
	case EngineSQL:
		if c.DatabaseURL == "" {
			return errors.New("engine sql requires database_url (or DATABASE_URL)")
		}
		if c.Provider == "" {
			return errors.New("engine sql requires provider")
		}
	case EngineHTTP:
		if c.EngineURL == "" {
			return errors.New("engine http requires engine_url")
		}
	default:
		return errors.Errorf("unknown engine %q (want memory, sql or http)", c.Engine)
	}
	if !c.Transaction.IsolationLevel.Valid() {
		return errors.Errorf("unknown isolation level %q", c.Transaction.IsolationLevel)
	}
	return nil
}

// ClientOptions converts the transaction settings into client options.
func (c *Config) ClientOptions() []client.Option {
	opts := []client.Option{client.WithTransactionOptions(c.Transaction)}
	if c.RollbackTimeout > 0 {
		opts = append(opts, client.WithRollbackTimeout(c.RollbackTimeout))
	}
	return opts
}
