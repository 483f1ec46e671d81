package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. CIPHERD_SERVER_PORT
const EnvPrefix = "CIPHERD"

// Config holds the application configuration
type Config struct {
	Server struct {
		Host                 string        `mapstructure:"host"`
		Port                 int           `mapstructure:"port"`
		ReadTimeout          time.Duration `mapstructure:"read_timeout"`
		WriteTimeout         time.Duration `mapstructure:"write_timeout"`
		IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
		AllowedOrigins       []string      `mapstructure:"allowed_origins"`
		TrustProxy           bool          `mapstructure:"trust_proxy"`
		TrustedProxyNetworks []string      `mapstructure:"trusted_proxy_networks"`
		BodyLimit            int64         `mapstructure:"body_limit"`
		RateLimit            struct {
			Enabled           bool    `mapstructure:"enabled"`
			RequestsPerSecond float64 `mapstructure:"requests_per_second"`
			Burst             int     `mapstructure:"burst"`
			MaxClients        int     `mapstructure:"max_clients"`
			Redis             struct {
				Enabled  bool          `mapstructure:"enabled"`
				Addr     string        `mapstructure:"addr"`
				Password string        `mapstructure:"password"`
				DB       int           `mapstructure:"db"`
				Window   time.Duration `mapstructure:"window"`
			} `mapstructure:"redis"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"server"`

	Storage struct {
		Driver     string `mapstructure:"driver"`
		Table      string `mapstructure:"table"`
		SQLitePath string `mapstructure:"sqlite_path"`
		Postgres   struct {
			Host     string `mapstructure:"host"`
			Port     int    `mapstructure:"port"`
			Database string `mapstructure:"database"`
			User     string `mapstructure:"user"`
			Password string `mapstructure:"password"`
			SSLMode  string `mapstructure:"sslmode"`
			DSN      string `mapstructure:"dsn"`
		} `mapstructure:"postgres"`
		ReadPoolSize    int           `mapstructure:"read_pool_size"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		QueryTimeout    time.Duration `mapstructure:"query_timeout"`
		MetricsInterval time.Duration `mapstructure:"metrics_interval"`
	} `mapstructure:"storage"`

	Pipeline struct {
		MaxQueueSize    int           `mapstructure:"max_queue_size"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"pipeline"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"logging"`

	Secrets struct {
		Provider string `mapstructure:"provider"` // env, vault, aws
		Vault    struct {
			Address string `mapstructure:"address"`
			Token   string `mapstructure:"token"`
			Path    string `mapstructure:"path"`
		} `mapstructure:"vault"`
		AWS struct {
			Region    string `mapstructure:"region"`
			SecretID  string `mapstructure:"secret_id"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			Endpoint  string `mapstructure:"endpoint"`
		} `mapstructure:"aws"`
	} `mapstructure:"secrets"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.trust_proxy", false)
	v.SetDefault("server.trusted_proxy_networks", []string{})
	v.SetDefault("server.body_limit", 1<<20)
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests_per_second", 20.0)
	v.SetDefault("server.rate_limit.burst", 40)
	v.SetDefault("server.rate_limit.max_clients", 10000)
	v.SetDefault("server.rate_limit.redis.enabled", false)
	v.SetDefault("server.rate_limit.redis.addr", "localhost:6379")
	v.SetDefault("server.rate_limit.redis.password", "")
	v.SetDefault("server.rate_limit.redis.db", 0)
	v.SetDefault("server.rate_limit.redis.window", time.Second)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.table", "logs")
	v.SetDefault("storage.sqlite_path", "./data/cipherd.db")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.database", "cipherd")
	v.SetDefault("storage.postgres.user", "postgres")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.read_pool_size", 10)
	v.SetDefault("storage.write_timeout", 10*time.Second)
	v.SetDefault("storage.query_timeout", 10*time.Second)
	v.SetDefault("storage.metrics_interval", 15*time.Second)

	v.SetDefault("pipeline.max_queue_size", 0) // unbounded
	v.SetDefault("pipeline.shutdown_timeout", 15*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("secrets.provider", "env")
	v.SetDefault("secrets.vault.address", "")
	v.SetDefault("secrets.vault.token", "")
	v.SetDefault("secrets.vault.path", "secret/cipherd")
	v.SetDefault("secrets.aws.region", "us-east-1")
	v.SetDefault("secrets.aws.secret_id", "cipherd/secrets")
	v.SetDefault("secrets.aws.access_key", "")
	v.SetDefault("secrets.aws.secret_key", "")
	v.SetDefault("secrets.aws.endpoint", "")
}

// loadFromEnv sets up environment variable loading
func loadFromEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Plain PG_* names are accepted for deployments that already export them
	_ = v.BindEnv("storage.postgres.host", EnvPrefix+"_STORAGE_POSTGRES_HOST", "PG_HOST")
	_ = v.BindEnv("storage.postgres.port", EnvPrefix+"_STORAGE_POSTGRES_PORT", "PG_PORT")
	_ = v.BindEnv("storage.postgres.database", EnvPrefix+"_STORAGE_POSTGRES_DATABASE", "PG_DATABASE")
	_ = v.BindEnv("storage.postgres.user", EnvPrefix+"_STORAGE_POSTGRES_USER", "PG_USER")
	_ = v.BindEnv("storage.postgres.password", EnvPrefix+"_STORAGE_POSTGRES_PASSWORD", "PG_PASSWORD")
	_ = v.BindEnv("storage.postgres.sslmode", EnvPrefix+"_STORAGE_POSTGRES_SSLMODE", "PG_SSLMODE")
	_ = v.BindEnv("secrets.vault.token", EnvPrefix+"_SECRETS_VAULT_TOKEN", "VAULT_TOKEN")
	_ = v.BindEnv("secrets.vault.address", EnvPrefix+"_SECRETS_VAULT_ADDRESS", "VAULT_ADDR")
}

// LoadConfig loads configuration from defaults, an optional YAML file and the environment.
// An empty configFile searches for config.yaml in . and ./config; a missing file is not an error.
// An explicitly named file must exist.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	loadFromEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Addr returns the HTTP listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, fmt.Sprintf("%d", c.Server.Port))
}

func validateConfig(config *Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", config.Server.Port)
	}
	if config.Server.BodyLimit <= 0 {
		return fmt.Errorf("server body_limit must be positive")
	}
	for _, network := range config.Server.TrustedProxyNetworks {
		if !isValidIPOrCIDR(network) {
			return fmt.Errorf("invalid trusted proxy network: %s", network)
		}
	}

	rl := config.Server.RateLimit
	if rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limit requests_per_second must be positive")
		}
		if rl.Burst <= 0 {
			return fmt.Errorf("rate_limit burst must be positive")
		}
		if rl.MaxClients <= 0 {
			return fmt.Errorf("rate_limit max_clients must be positive")
		}
		if rl.Redis.Enabled {
			if rl.Redis.Addr == "" {
				return fmt.Errorf("rate_limit redis addr cannot be empty")
			}
			if rl.Redis.Window <= 0 {
				return fmt.Errorf("rate_limit redis window must be positive")
			}
		}
	}

	switch config.Storage.Driver {
	case "sqlite":
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("storage sqlite_path cannot be empty")
		}
	case "postgres":
		if config.Storage.Postgres.DSN == "" {
			if config.Storage.Postgres.Host == "" {
				return fmt.Errorf("storage postgres host cannot be empty")
			}
			if config.Storage.Postgres.Port < 1 || config.Storage.Postgres.Port > 65535 {
				return fmt.Errorf("invalid postgres port: %d (must be 1-65535)", config.Storage.Postgres.Port)
			}
			if config.Storage.Postgres.Database == "" {
				return fmt.Errorf("storage postgres database cannot be empty")
			}
		}
	default:
		return fmt.Errorf("invalid storage driver %q (must be sqlite or postgres)", config.Storage.Driver)
	}

	if config.Storage.ReadPoolSize < 1 {
		return fmt.Errorf("storage read_pool_size must be at least 1")
	}
	if config.Storage.WriteTimeout <= 0 || config.Storage.QueryTimeout <= 0 {
		return fmt.Errorf("storage write_timeout and query_timeout must be positive")
	}

	if config.Pipeline.MaxQueueSize < 0 {
		return fmt.Errorf("pipeline max_queue_size cannot be negative")
	}
	if config.Pipeline.ShutdownTimeout <= 0 {
		return fmt.Errorf("pipeline shutdown_timeout must be positive")
	}

	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", config.Logging.Level)
	}
	switch config.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid logging format %q (must be console or json)", config.Logging.Format)
	}

	switch config.Secrets.Provider {
	case "", "env":
	case "vault":
		if config.Secrets.Vault.Address == "" {
			return fmt.Errorf("vault address is required when secrets provider is vault")
		}
	case "aws":
		if config.Secrets.AWS.Region == "" {
			return fmt.Errorf("aws region is required when secrets provider is aws")
		}
	default:
		return fmt.Errorf("unsupported secret provider: %s", config.Secrets.Provider)
	}

	return nil
}

// isValidIPOrCIDR checks if a string is a valid IP address or CIDR
func isValidIPOrCIDR(ipStr string) bool {
	if ip := net.ParseIP(ipStr); ip != nil {
		return true
	}
	if _, _, err := net.ParseCIDR(ipStr); err == nil {
		return true
	}
	return false
}
