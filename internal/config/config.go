package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shohag/pushrelay/internal/models"
)

type Config struct {
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	TLS      TLSConfig      `mapstructure:"tls"`
	Feedback FeedbackConfig `mapstructure:"feedback"`
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type GatewayConfig struct {
	Environment  string        `mapstructure:"environment"`
	GatewayAddr  string        `mapstructure:"gateway_addr"`
	FeedbackAddr string        `mapstructure:"feedback_addr"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	CloseTimeout time.Duration `mapstructure:"close_timeout"`
}

type TLSConfig struct {
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	CAFile     string `mapstructure:"ca_file"`
	ServerName string `mapstructure:"server_name"`
}

type FeedbackConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	APIKey       string        `mapstructure:"api_key"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pushrelay")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pushrelay")
	}

	setDefaults(v)

	v.SetEnvPrefix("PUSHRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings no component could run with. TLS material is
// checked when it is loaded.
func (c *Config) Validate() error {
	switch c.Gateway.Environment {
	case "sandbox", "production":
	default:
		if c.Gateway.GatewayAddr == "" || c.Gateway.FeedbackAddr == "" {
			return fmt.Errorf("unknown gateway.environment %q and no explicit gateway/feedback addresses", c.Gateway.Environment)
		}
	}
	if c.Gateway.DialTimeout <= 0 {
		return fmt.Errorf("gateway.dial_timeout must be positive")
	}
	if c.Gateway.CloseTimeout <= 0 {
		return fmt.Errorf("gateway.close_timeout must be positive")
	}
	if c.Feedback.Interval <= 0 {
		return fmt.Errorf("feedback.interval must be positive")
	}
	return nil
}

// Endpoints resolves the gateway and feedback addresses, preferring explicit
// addresses over the environment's defaults.
func (c GatewayConfig) Endpoints() (gateway, feedback string, err error) {
	gateway, feedback = c.GatewayAddr, c.FeedbackAddr
	if gateway != "" && feedback != "" {
		return gateway, feedback, nil
	}
	env, err := models.EnvironmentByName(c.Environment)
	if err != nil {
		return "", "", err
	}
	if gateway == "" {
		gateway = env.GatewayAddr()
	}
	if feedback == "" {
		feedback = env.FeedbackAddr()
	}
	return gateway, feedback, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.environment", "sandbox")
	v.SetDefault("gateway.gateway_addr", "")
	v.SetDefault("gateway.feedback_addr", "")
	v.SetDefault("gateway.dial_timeout", 10*time.Second)
	v.SetDefault("gateway.close_timeout", 5*time.Second)

	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("tls.ca_file", "")
	v.SetDefault("tls.server_name", "")

	v.SetDefault("feedback.enabled", true)
	v.SetDefault("feedback.interval", 10*time.Minute)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.api_key", "")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", "./data/pushrelay.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
