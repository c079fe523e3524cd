package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SCANSUITE"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Reports ReportsConfig `mapstructure:"reports"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	CORSOrigins     []string      `mapstructure:"corsOrigins"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%s", s.Host, s.Port)
}

type ReportsConfig struct {
	Dir string `mapstructure:"dir"`
}

type EngineConfig struct {
	RequestTimeout time.Duration `mapstructure:"requestTimeout"`
	RateLimit      float64       `mapstructure:"rateLimit"`
	MaxRetries     uint64        `mapstructure:"maxRetries"`
	UserAgent      string        `mapstructure:"userAgent"`
	SensitivePaths []string      `mapstructure:"sensitivePaths"`
	// CWEMap overrides the bundled type,cwe catalogue when set.
	CWEMap string `mapstructure:"cweMap"`
}

// TracingConfig leaves tracing disabled when Endpoint is empty.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"serviceName"`
	Probability float64 `mapstructure:"probability"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.shutdownTimeout", 20*time.Second)
	v.SetDefault("server.corsOrigins", []string{"*"})

	v.SetDefault("reports.dir", "./reports")

	v.SetDefault("engine.requestTimeout", 15*time.Second)
	v.SetDefault("engine.rateLimit", 10.0)
	v.SetDefault("engine.maxRetries", 2)
	v.SetDefault("engine.userAgent", "scansuite/1.0")
	v.SetDefault("engine.sensitivePaths", []string{
		"/.git/HEAD",
		"/.env",
		"/server-status",
		"/phpinfo.php",
		"/.DS_Store",
		"/backup.zip",
	})

	v.SetDefault("engine.cweMap", "")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.serviceName", "scansuite")
	v.SetDefault("tracing.probability", 0.05)
}

// Load reads defaults, an optional config.yaml from "." or "./config" and
// environment overrides (SCANSUITE_SERVER_PORT etc., plus plain PORT).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Printf("[config] no config file found, using defaults and environment")
	} else {
		log.Printf("[config] using config file %s", v.ConfigFileUsed())
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("bind port env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port must not be empty")
	}
	if c.Reports.Dir == "" {
		return errors.New("reports.dir must not be empty")
	}
	if c.Engine.RateLimit <= 0 {
		return fmt.Errorf("engine.rateLimit must be positive, got %v", c.Engine.RateLimit)
	}
	if c.Engine.RequestTimeout <= 0 {
		return fmt.Errorf("engine.requestTimeout must be positive, got %v", c.Engine.RequestTimeout)
	}
	return nil
}
