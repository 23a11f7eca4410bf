package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. TFASSIST_SERVER_PORT.
const EnvPrefix = "TFASSIST"

type Config struct {
	Server    HTTPServerConfig `mapstructure:"server"`
	LLM       LLMConfig        `mapstructure:"llm"`
	Prompt    PromptConfig     `mapstructure:"prompt"`
	Terraform TerraformConfig  `mapstructure:"terraform"`
	History   HistoryConfig    `mapstructure:"history"`
	Mongo     MongoConfig      `mapstructure:"mongo"`
	AMQP      AMQPConfig       `mapstructure:"amqp"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Log       LogConfig        `mapstructure:"log"`
}

type HTTPServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// Addr returns host:port for the listener.
func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LLMConfig struct {
	Backend   string        `mapstructure:"backend"`
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxLength int           `mapstructure:"max_length"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type PromptConfig struct {
	CommentLanguage string `mapstructure:"comment_language"`
}

type TerraformConfig struct {
	Binary          string        `mapstructure:"binary"`
	Workdir         string        `mapstructure:"workdir"`
	KeepWorkspaces  bool          `mapstructure:"keep_workspaces"`
	InitTimeout     time.Duration `mapstructure:"init_timeout"`
	ValidateTimeout time.Duration `mapstructure:"validate_timeout"`
	PluginCacheDir  string        `mapstructure:"plugin_cache_dir"`
}

type HistoryConfig struct {
	// Capacity of the in-memory store used when no Mongo URI is set.
	Capacity int `mapstructure:"capacity"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type AMQPConfig struct {
	URL             string `mapstructure:"url"`
	ConnectAttempts int    `mapstructure:"connect_attempts"`
}

type MetricsConfig struct {
	// Addr of a standalone metrics listener; empty serves /metrics only on the main router.
	Addr string `mapstructure:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 5*time.Minute)
	v.SetDefault("server.write_timeout", 5*time.Minute)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.max_body_bytes", int64(1<<20))

	v.SetDefault("llm.backend", "hf")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "EleutherAI/gpt-neo-2.7B")
	v.SetDefault("llm.max_length", 512)
	v.SetDefault("llm.timeout", 2*time.Minute)

	v.SetDefault("prompt.comment_language", "portuguese")

	v.SetDefault("terraform.binary", "terraform")
	v.SetDefault("terraform.workdir", "./workspaces")
	v.SetDefault("terraform.keep_workspaces", false)
	v.SetDefault("terraform.init_timeout", 2*time.Minute)
	v.SetDefault("terraform.validate_timeout", time.Minute)
	v.SetDefault("terraform.plugin_cache_dir", "")

	v.SetDefault("history.capacity", 1000)

	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "tfassist")
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("amqp.url", "")
	v.SetDefault("amqp.connect_attempts", 5)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("log.level", "info")
}

// New returns a viper instance with defaults and environment overrides
// applied. Command-line flags are bound onto it by the caller.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the optional YAML file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.LLM.Backend {
	case "hf", "openai":
	default:
		errs = append(errs, fmt.Errorf("llm.backend: unknown backend %q", c.LLM.Backend))
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if c.LLM.MaxLength <= 0 {
		errs = append(errs, fmt.Errorf("llm.max_length must be positive, got %d", c.LLM.MaxLength))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Terraform.Workdir == "" {
		errs = append(errs, errors.New("terraform.workdir is required"))
	}
	if c.Terraform.InitTimeout < 0 || c.Terraform.ValidateTimeout < 0 {
		errs = append(errs, errors.New("terraform timeouts must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	return errors.Join(errs...)
}
