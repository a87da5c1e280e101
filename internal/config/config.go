package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration struct, trimmed to the sections loom's
// core actually needs: no Copilot/Ollama/JSVM/Cron/Channels sections, since
// those belong to features this core doesn't implement.
type Config struct {
	Version  string         `mapstructure:"version" yaml:"version"`
	Gateway  GatewayConfig  `mapstructure:"gateway" yaml:"gateway"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Queue    QueueConfig    `mapstructure:"queue" yaml:"queue"`
	Context  ContextConfig  `mapstructure:"context" yaml:"context"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// GatewayConfig configures the HTTP/WebSocket transport cmd/loomd serves.
type GatewayConfig struct {
	Port int    `mapstructure:"port" yaml:"port"`
	Host string `mapstructure:"host" yaml:"host"`
}

// StorageConfig configures the SQLite-backed session store.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ProvidersConfig configures the Anthropic and OpenAI adapters.
type ProvidersConfig struct {
	Default   string          `mapstructure:"default" yaml:"default"`
	Anthropic AnthropicConfig `mapstructure:"anthropic" yaml:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
}

// AnthropicConfig holds credentials and defaults for the Anthropic adapter.
type AnthropicConfig struct {
	APIKey       string `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel string `mapstructure:"default_model" yaml:"default_model"`
	MaxTokens    int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// OpenAIConfig holds credentials and defaults for the OpenAI adapter.
type OpenAIConfig struct {
	APIKey       string `mapstructure:"api_key" yaml:"api_key"`
	DefaultModel string `mapstructure:"default_model" yaml:"default_model"`
	MaxTokens    int    `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// QueueConfig configures the Execution Queue's bounded concurrency.
type QueueConfig struct {
	MaxConcurrent  int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout" yaml:"default_timeout"`
}

// ContextConfig configures the Context Manager's trimming behaviour.
type ContextConfig struct {
	MaxTokens      int `mapstructure:"max_tokens" yaml:"max_tokens"`
	CharsPerToken  int `mapstructure:"chars_per_token" yaml:"chars_per_token"`
}

// LogConfig configures pkg/logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

var (
	globalConfig *Config
	configPath   string
	mu           sync.RWMutex
)

// SetDefaults installs viper defaults for every section above.
func SetDefaults() {
	viper.SetDefault("gateway.port", 8080)
	viper.SetDefault("gateway.host", "127.0.0.1")

	viper.SetDefault("storage.path", "~/.loom/data.db")

	viper.SetDefault("providers.default", "anthropic")
	viper.SetDefault("providers.anthropic.default_model", "claude-sonnet-4-5")
	viper.SetDefault("providers.anthropic.max_tokens", 4096)
	viper.SetDefault("providers.openai.default_model", "gpt-4o")
	viper.SetDefault("providers.openai.max_tokens", 4096)

	viper.SetDefault("queue.max_concurrent", 4)
	viper.SetDefault("queue.default_timeout", 30*time.Second)

	viper.SetDefault("context.max_tokens", 100_000)
	viper.SetDefault("context.chars_per_token", 4)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.file", "")
}

// Load reads config from path (if non-empty), layering in MOTE-style
// LOOM_-prefixed environment overrides over file values over defaults.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("LOOM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expanded, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expanded

		viper.SetConfigFile(expanded)
		if err := viper.ReadInConfig(); err != nil {
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigParseError); ok {
					return nil, err
				}
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if expanded, err := ExpandPath(cfg.Storage.Path); err == nil {
		cfg.Storage.Path = expanded
	}

	globalConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the most recently Load-ed configuration, or nil.
func GetConfig() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return globalConfig
}

// Save writes the current viper settings back to configPath as YAML.
func Save() error {
	mu.Lock()
	defer mu.Unlock()
	return save()
}

func save() error {
	if configPath == "" {
		return errors.New("config path not set")
	}
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(viper.AllSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(configPath, data, 0600)
}

// SaveTo marshals cfg as YAML to an arbitrary path, for `loomd config init`.
func SaveTo(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// Reset clears global state. Used by tests.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	configPath = ""
	viper.Reset()
}

// SetTestConfig installs cfg as the global config without touching viper or disk.
func SetTestConfig(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = cfg
}
