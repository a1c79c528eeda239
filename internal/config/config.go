// Package config loads assistant configuration from defaults, an optional
// YAML file, a local .env file, and OFIX_* environment variables, in that
// order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Redis      RedisConfig      `yaml:"redis"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Log        LogConfig        `yaml:"log"`
}

type ServerConfig struct {
	Port     int    `yaml:"port"`
	APIToken string `yaml:"api_token"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type RedisConfig struct {
	URL string `yaml:"url"` // empty disables the response cache
}

type OllamaConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type OpenRouterConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			Model:      "llama3.1",
			EmbedModel: "nomic-embed-text",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-3-5-haiku-latest",
		},
		OpenRouter: OpenRouterConfig{
			Model: "openai/gpt-4o-mini",
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ofix"
	}
	return filepath.Join(home, ".local", "share", "ofix-assistant")
}

// Load reads configuration. The optional configPath points at a YAML file;
// pass "" to skip it. A .env file in the working directory is applied when
// present, and OFIX_* environment variables override everything.
func Load(configPath string) (Config, error) {
	cfg := defaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return Config{}, fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Storage.DataDir, "OFIX_DATA_DIR")
	setString(&cfg.Redis.URL, "OFIX_REDIS_URL")
	setString(&cfg.Ollama.BaseURL, "OFIX_OLLAMA_BASE_URL")
	setString(&cfg.Ollama.Model, "OFIX_OLLAMA_MODEL")
	setString(&cfg.Ollama.EmbedModel, "OFIX_OLLAMA_EMBED_MODEL")
	setString(&cfg.Anthropic.APIKey, "OFIX_ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.Model, "OFIX_ANTHROPIC_MODEL")
	setString(&cfg.OpenRouter.APIKey, "OFIX_OPENROUTER_API_KEY")
	setString(&cfg.OpenRouter.Model, "OFIX_OPENROUTER_MODEL")
	setString(&cfg.Server.APIToken, "OFIX_API_TOKEN")
	setString(&cfg.Log.Level, "OFIX_LOG_LEVEL")
	setInt(&cfg.Server.Port, "OFIX_PORT")
	setBool(&cfg.Ollama.Enabled, "OFIX_OLLAMA_ENABLED")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
