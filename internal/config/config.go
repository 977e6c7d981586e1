// Package config handles configuration loading and validation for ragu.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete ragu configuration. It is assembled here
// and passed explicitly into constructors; the core packages keep no
// process-wide state of their own.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Ignore     []string         `mapstructure:"ignore"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RetrievalConfig configures query behavior and context composition.
type RetrievalConfig struct {
	Collection        string  `mapstructure:"collection"`
	TopK              int     `mapstructure:"top_k"`
	MinScore          float64 `mapstructure:"min_score"`
	PreviewChars      int     `mapstructure:"preview_chars"`
	MaxContextRecords int     `mapstructure:"max_context_records"`
}

// LLMConfig configures the answer-generation service, including the
// designated fallback model used when the primary fails.
type LLMConfig struct {
	Provider  string            `mapstructure:"provider"`
	Ollama    OllamaLLMConfig   `mapstructure:"ollama"`
	OpenAI    OpenAILLMConfig   `mapstructure:"openai"`
	Anthropic AnthropicConfig   `mapstructure:"anthropic"`
	Fallback  FallbackLLMConfig `mapstructure:"fallback"`
}

// OllamaLLMConfig configures Ollama completions.
type OllamaLLMConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAILLMConfig configures OpenAI completions.
type OpenAILLMConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// AnthropicConfig configures Anthropic completions.
type AnthropicConfig struct {
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// FallbackLLMConfig names the model tried once when the primary fails.
type FallbackLLMConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Retrieval: RetrievalConfig{
			Collection:        DefaultCollectionName,
			TopK:              DefaultTopK,
			MinScore:          DefaultMinScore,
			PreviewChars:      DefaultPreviewChars,
			MaxContextRecords: DefaultMaxContextRecords,
		},
		LLM: LLMConfig{
			Provider: DefaultLLMProvider,
			Ollama: OllamaLLMConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaLLMModel,
			},
			OpenAI: OpenAILLMConfig{
				Model: DefaultOpenAILLMModel,
			},
			Anthropic: AnthropicConfig{
				Model: DefaultAnthropicModel,
			},
			Fallback: FallbackLLMConfig{
				Provider: DefaultFallbackProvider,
				Model:    DefaultFallbackLLMModel,
			},
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	setDefaults()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")
	}

	// Environment variables: RAGU_DATABASE_PATH, RAGU_LLM_PROVIDER, ...
	viper.SetEnvPrefix("RAGU")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	loadAPIKeysFromEnv()

	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)

	viper.SetDefault("database.path", DefaultDatabasePath())

	viper.SetDefault("retrieval.collection", DefaultCollectionName)
	viper.SetDefault("retrieval.top_k", DefaultTopK)
	viper.SetDefault("retrieval.min_score", DefaultMinScore)
	viper.SetDefault("retrieval.preview_chars", DefaultPreviewChars)
	viper.SetDefault("retrieval.max_context_records", DefaultMaxContextRecords)

	viper.SetDefault("llm.provider", DefaultLLMProvider)
	viper.SetDefault("llm.ollama.url", DefaultOllamaURL)
	viper.SetDefault("llm.ollama.model", DefaultOllamaLLMModel)
	viper.SetDefault("llm.openai.model", DefaultOpenAILLMModel)
	viper.SetDefault("llm.anthropic.model", DefaultAnthropicModel)
	viper.SetDefault("llm.fallback.provider", DefaultFallbackProvider)
	viper.SetDefault("llm.fallback.model", DefaultFallbackLLMModel)

	viper.SetDefault("ignore", DefaultIgnorePatterns())
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already
// set in the config file.
func loadAPIKeysFromEnv() {
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
	if cfg.LLM.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.OpenAI.APIKey = key
		}
	}
	if cfg.LLM.Anthropic.APIKey == "" {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.LLM.Anthropic.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}
