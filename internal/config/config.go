// Package config handles configuration loading and validation for semdex.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete semdex configuration.
type Config struct {
	Search     SearchConfig     `mapstructure:"search"`
	Index      IndexConfig      `mapstructure:"index"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Ignore     []string         `mapstructure:"ignore"`
}

// SearchConfig configures the query-facing search engine.
type SearchConfig struct {
	Enabled             bool    `mapstructure:"enabled"`
	TopK                int     `mapstructure:"top_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	MaxCodeLength       int     `mapstructure:"max_code_length"`
}

// IndexConfig configures the indexing process and index persistence.
type IndexConfig struct {
	Dir         string `mapstructure:"dir"`
	BatchSize   int    `mapstructure:"batch_size"`
	MaxFileSize int    `mapstructure:"max_file_size"`
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

// Default returns a configuration with default values.
func Default() *Config {
	return &Config{
		Search: SearchConfig{
			Enabled:             true,
			TopK:                DefaultTopK,
			SimilarityThreshold: DefaultSimilarityThreshold,
			MaxCodeLength:       DefaultMaxCodeLength,
		},
		Index: IndexConfig{
			Dir:         DefaultIndexDir(),
			BatchSize:   DefaultBatchSize,
			MaxFileSize: DefaultMaxFileSize,
		},
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIModel,
			},
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from file and environment variables and returns
// the resulting config. Callers pass the value down explicitly; there is no
// process-global configuration state.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SEMDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config", "file", v.ConfigFileUsed())
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// API key falls back to the conventional environment variable.
	if cfg.Embeddings.OpenAI.APIKey == "" {
		cfg.Embeddings.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all configured values are within their allowed ranges.
func (c *Config) Validate() error {
	if c.Search.TopK < MinTopK || c.Search.TopK > MaxTopK {
		return fmt.Errorf("search.top_k must be between %d and %d, got %d", MinTopK, MaxTopK, c.Search.TopK)
	}
	if c.Search.SimilarityThreshold < 0.0 || c.Search.SimilarityThreshold > 1.0 {
		return fmt.Errorf("search.similarity_threshold must be between 0.0 and 1.0, got %g", c.Search.SimilarityThreshold)
	}
	if c.Search.MaxCodeLength < MinCodeLength || c.Search.MaxCodeLength > MaxCodeLength {
		return fmt.Errorf("search.max_code_length must be between %d and %d, got %d", MinCodeLength, MaxCodeLength, c.Search.MaxCodeLength)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.top_k", DefaultTopK)
	v.SetDefault("search.similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("search.max_code_length", DefaultMaxCodeLength)

	v.SetDefault("index.dir", DefaultIndexDir())
	v.SetDefault("index.batch_size", DefaultBatchSize)
	v.SetDefault("index.max_file_size", DefaultMaxFileSize)

	v.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	v.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	v.SetDefault("embeddings.ollama.model", DefaultOllamaModel)
	v.SetDefault("embeddings.openai.model", DefaultOpenAIModel)

	v.SetDefault("ignore", DefaultIgnorePatterns())
}
