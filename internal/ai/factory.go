package ai

import (
	"fmt"
	"time"

	"github.com/david/grant-search/internal/config"
)

// ModelEmbedder is an Embedder that reports its model name.
type ModelEmbedder interface {
	Embedder
	Model() string
}

// NewEmbedder builds the embedder selected by cfg.Provider.
func NewEmbedder(cfg config.EmbedderConfig) (ModelEmbedder, error) {
	switch cfg.Provider {
	case config.ProviderOllama, "":
		c := NewOllamaClient(cfg.BaseURL, cfg.Model, cfg.GenModel)
		if t := cfg.Timeout(); t > 0 {
			c.HTTPClient.Timeout = t
		}
		return c, nil
	case config.ProviderOpenAI:
		return NewOpenAIEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown embedder provider %q", cfg.Provider)
	}
}

// Extraction always runs on Ollama; a long timeout suits generation.
func NewCompleter(cfg config.EmbedderConfig) *OllamaClient {
	baseURL := cfg.BaseURL
	if cfg.Provider != config.ProviderOllama {
		baseURL = ""
	}
	c := NewOllamaClient(baseURL, "", cfg.GenModel)
	c.HTTPClient.Timeout = 5 * time.Minute
	return c
}
