package ai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIEmbedder embeds text through any OpenAI-compatible endpoint.
type OpenAIEmbedder struct {
	model    string
	embedder *embeddings.EmbedderImpl
}

func NewOpenAIEmbedder(baseURL, token, model string) (*OpenAIEmbedder, error) {
	if model == "" {
		model = DefaultOpenAIModel
	}
	opts := []openai.Option{openai.WithEmbeddingModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if token != "" {
		opts = append(opts, openai.WithToken(token))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	emb, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	return &OpenAIEmbedder{model: model, embedder: emb}, nil
}

func (e *OpenAIEmbedder) Model() string { return e.model }

func (e *OpenAIEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vec, nil
}

// EmbedBatch embeds many documents in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai batch embedding failed: %w", err)
	}
	return vecs, nil
}
