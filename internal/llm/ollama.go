package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/scrypster/recall/pkg/types"
)

// OllamaConfig holds Ollama client configuration.
type OllamaConfig struct {
	// BaseURL is the base URL for the Ollama API (default: http://localhost:11434).
	BaseURL string

	// EmbedModel is the model used for embeddings (default: nomic-embed-text).
	EmbedModel string

	// SummaryModel is the model used for digest generation (default: qwen2.5:7b).
	SummaryModel string

	// Dimension is the expected embedding dimension (default: 768 for
	// nomic-embed-text). Responses with a different dimension are rejected.
	Dimension int

	// Timeout is the per-request timeout (default: 30s).
	Timeout time.Duration

	// RequestsPerSecond bounds outbound calls (default: 4).
	RequestsPerSecond float64
}

func (c *OllamaConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.EmbedModel == "" {
		c.EmbedModel = "nomic-embed-text"
	}
	if c.SummaryModel == "" {
		c.SummaryModel = "qwen2.5:7b"
	}
	if c.Dimension <= 0 {
		c.Dimension = 768
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 4
	}
}

// OllamaClient talks to a local Ollama instance for embeddings and digest
// summaries. All HTTP calls go through a circuit breaker and a rate limiter
// so a failing or slow endpoint cannot cascade into the engine.
type OllamaClient struct {
	cfg     OllamaConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

var (
	_ Embedder   = (*OllamaClient)(nil)
	_ Summarizer = (*OllamaClient)(nil)
)

// NewOllamaClient creates a client for the given configuration.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	cfg.applyDefaults()
	return &OllamaClient{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: newBreaker("ollama", 3, 30*time.Second),
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
	}
}

// Dimension returns the configured embedding dimension.
func (c *OllamaClient) Dimension() int {
	return c.cfg.Dimension
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates embeddings for a batch of texts via /api/embed.
func (c *OllamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.embed(ctx, texts)
	})
	if err != nil {
		return nil, translateBreakerErr(err)
	}
	return result.([][]float32), nil
}

func (c *OllamaClient) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.EmbedModel, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrInvalidResponse, err)
	}

	respBody, err := c.post(ctx, "/api/embed", body)
	if err != nil {
		return nil, err
	}

	var resp embedResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			ErrInvalidResponse, len(resp.Embeddings), len(texts))
	}
	for i, vec := range resp.Embeddings {
		if len(vec) != c.cfg.Dimension {
			return nil, fmt.Errorf("%w: row %d has dimension %d, want %d",
				ErrDimensionMismatch, i, len(vec), c.cfg.Dimension)
		}
	}
	return resp.Embeddings, nil
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Summarize asks the summary model for a one-paragraph digest of the cluster.
func (c *OllamaClient) Summarize(ctx context.Context, cluster []types.Memory) (string, error) {
	if len(cluster) == 0 {
		return "", fmt.Errorf("%w: empty cluster", ErrInvalidResponse)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	result, err := c.breaker.Execute(func() (any, error) {
		return c.summarize(ctx, cluster)
	})
	if err != nil {
		return "", translateBreakerErr(err)
	}
	return result.(string), nil
}

func (c *OllamaClient) summarize(ctx context.Context, cluster []types.Memory) (string, error) {
	var sb strings.Builder
	sb.WriteString("Condense the following related memories into one short paragraph ")
	sb.WriteString("capturing the recurring theme. Reply with the paragraph only.\n\n")
	for _, m := range cluster {
		sb.WriteString("- ")
		sb.WriteString(m.Text)
		sb.WriteString("\n")
	}

	body, err := json.Marshal(generateRequest{
		Model:  c.cfg.SummaryModel,
		Prompt: sb.String(),
		Stream: false,
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrInvalidResponse, err)
	}

	respBody, err := c.post(ctx, "/api/generate", body)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if strings.TrimSpace(resp.Response) == "" {
		return "", fmt.Errorf("%w: empty completion", ErrInvalidResponse)
	}
	return strings.TrimSpace(resp.Response), nil
}

// post issues a JSON POST and returns the raw response body. Transport and
// non-200 failures map to ErrTransport.
func (c *OllamaClient) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d: %s",
			ErrTransport, path, resp.StatusCode, truncate(string(respBody), 200))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
