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

	"go.uber.org/zap"
)

const (
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "llama3"
	DefaultTimeout  = 5 * time.Minute
)

// Ollama talks to a local Ollama server through /api/generate.
type Ollama struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewOllama returns a client for the server at endpoint. A zero timeout
// means DefaultTimeout.
func NewOllama(endpoint string, timeout time.Duration, logger *zap.Logger) *Ollama {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ollama{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// URL is the generate endpoint requests are sent to.
func (o *Ollama) URL() string { return o.endpoint + "/api/generate" }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (o *Ollama) Complete(ctx context.Context, req Request) (string, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	body, err := json.Marshal(generateRequest{
		Model:  model,
		Prompt: BuildPrompt(req),
		System: req.System,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %s returned status %d: %s", ErrUnavailable, o.URL(), resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: unexpected response format: %v", ErrUnavailable, err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, out.Error)
	}

	o.logger.Debug("completion received",
		zap.String("model", model),
		zap.Int("prompt_bytes", len(body)),
		zap.Int("response_bytes", len(out.Response)),
		zap.Duration("elapsed", time.Since(start)))
	return out.Response, nil
}
