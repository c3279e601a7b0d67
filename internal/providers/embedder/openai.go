// Package embedder provides EmbeddingProvider implementations.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dlyss/ai-agent-framework/internal/config"
	"github.com/dlyss/ai-agent-framework/internal/core"
)

// OpenAI calls an OpenAI-compatible /v1/embeddings endpoint. Works
// against llama.cpp server, text-embeddings-inference and the hosted
// OpenAI API alike.
type OpenAI struct {
	client        *http.Client
	baseURL       string
	apiKey        string
	model         string
	dimensions    int
	queryPrefix   string
	passagePrefix string
}

func NewOpenAI(cfg *config.EmbedderConfig) *OpenAI {
	return &OpenAI{
		client:        &http.Client{Timeout: cfg.Timeout},
		baseURL:       strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		dimensions:    cfg.Dimensions,
		queryPrefix:   cfg.QueryPrefix,
		passagePrefix: cfg.PassagePrefix,
	}
}

func (o *OpenAI) EmbedPassage(ctx context.Context, text string) ([]float32, error) {
	return o.embed(ctx, o.passagePrefix, text)
}

func (o *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return o.embed(ctx, o.queryPrefix, text)
}

func (o *OpenAI) Dimensions() int { return o.dimensions }

func (o *OpenAI) embed(ctx context.Context, prefix, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &core.EmbeddingError{Reason: "empty input"}
	}

	payload := map[string]any{
		"model": o.model,
		"input": []string{prefix + text},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/v1/embeddings", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &core.UnavailableError{Op: "embedding request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.UnavailableError{Op: "embedding response", Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &core.EmbeddingError{Reason: fmt.Sprintf("http %d: %s", resp.StatusCode, truncate(string(body), 200))}
	default:
		return nil, &core.UnavailableError{
			Op:  "embedding request",
			Err: fmt.Errorf("http %d: %s", resp.StatusCode, truncate(string(body), 200)),
		}
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, &core.EmbeddingError{Reason: "response contained no embeddings"}
	}

	vec := result.Data[0].Embedding
	if o.dimensions > 0 && len(vec) != o.dimensions {
		return nil, &core.EmbeddingError{
			Reason: fmt.Sprintf("model returned %d dimensions, expected %d", len(vec), o.dimensions),
		}
	}
	return vec, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
