package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"chronicle/internal/config"
)

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// HTTP calls a configured embedding endpoint over HTTP, one request per
// call to avoid batching quirks in some embedding servers.
type HTTP struct {
	cfg config.EmbeddingConfig
}

// NewHTTP constructs an HTTP embedder from cfg.
func NewHTTP(cfg config.EmbeddingConfig) *HTTP {
	return &HTTP{cfg: cfg}
}

func (h *HTTP) Dimension() int { return h.cfg.Dimensions }

func (h *HTTP) Ping(ctx context.Context) error {
	_, err := h.call(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}

func (h *HTTP) Embed(text string) ([]float32, error) {
	out, err := h.call(context.Background(), []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("embedding endpoint returned no vectors")
	}
	return out[0], nil
}

func (h *HTTP) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var all [][]float32
	for _, t := range texts {
		out, err := h.call(ctx, []string{t})
		if err != nil {
			return all, err
		}
		all = append(all, out...)
	}
	return all, nil
}

func (h *HTTP) call(ctx context.Context, inputs []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embedRequest{Model: h.cfg.Model, Input: inputs})
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(h.cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := h.cfg.BaseURL + h.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	if h.cfg.APIHeader == "Authorization" && h.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.APIKey)
	} else if h.cfg.APIHeader != "" {
		req.Header.Set(h.cfg.APIHeader, h.cfg.APIKey)
	}
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embedding response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("embedding endpoint error: %s: %s", resp.Status, string(body))
	}

	var er embedResponse
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("parse embedding response: %w", err)
	}
	if len(er.Data) != len(inputs) {
		return nil, fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), len(inputs))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}
