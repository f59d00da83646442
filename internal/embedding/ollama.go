package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pgvector/pgvector-go"
)

// OllamaProvider generates embeddings using a local Ollama server. This
// is the preferred provider for a single-user kernel: embeddings stay
// on-device, no external API costs, no data leaves the machine.
type OllamaProvider struct {
	baseURL       string
	model         string
	httpClient    *http.Client
	dimensions    int
	maxInputChars int
}

// defaultMaxInputChars is a safe default for mxbai-embed-large (512
// tokens). At ~4 chars/token for English prose, 2000 chars is ~500
// tokens; code-heavy content runs closer to 2-3 chars/token, so this is
// slightly aggressive there. The /api/embed endpoint truncates as a
// safety net if we overshoot.
const defaultMaxInputChars = 2000

// NewOllamaProvider creates a provider that calls Ollama's embedding
// API. model should be an embedding model such as "mxbai-embed-large" or
// "nomic-embed-text"; dimensions must match its native output size.
func NewOllamaProvider(baseURL, model string, dimensions int) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL:       baseURL,
		model:         model,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		dimensions:    dimensions,
		maxInputChars: defaultMaxInputChars,
	}
}

func (p *OllamaProvider) Dimensions() int { return p.dimensions }

type ollamaEmbedRequest struct {
	Model string `json:"model"`
	Input any    `json:"input"` // string or []string
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates a single embedding vector from text, truncating at a
// word boundary to stay within the model's context window.
func (p *OllamaProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	text = truncateText(text, p.maxInputChars)

	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Input: text})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("ollama: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("ollama: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("ollama: send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return pgvector.Vector{}, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return pgvector.Vector{}, fmt.Errorf("ollama: decode response: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return pgvector.Vector{}, fmt.Errorf("ollama: empty embedding returned")
	}
	return pgvector.NewVector(result.Embeddings[0]), nil
}

// ollamaMaxConcurrency bounds parallel fallback requests, to avoid
// overwhelming a single local GPU.
const ollamaMaxConcurrency = 4

// EmbedBatch generates embeddings for multiple texts via Ollama's native
// batch endpoint, falling back to concurrent single-text requests if the
// batch call fails (older Ollama versions without array input support).
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	truncated := make([]string, len(texts))
	for i, t := range texts {
		truncated[i] = truncateText(t, p.maxInputChars)
	}

	if len(truncated) == 1 {
		vec, err := p.Embed(ctx, truncated[0])
		if err != nil {
			return nil, err
		}
		return []pgvector.Vector{vec}, nil
	}

	vecs, err := p.embedBatchNative(ctx, truncated)
	if err == nil {
		return vecs, nil
	}
	slog.Debug("ollama: native batch failed, falling back to concurrent single requests", "error", err)

	return p.embedBatchConcurrent(ctx, truncated)
}

func (p *OllamaProvider) embedBatchNative(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: p.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal batch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("ollama: create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: send batch request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("ollama: batch status %d: %s", resp.StatusCode, string(body))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama: decode batch response: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}

	vecs := make([]pgvector.Vector, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("ollama: empty embedding at index %d", i)
		}
		vecs[i] = pgvector.NewVector(emb)
	}
	return vecs, nil
}

// embedBatchConcurrent is the fallback: concurrent single-text requests
// bounded by a semaphore.
func (p *OllamaProvider) embedBatchConcurrent(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vecs := make([]pgvector.Vector, len(texts))
	errs := make([]error, len(texts))
	sem := make(chan struct{}, ollamaMaxConcurrency)

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func(idx int, t string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			vec, err := p.Embed(ctx, t)
			if err != nil {
				errs[idx] = fmt.Errorf("ollama: batch item %d: %w", idx, err)
				return
			}
			vecs[idx] = vec
		}(i, text)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return vecs, nil
}

// truncateText cuts text to at most maxChars bytes, backing off to a rune
// boundary so a multi-byte rune is never split, then to the last preceding
// space if there is one; text with no space before the cut is split
// mid-word.
func truncateText(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !isRuneBoundary(text, cut) {
		cut--
	}
	if idx := strings.LastIndexByte(text[:cut], ' '); idx > 0 {
		cut = idx
	}
	return text[:cut]
}

func isRuneBoundary(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return i == 0 || s[i]&0xC0 != 0x80
}
