// Package llm is the gateway to the external text-reasoning service used for
// tier-3 semantic header matching and for the detector's header-row fallback.
// The service is treated as a black box: one batched JSON call per file, plus
// a free-text single-value query, both behind a bounded retry policy.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sheetmap/internal"
	"sheetmap/internal/config"
	"sheetmap/internal/metrics"
)

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	backoff    time.Duration
}

func NewClient(cfg config.Config) *Client {
	backoff := time.Duration(cfg.GeminiBackoffMs) * time.Millisecond
	if cfg.GeminiBackoffMs <= 0 {
		backoff = time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.GeminiTimeoutMs) * time.Millisecond},
		backoff:    backoff,
	}
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// BatchMatch sends every unmapped header in a single request and returns one
// mapping per header, in input order. The returned mappings always carry
// method=semantic regardless of what the backend reported; a missing
// confidence defaults to medium. Count mismatches are repaired positionally:
// short responses are padded with none/low mappings, long ones truncated.
// A failure after all retries returns an error; callers degrade, not retry.
func (c *Client) BatchMatch(ctx context.Context, headers, parameters, assets []string) ([]internal.HeaderMapping, error) {
	if len(headers) == 0 {
		return []internal.HeaderMapping{}, nil
	}

	prompt := buildBatchPrompt(headers, parameters, assets)
	text, err := c.generate(ctx, prompt, true)
	if err != nil {
		metrics.SemanticCalls.WithLabelValues("batch_match", "error").Inc()
		return nil, err
	}

	var mappings []internal.HeaderMapping
	if err := json.Unmarshal([]byte(text), &mappings); err != nil {
		metrics.SemanticCalls.WithLabelValues("batch_match", "unparseable").Inc()
		return nil, fmt.Errorf("parse batch match response: %w", err)
	}
	metrics.SemanticCalls.WithLabelValues("batch_match", "ok").Inc()

	if len(mappings) != len(headers) {
		slog.Warn("semantic backend returned wrong mapping count", "want", len(headers), "got", len(mappings))
	}

	out := make([]internal.HeaderMapping, 0, len(headers))
	for i, header := range headers {
		if i >= len(mappings) {
			out = append(out, internal.HeaderMapping{
				OriginalHeader: header,
				Method:         internal.MethodNone,
				Confidence:     internal.ConfidenceLow,
			})
			continue
		}
		mapping := mappings[i]
		mapping.Method = internal.MethodSemantic
		if mapping.Confidence == "" {
			mapping.Confidence = internal.ConfidenceMedium
		}
		if strings.TrimSpace(mapping.OriginalHeader) == "" {
			mapping.OriginalHeader = header
		}
		out = append(out, sanitizeMapping(mapping))
	}
	return out, nil
}

// SimpleQuery runs a free-text query and returns the raw response text, or
// empty text when every attempt failed. It never returns an error: callers
// must treat the empty answer as a first-class outcome.
func (c *Client) SimpleQuery(ctx context.Context, prompt string) string {
	text, err := c.generate(ctx, prompt, false)
	if err != nil {
		metrics.SemanticCalls.WithLabelValues("simple_query", "error").Inc()
		slog.Warn("simple query failed", "error", err)
		return ""
	}
	metrics.SemanticCalls.WithLabelValues("simple_query", "ok").Inc()
	return text
}

func (c *Client) generate(ctx context.Context, prompt string, structured bool) (string, error) {
	if strings.TrimSpace(c.cfg.GeminiAPIKey) == "" {
		return "", errors.New("missing GEMINI_API_KEY")
	}

	reqBody := generateRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}
	if structured {
		reqBody.GenerationConfig = &generationConfig{ResponseMimeType: "application/json"}
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.GeminiAPIBaseURL, "/"), c.cfg.GeminiModel, c.cfg.GeminiAPIKey)

	maxRetries := c.cfg.GeminiMaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			metrics.SemanticRetries.Inc()
			// Exponential backoff: 1, 2, 4, ... backoff units.
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.backoff * time.Duration(1<<(attempt-1))):
			}
		}

		text, err := c.doGenerate(ctx, url, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		slog.Debug("semantic backend attempt failed", "attempt", attempt+1, "error", err)
	}
	return "", fmt.Errorf("semantic backend failed after %d attempts: %w", maxRetries, lastErr)
}

func (c *Client) doGenerate(ctx context.Context, url string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("gemini status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini response has no candidates")
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

func buildBatchPrompt(headers, parameters, assets []string) string {
	var sb strings.Builder
	sb.WriteString("You are mapping spreadsheet column headers to a standardized registry.\n\n")
	sb.WriteString("REGISTRY PARAMETERS:\n")
	sb.WriteString(strings.Join(parameters, ", "))
	sb.WriteString("\n\nREGISTRY ASSETS:\n")
	sb.WriteString(strings.Join(assets, ", "))
	sb.WriteString("\n\nUNMAPPED HEADERS:\n")
	for i, h := range headers {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, h)
	}
	sb.WriteString(`
For each header, determine:
1. The best matching parameter (or null if none)
2. The best matching asset (or null if none)
3. Confidence level: high, medium, or low

Return a JSON array of mappings with the following structure:
[
  {
    "original_header": "header text",
    "matched_parameter": "parameter name or null",
    "matched_asset": "asset name or null",
    "method": "semantic",
    "confidence": "high|medium|low",
    "normalized_header": null
  }
]

`)
	fmt.Fprintf(&sb, "Ensure the array has exactly %d mappings in the same order as the input headers.", len(headers))
	return sb.String()
}

// sanitizeMapping drops blank matched fields so a mapping never carries an
// empty-string parameter or asset.
func sanitizeMapping(m internal.HeaderMapping) internal.HeaderMapping {
	if m.MatchedParameter != nil && strings.TrimSpace(*m.MatchedParameter) == "" {
		m.MatchedParameter = nil
	}
	if m.MatchedAsset != nil && strings.TrimSpace(*m.MatchedAsset) == "" {
		m.MatchedAsset = nil
	}
	if m.Confidence != internal.ConfidenceHigh && m.Confidence != internal.ConfidenceMedium && m.Confidence != internal.ConfidenceLow {
		m.Confidence = internal.ConfidenceMedium
	}
	return m
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
