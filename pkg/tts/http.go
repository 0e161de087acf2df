package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-coach/internal/httpc"
)

const (
	providerHTTP = "http"

	pathStream        = "/stream"
	pathStreamChunked = "/stream-chunked"
	pathSettings      = "/tts/settings"

	headerChunkCount = "X-Chunk-Count"
)

// HTTP implements Provider against the coaching backend's synthesis endpoints.
type HTTP struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewHTTP creates a new backend synthesis provider.
func NewHTTP(opts ...Option) (*HTTP, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(cfg.Timeout)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTP{
		config: cfg,
		client: client,
		logger: logger.With("component", "tts.http"),
	}, nil
}

// Synthesize posts req to /stream.
func (h *HTTP) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	return h.synthesize(ctx, pathStream, req)
}

// SynthesizeChunked posts req to /stream-chunked; the backend splits the text.
func (h *HTTP) SynthesizeChunked(ctx context.Context, req Request) (*AudioResult, error) {
	return h.synthesize(ctx, pathStreamChunked, req)
}

func (h *HTTP) synthesize(ctx context.Context, path string, req Request) (*AudioResult, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	ctx, span := tracer.Start(ctx, "synthesize", trace.WithAttributes(
		attribute.String("tts.endpoint", path),
		attribute.Int("tts.chars", len(req.Text)),
	))
	defer span.End()

	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, WrapError(providerHTTP, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := h.doWithRetry(ctx, http.MethodPost, path, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		synthFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", path)))
		return nil, err
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		err = WrapError(providerHTTP, fmt.Errorf("read response: %w", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(audio) == 0 {
		span.SetStatus(codes.Error, ErrEmptyAudio.Error())
		return nil, WrapError(providerHTTP, ErrEmptyAudio)
	}

	chunks := 1
	if v := resp.Header.Get(headerChunkCount); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			chunks = n
		}
	}

	span.SetAttributes(attribute.Int("tts.bytes", len(audio)), attribute.Int("tts.chunks", chunks))
	h.logger.Debug("synthesized audio",
		"endpoint", path,
		"chars", len(req.Text),
		"bytes", len(audio),
		"chunks", chunks,
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:       audio,
		ContentType: resp.Header.Get("Content-Type"),
		ChunkCount:  chunks,
		CharCount:   len(req.Text),
		LatencyMs:   latency,
	}, nil
}

// flexFloat accepts both 1.0 and "1.0"; the backend returns strings for its
// built-in defaults.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse number %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

type settingsResponse struct {
	Provider    string     `json:"provider"`
	VoiceID     string     `json:"voice_id"`
	Speed       *flexFloat `json:"speed"`
	Temperature *flexFloat `json:"temperature"`
}

// Settings fetches the backend's voice settings. Missing fields take the
// DefaultSettings values.
func (h *HTTP) Settings(ctx context.Context) (Settings, error) {
	resp, err := h.doWithRetry(ctx, http.MethodGet, pathSettings, nil)
	if err != nil {
		return Settings{}, err
	}
	defer resp.Body.Close()

	var sr settingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return Settings{}, WrapError(providerHTTP, fmt.Errorf("decode settings: %w", err))
	}

	out := DefaultSettings()
	out.Provider = sr.Provider
	if sr.VoiceID != "" {
		out.VoiceID = sr.VoiceID
	}
	if sr.Speed != nil && *sr.Speed > 0 {
		out.Speed = float64(*sr.Speed)
	}
	if sr.Temperature != nil && *sr.Temperature >= 0 {
		out.Temperature = float64(*sr.Temperature)
	}
	return out, nil
}

// SettingsOrDefault returns the backend settings, or DefaultSettings when the
// backend cannot be reached.
func (h *HTTP) SettingsOrDefault(ctx context.Context) Settings {
	s, err := h.Settings(ctx)
	if err != nil {
		h.logger.Warn("tts settings unavailable, using defaults", "error", err)
		return DefaultSettings()
	}
	return s
}

// Health checks backend connectivity.
func (h *HTTP) Health(ctx context.Context) error {
	resp, err := h.doWithRetry(ctx, http.MethodGet, pathSettings, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Close releases resources.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// doWithRetry performs the request with retry logic. Non-2xx responses are
// returned as *APIError.
func (h *HTTP) doWithRetry(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.config.RetryDelay * time.Duration(attempt)):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, h.config.BaseURL+path, reader)
		if err != nil {
			return nil, WrapError(providerHTTP, fmt.Errorf("create request: %w", err))
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if h.config.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+h.config.AuthToken)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(providerHTTP, err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		apiErr := parseError(resp, path)
		resp.Body.Close()
		if !apiErr.IsRetryable() {
			return nil, apiErr
		}
		lastErr = apiErr
		h.logger.Warn("retrying request",
			"endpoint", path,
			"attempt", attempt+1,
			"status", resp.StatusCode,
		)
	}

	return nil, lastErr
}

// parseError reads an error response. The backend answers {"error": "..."}.
func parseError(resp *http.Response, path string) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var errResp struct {
		Error string `json:"error"`
	}
	message := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Endpoint:   path,
	}
}

// Verify HTTP implements Provider at compile time.
var (
	_ Provider       = (*HTTP)(nil)
	_ SettingsSource = (*HTTP)(nil)
)
