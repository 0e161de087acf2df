package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-coach/internal/httpc"
)

// HTTP is the backend chat client.
type HTTP struct {
	config *Config
	client *http.Client
	logger *slog.Logger
}

// NewHTTP creates a chat client.
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
		logger: logger.With("component", "chat.http"),
	}, nil
}

type requestBody struct {
	Text                string    `json:"text"`
	ConversationHistory []Message `json:"conversation_history"`
	CurrentSlide        int       `json:"current_slide"`
	SlideContext        string    `json:"slide_context"`
	LessonID            string    `json:"lesson_id,omitempty"`
	IsGreetingTrigger   bool      `json:"is_greeting_trigger,omitempty"`
}

type responseBody struct {
	Response string `json:"response"`
	Greeting bool   `json:"greeting"`
}

// Endpoint returns the path a request is routed to.
func Endpoint(lessonID string) string {
	if lessonID == "" {
		return "/chat"
	}
	return "/lesson/" + url.PathEscape(lessonID) + "/chat"
}

// Send posts req and returns the reply.
func (h *HTTP) Send(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}

	path := Endpoint(req.LessonID)
	ctx, span := tracer.Start(ctx, "chat request", trace.WithAttributes(
		attribute.String("chat.endpoint", path),
		attribute.Int("chat.history", len(req.History)),
		attribute.Bool("chat.greeting", req.IsGreetingTrigger),
	))
	defer span.End()

	start := time.Now()

	history := req.History
	if history == nil {
		history = []Message{}
	}
	body, err := json.Marshal(requestBody{
		Text:                req.Text,
		ConversationHistory: history,
		CurrentSlide:        req.PositionIndex,
		SlideContext:        req.PositionLabel,
		LessonID:            req.LessonID,
		IsGreetingTrigger:   req.IsGreetingTrigger,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := h.doWithRetry(ctx, path, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		requestFailures.Add(ctx, 1)
		return nil, err
	}
	defer resp.Body.Close()

	var rb responseBody
	if err := json.NewDecoder(resp.Body).Decode(&rb); err != nil {
		err = fmt.Errorf("decode response: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	h.logger.Debug("chat reply",
		"endpoint", path,
		"history", len(req.History),
		"chars", len(rb.Response),
		"latency_ms", latency,
	)

	return &Response{
		Text:      rb.Response,
		Greeting:  rb.Greeting,
		LatencyMs: latency,
	}, nil
}

func (h *HTTP) doWithRetry(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.BaseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if h.config.AuthToken != "" {
			req.Header.Set("Authorization", "Bearer "+h.config.AuthToken)
		}

		resp, err := h.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("chat %s: %w", path, err)
			continue
		}
		if resp.StatusCode == http.StatusOK {
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
			"status", apiErr.StatusCode,
		)
	}

	return nil, lastErr
}

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
	return &APIError{StatusCode: resp.StatusCode, Message: message, Endpoint: path}
}

var _ Client = (*HTTP)(nil)
