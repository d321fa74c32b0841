package analysis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/jstittsworth/auction-copilot/pkg/config"
)

// ErrLLMUnavailable indicates the analysis endpoint failed. Non-fatal; the
// draft continues without analysis.
var ErrLLMUnavailable = errors.New("llm unavailable")

// ErrLLMTimeout indicates the request exceeded its wall-clock budget.
var ErrLLMTimeout = errors.New("llm timeout")

// ErrLLMCancelled indicates the request was superseded or the engine is
// shutting down.
var ErrLLMCancelled = errors.New("llm request cancelled")

const systemPrompt = "You are an expert fantasy baseball auction advisor. " +
	"Given the live draft context, recommend a bid ceiling for the nominated player " +
	"and explain the key considerations in a few short paragraphs. Be decisive."

// messageRequest is the payload for the messages endpoint.
type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	Stream    bool      `json:"stream"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamEvent is one decoded server-sent event from the streaming response.
type streamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client streams analysis from the remote language-model endpoint. Requests
// are rate limited and guarded by a circuit breaker; cancellation is observed
// at chunk boundaries.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	timeout    time.Duration
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Entry
}

func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	entry := log.WithField("component", "analysis")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-endpoint",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 3
		},
		IsSuccessful: func(err error) bool {
			// Supersession is routine, not an endpoint failure.
			return err == nil || errors.Is(err, ErrLLMCancelled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			entry.WithFields(logrus.Fields{
				"circuit":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Info("LLM circuit breaker state changed")
		},
	})

	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:       4,
				IdleConnTimeout:    90 * time.Second,
				DisableCompression: true,
			},
		},
		apiKey:    cfg.LLMAPIKey,
		baseURL:   strings.TrimRight(cfg.LLMBaseURL, "/"),
		model:     cfg.LLMModel,
		maxTokens: cfg.LLMMaxTokens,
		timeout:   time.Duration(cfg.LLMTimeoutSeconds) * time.Second,
		limiter:   rate.NewLimiter(rate.Every(2*time.Second), 3),
		breaker:   cb,
		log:       entry,
	}
}

// Timeout returns the hard wall-clock budget for one request.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Stream posts the prompt and delivers decoded text chunks to onChunk as they
// arrive. Returns the full accumulated text. The context is checked between
// chunk reads; cancellation closes the upstream connection within one chunk.
func (c *Client) Stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", classify(err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.stream(ctx, prompt, onChunk)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: circuit open", ErrLLMUnavailable)
		}
		return "", classify(err)
	}
	return out.(string), nil
}

func (c *Client) stream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	body, err := json.Marshal(messageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    systemPrompt,
		Messages:  []message{{Role: "user", Content: prompt}},
		Stream:    true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: endpoint returned status %d", ErrLLMUnavailable, resp.StatusCode)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			c.log.WithError(err).Debug("Skipping undecodable stream event")
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				full.WriteString(event.Delta.Text)
				onChunk(event.Delta.Text)
			}
		case "error":
			return full.String(), fmt.Errorf("%w: %s", ErrLLMUnavailable, event.Error.Message)
		case "message_stop":
			return full.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return full.String(), ctx.Err()
		}
		return full.String(), err
	}
	return full.String(), nil
}

// classify folds transport-level errors into the engine's error kinds.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrLLMUnavailable), errors.Is(err, ErrLLMTimeout), errors.Is(err, ErrLLMCancelled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrLLMTimeout, err)
	case errors.Is(err, context.Canceled):
		return ErrLLMCancelled
	default:
		return fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}
}
