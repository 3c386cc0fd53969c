// Package llm sends health summaries to the Gemini generateContent endpoint
// and returns the generated advisory text.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gmsas95/medtwin/internal/config"
	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/security"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Client provides Gemini API access
type Client struct {
	cfg     config.LLMConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a new Gemini client
func NewClient(cfg config.LLMConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60
	}

	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30
	}

	c := &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:    "gemini",
		Timeout: time.Duration(cooldown) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			// Caller mistakes and cancellations say nothing about provider health
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, apperrors.ErrEmptyResponse)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return c
}

// Part is one piece of content
type Part struct {
	Text string `json:"text"`
}

// Content is a list of parts
type Content struct {
	Parts []Part `json:"parts"`
}

// GenerateRequest is the generateContent request body
type GenerateRequest struct {
	Contents []Content `json:"contents"`
}

// GenerateResponse is the subset of the generateContent response we read
type GenerateResponse struct {
	Candidates []struct {
		Content Content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Text returns the first candidate's first part
func (r *GenerateResponse) Text() string {
	if len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Parts[0].Text
}

// Generate sends prompt and returns the generated text. apiKey wins over the
// configured key. Failures are returned as is; nothing is retried.
func (c *Client) Generate(ctx context.Context, prompt, apiKey string) (string, error) {
	key := apiKey
	if key == "" {
		key = c.cfg.APIKey
	}
	if key == "" {
		return "", apperrors.ErrCredentialMissing
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperrors.WithCause(apperrors.ErrRateLimited, err)
		}
	}

	text, err := c.breaker.Execute(func() (string, error) {
		return c.generate(ctx, prompt, key)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", apperrors.WithCause(apperrors.ErrProviderUnavailable, err)
	}
	return text, err
}

func (c *Client) generate(ctx context.Context, prompt, key string) (string, error) {
	body, err := json.Marshal(GenerateRequest{
		Contents: []Content{{Parts: []Part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint(key), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		// url.Error would echo the key in the query string
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var result GenerateResponse
	decodeErr := json.Unmarshal(respBody, &result)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(respBody))
		if decodeErr == nil && result.Error != nil && result.Error.Message != "" {
			msg = result.Error.Message
		}
		c.logger.Warn("Gemini request failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", c.cfg.Model),
		)
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, security.RedactSecrets(msg, key))
	}

	if decodeErr != nil {
		return "", apperrors.WithCause(apperrors.ErrEmptyResponse, decodeErr)
	}

	text := result.Text()
	if text == "" {
		return "", apperrors.ErrEmptyResponse
	}

	return text, nil
}

func (c *Client) endpoint(key string) string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		url.PathEscape(c.cfg.Model),
		url.QueryEscape(key),
	)
}

// State reports the circuit breaker state
func (c *Client) State() string {
	return c.breaker.State().String()
}
