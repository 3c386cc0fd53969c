package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gmsas95/medtwin/internal/config"
	apperrors "github.com/gmsas95/medtwin/internal/errors"
	"github.com/gmsas95/medtwin/internal/metrics"
	"github.com/gmsas95/medtwin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okBody = `{"candidates":[{"content":{"parts":[{"text":"Keep going."}],"role":"model"}}]}`

func testConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		BaseURL:         baseURL,
		Model:           "gemini-pro",
		Timeout:         5,
		BreakerFailures: 2,
		BreakerCooldown: 60,
	}
}

func TestGenerate_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotReq GenerateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	text, err := c.Generate(context.Background(), "hello", "secret")
	require.NoError(t, err)

	assert.Equal(t, "Keep going.", text)
	assert.Equal(t, "/models/gemini-pro:generateContent", gotPath)
	assert.Equal(t, "secret", gotKey)
	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 1)
	assert.Equal(t, "hello", gotReq.Contents[0].Parts[0].Text)
}

func TestGenerate_CallerKeyWins(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIKey = "configured"
	c := NewClient(cfg, nil)

	_, err := c.Generate(context.Background(), "p", "")
	require.NoError(t, err)
	assert.Equal(t, "configured", gotKey)

	_, err = c.Generate(context.Background(), "p", "override")
	require.NoError(t, err)
	assert.Equal(t, "override", gotKey)
}

func TestGenerate_MissingCredential(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.Generate(context.Background(), "p", "")

	assert.True(t, errors.Is(err, apperrors.ErrCredentialMissing))
	assert.Equal(t, int32(0), calls.Load(), "no request without a key")
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantMsg string
	}{
		{"non-200 with error body", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, nil, "API key not valid"},
		{"non-200 plain", http.StatusInternalServerError, "boom", nil, "status 500"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, apperrors.ErrEmptyResponse, ""},
		{"no parts", http.StatusOK, `{"candidates":[{"content":{"parts":[]}}]}`, apperrors.ErrEmptyResponse, ""},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":""}]}}]}`, apperrors.ErrEmptyResponse, ""},
		{"malformed", http.StatusOK, `not json`, apperrors.ErrEmptyResponse, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(testConfig(srv.URL), nil)
			_, err := c.Generate(context.Background(), "p", "k")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestGenerate_NetworkErrorHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(testConfig(url), nil)
	_, err := c.Generate(context.Background(), "p", "super-secret")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "super-secret")
}

func TestGenerate_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.Generate(context.Background(), "p", "k")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerate_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	for i := 0; i < 2; i++ {
		_, err := c.Generate(context.Background(), "p", "k")
		require.Error(t, err)
	}
	assert.Equal(t, "open", c.State())

	_, err := c.Generate(context.Background(), "p", "k")
	assert.True(t, errors.Is(err, apperrors.ErrProviderUnavailable))
	assert.Equal(t, int32(2), calls.Load(), "open breaker short-circuits")
}

func TestGenerate_EmptyResponseDoesNotTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	for i := 0; i < 3; i++ {
		_, err := c.Generate(context.Background(), "p", "k")
		assert.True(t, errors.Is(err, apperrors.ErrEmptyResponse))
	}
	assert.Equal(t, "closed", c.State())
}

func TestGenerate_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(okBody))
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RPS = 0.001
	cfg.Burst = 1
	c := NewClient(cfg, nil)

	_, err := c.Generate(context.Background(), "p", "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Generate(ctx, "p", "k")
	assert.True(t, errors.Is(err, apperrors.ErrRateLimited))
}

// Advisor Tests

type stubGenerator struct {
	prompt string
	apiKey string
	text   string
	err    error
}

func (s *stubGenerator) Generate(_ context.Context, prompt, apiKey string) (string, error) {
	s.prompt = prompt
	s.apiKey = apiKey
	return s.text, s.err
}

func testSnapshot() model.Snapshot {
	return model.New(map[string]model.Metric{
		"glucose": {Name: "Blood Glucose", Baseline: 145, Target: 120},
	}).Snapshot()
}

func TestAdvisor_Success(t *testing.T) {
	gen := &stubGenerator{text: "Looks stable."}
	rec := metrics.New()
	a := NewAdvisor(gen, rec, nil)

	advice := a.Ask(context.Background(), testSnapshot(), "k")

	assert.Equal(t, Advice{Text: "Looks stable."}, advice)
	assert.Equal(t, "k", gen.apiKey)
	assert.True(t, strings.HasPrefix(gen.prompt, "Patient Health Summary:\n"))
	assert.Contains(t, gen.prompt, "- Blood Glucose: Current=145")
}

func TestAdvisor_ErrorsBecomeStrings(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"empty response", apperrors.ErrEmptyResponse, "No response from Gemini AI"},
		{"missing key", apperrors.ErrCredentialMissing, "missing API credential"},
		{"plain", errors.New("API error (status 403): denied"), "API error (status 403): denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdvisor(&stubGenerator{err: tt.err}, nil, nil)
			advice := a.Ask(context.Background(), testSnapshot(), "")
			assert.Empty(t, advice.Text)
			assert.Equal(t, tt.want, advice.Error)
		})
	}
}

func TestGenerate_ErrorBodyRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"key super-secret-key is suspended; see ` + r.URL.String() + `"}}`))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.Generate(context.Background(), "p", "super-secret-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.NotContains(t, err.Error(), "super-secret-key")
}
