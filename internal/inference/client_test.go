package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/smallbiznis/logoforge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	cfg := config.Config{}
	cfg.Inference.ServerURL = url
	cfg.Inference.APIKey = "ai-key"
	return NewClient(cfg)
}

func TestGenerateDecodesImages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer ai-key", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "coffee shop", body["prompt"])

		_ = json.NewEncoder(w).Encode(map[string]string{
			"preview": base64.StdEncoding.EncodeToString([]byte("preview-png")),
			"hires":   "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hires-png")),
		})
	}))
	defer srv.Close()

	images, err := newTestClient(srv.URL).Generate(context.Background(), "coffee shop")
	require.NoError(t, err)
	assert.Equal(t, []byte("preview-png"), images.Preview)
	assert.Equal(t, []byte("hires-png"), images.HighRes)
}

func TestGenerateUpstreamFailures(t *testing.T) {
	tests := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		},
		"missing hires": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"preview":"cHJldmlldw=="}`))
		},
		"bad base64": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"preview":"%%%","hires":"cHJldmlldw=="}`))
		},
		"not json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<html>`))
		},
	}
	for name, handler := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(handler)
			defer srv.Close()

			_, err := newTestClient(srv.URL).Generate(context.Background(), "x")
			if !errors.Is(err, ErrUpstream) {
				t.Fatalf("expected ErrUpstream, got %v", err)
			}
		})
	}
}

func TestGenerateNotConfigured(t *testing.T) {
	_, err := NewClient(config.Config{}).Generate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
