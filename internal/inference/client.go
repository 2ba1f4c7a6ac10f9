package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/logoforge/internal/config"
)

var (
	ErrNotConfigured = errors.New("inference_not_configured")
	ErrUpstream      = errors.New("inference_upstream_failure")
)

// Images are the decoded PNGs returned for one prompt.
type Images struct {
	Preview []byte
	HighRes []byte
}

// Generator turns a prompt into a preview and a high-res image.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Images, error)
}

type Client struct {
	serverURL  string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.Config) *Client {
	timeout := cfg.Inference.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		serverURL: strings.TrimSpace(cfg.Inference.ServerURL),
		apiKey:    cfg.Inference.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Preview string `json:"preview"`
	HiRes   string `json:"hires"`
}

func (c *Client) Generate(ctx context.Context, prompt string) (Images, error) {
	if c == nil || c.serverURL == "" {
		return Images{}, ErrNotConfigured
	}

	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return Images{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL, bytes.NewReader(body))
	if err != nil {
		return Images{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Images{}, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Images{}, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Images{}, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}

	preview, err := decodeImage(decoded.Preview)
	if err != nil {
		return Images{}, fmt.Errorf("%w: preview: %v", ErrUpstream, err)
	}
	hires, err := decodeImage(decoded.HiRes)
	if err != nil {
		return Images{}, fmt.Errorf("%w: hires: %v", ErrUpstream, err)
	}
	return Images{Preview: preview, HighRes: hires}, nil
}

// decodeImage accepts raw base64 or a data URI.
func decodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if i := strings.Index(encoded, ","); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+1:]
	}
	if encoded == "" {
		return nil, errors.New("missing image data")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image")
	}
	return data, nil
}
