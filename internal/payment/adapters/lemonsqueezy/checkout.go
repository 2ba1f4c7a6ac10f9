package lemonsqueezy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/logoforge/internal/config"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
)

// CheckoutClient creates hosted checkouts through the LemonSqueezy API.
type CheckoutClient struct {
	apiURL      string
	apiKey      string
	storeID     string
	redirectURL string
	httpClient  *http.Client
}

func NewCheckoutClient(cfg config.Config) *CheckoutClient {
	return &CheckoutClient{
		apiURL:      strings.TrimRight(cfg.LemonSqueezy.APIURL, "/"),
		apiKey:      cfg.LemonSqueezy.APIKey,
		storeID:     cfg.LemonSqueezy.StoreID,
		redirectURL: cfg.LemonSqueezy.RedirectURL,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}
}

type checkoutBody struct {
	Data checkoutData `json:"data"`
}

type checkoutData struct {
	Type          string                `json:"type"`
	Attributes    checkoutAttributes    `json:"attributes"`
	Relationships checkoutRelationships `json:"relationships"`
}

type checkoutAttributes struct {
	CheckoutData struct {
		Email  string            `json:"email,omitempty"`
		Custom map[string]string `json:"custom"`
	} `json:"checkout_data"`
	ProductOptions struct {
		RedirectURL string `json:"redirect_url,omitempty"`
	} `json:"product_options"`
}

type relationship struct {
	Data struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"data"`
}

type checkoutRelationships struct {
	Store   relationship `json:"store"`
	Variant relationship `json:"variant"`
}

type checkoutResponse struct {
	Data struct {
		Attributes struct {
			URL string `json:"url"`
		} `json:"attributes"`
	} `json:"data"`
}

func (c *CheckoutClient) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (string, error) {
	if c == nil || c.apiKey == "" || c.storeID == "" {
		return "", paymentdomain.ErrCheckoutUnavailable
	}

	body := checkoutBody{Data: checkoutData{Type: "checkouts"}}
	body.Data.Attributes.CheckoutData.Email = req.Email
	body.Data.Attributes.CheckoutData.Custom = map[string]string{"user_id": req.UserID}
	if req.GenerationID != "" {
		body.Data.Attributes.CheckoutData.Custom["generation_id"] = req.GenerationID
	}
	body.Data.Attributes.ProductOptions.RedirectURL = c.redirectURL
	body.Data.Relationships.Store.Data.Type = "stores"
	body.Data.Relationships.Store.Data.ID = c.storeID
	body.Data.Relationships.Variant.Data.Type = "variants"
	body.Data.Relationships.Variant.Data.ID = req.VariantID

	encoded, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v1/checkouts", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/vnd.api+json")
	httpReq.Header.Set("Accept", "application/vnd.api+json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", paymentdomain.ErrCheckoutFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", paymentdomain.ErrCheckoutFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", paymentdomain.ErrCheckoutFailed, resp.StatusCode)
	}

	var decoded checkoutResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("%w: %v", paymentdomain.ErrCheckoutFailed, err)
	}
	url := strings.TrimSpace(decoded.Data.Attributes.URL)
	if url == "" {
		return "", fmt.Errorf("%w: missing checkout url", paymentdomain.ErrCheckoutFailed)
	}
	return url, nil
}
