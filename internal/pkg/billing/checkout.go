package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vibecodementor/VibeMentor/internal/pkg/env"
)

const defaultLemonsqueezyAPIBaseURL = "https://api.lemonsqueezy.com"

// LemonsqueezyClient creates checkouts and lists store products. The product
// listing is cached as an explicit value with its fetch time so staleness is
// a checked TTL, not a module-level timestamp.
type LemonsqueezyClient struct {
	APIKey     string
	StoreID    string
	VariantID  string
	APIBaseURL string
	HTTPClient *http.Client

	productTTL time.Duration
	productMu  sync.Mutex
	products   cachedProducts

	// now is injectable for cache TTL tests.
	now func() time.Time
}

type cachedProducts struct {
	data      []Product
	fetchedAt time.Time
}

// Product is a purchasable variant exposed to the pricing page API.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Interval string `json:"interval"`
}

func NewLemonsqueezyClientFromEnv() *LemonsqueezyClient {
	return &LemonsqueezyClient{
		APIKey:     strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_API_KEY", "")),
		StoreID:    strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_STORE_ID", "")),
		VariantID:  strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_VARIANT_ID", "")),
		APIBaseURL: strings.TrimSpace(env.GetEnv("LEMONSQUEEZY_API_BASE_URL", defaultLemonsqueezyAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		productTTL: 10 * time.Minute,
		now:        time.Now,
	}
}

// CreateCheckout returns a hosted checkout URL carrying the user identity in
// custom data so the webhook can reconcile the payment later.
func (c *LemonsqueezyClient) CreateCheckout(ctx context.Context, userID uint, email string) (string, error) {
	if c.APIKey == "" || c.StoreID == "" || c.VariantID == "" {
		return "", errors.New("LEMONSQUEEZY_API_KEY/STORE_ID/VARIANT_ID are not configured")
	}
	if userID == 0 {
		return "", errors.New("user id is required")
	}

	payload := map[string]any{
		"data": map[string]any{
			"type": "checkouts",
			"attributes": map[string]any{
				"checkout_data": map[string]any{
					"email": strings.TrimSpace(email),
					"custom": map[string]string{
						"userId": strconv.FormatUint(uint64(userID), 10),
					},
				},
			},
			"relationships": map[string]any{
				"store": map[string]any{
					"data": map[string]string{"type": "stores", "id": c.StoreID},
				},
				"variant": map[string]any{
					"data": map[string]string{"type": "variants", "id": c.VariantID},
				},
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIBaseURL+"/v1/checkouts", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Accept", "application/vnd.api+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("lemonsqueezy checkout failed: status=%d body=%s", resp.StatusCode, string(respBody))
	}

	var out struct {
		Data struct {
			Attributes struct {
				URL string `json:"url"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Data.Attributes.URL) == "" {
		return "", errors.New("lemonsqueezy checkout response missing url")
	}
	return out.Data.Attributes.URL, nil
}

// ListProducts returns the store's variants, served from cache while fresh.
func (c *LemonsqueezyClient) ListProducts(ctx context.Context) ([]Product, error) {
	c.productMu.Lock()
	if c.products.data != nil && c.now().Sub(c.products.fetchedAt) < c.productTTL {
		cached := c.products.data
		c.productMu.Unlock()
		return cached, nil
	}
	c.productMu.Unlock()

	products, err := c.fetchProducts(ctx)
	if err != nil {
		return nil, err
	}

	c.productMu.Lock()
	c.products = cachedProducts{data: products, fetchedAt: c.now()}
	c.productMu.Unlock()
	return products, nil
}

func (c *LemonsqueezyClient) fetchProducts(ctx context.Context) ([]Product, error) {
	if c.APIKey == "" || c.StoreID == "" {
		return nil, errors.New("LEMONSQUEEZY_API_KEY/STORE_ID are not configured")
	}

	url := fmt.Sprintf("%s/v1/variants?filter[store_id]=%s", c.APIBaseURL, c.StoreID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/vnd.api+json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("lemonsqueezy variants failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var raw struct {
		Data []struct {
			ID         string `json:"id"`
			Attributes struct {
				Name     string `json:"name"`
				Price    int64  `json:"price"`
				Interval string `json:"interval"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}

	products := make([]Product, 0, len(raw.Data))
	for _, d := range raw.Data {
		products = append(products, Product{
			ID:       d.ID,
			Name:     d.Attributes.Name,
			Price:    d.Attributes.Price,
			Interval: d.Attributes.Interval,
		})
	}
	return products, nil
}
