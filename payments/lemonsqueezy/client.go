package lemonsqueezy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.lemonsqueezy.com"

// Client talks to the Lemon Squeezy REST API for the two lookups the verify
// endpoints need: license validation and customer-subscribed checks.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates an API client. baseURL is overridable for tests; empty
// means production.
func NewClient(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.api+json")
	req.Header.Set("Content-Type", "application/vnd.api+json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	return req, nil
}

// ValidateLicense checks a license key via /v1/licenses/validate. On a valid
// license it returns the buyer email (activation user name when the license
// record carries no email, matching the checkout flow's data).
func (c *Client) ValidateLicense(ctx context.Context, key string) (email string, valid bool, err error) {
	payload, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"type":       "licenses",
			"attributes": map[string]string{"key": key},
		},
	})
	if err != nil {
		return "", false, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/licenses/validate", payload)
	if err != nil {
		return "", false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("lemonsqueezy: validate license: status %d", resp.StatusCode)
	}
	var out struct {
		Data struct {
			Attributes struct {
				Valid      bool   `json:"valid"`
				Email      string `json:"email"`
				Activation struct {
					UserName string `json:"user_name"`
				} `json:"activation"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", false, fmt.Errorf("lemonsqueezy: decode license response: %w", err)
	}
	if !out.Data.Attributes.Valid {
		return "", false, nil
	}
	email = out.Data.Attributes.Email
	if email == "" {
		email = out.Data.Attributes.Activation.UserName
	}
	return email, email != "", nil
}

// CustomerSubscribed reports whether a customer record with the given email
// exists and is in "subscribed" status.
func (c *Client) CustomerSubscribed(ctx context.Context, email string) (bool, error) {
	req, err := c.newRequest(ctx, http.MethodGet,
		"/v1/customers?filter[email]="+url.QueryEscape(email), nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("lemonsqueezy: customer lookup: status %d", resp.StatusCode)
	}
	var out struct {
		Data []struct {
			Attributes struct {
				Email  string `json:"email"`
				Status string `json:"status"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("lemonsqueezy: decode customer response: %w", err)
	}
	for _, cust := range out.Data {
		if strings.EqualFold(cust.Attributes.Email, email) && cust.Attributes.Status == "subscribed" {
			return true, nil
		}
	}
	return false, nil
}
