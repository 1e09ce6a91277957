// services/flyer_client.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// ProviderError marks a transient Flyer failure (transport error, timeout,
// non-200, provider-reported error). Callers fail open on it.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("flyer provider error: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// VerificationChecker is the external capability confirming the
// sponsor-subscription task: check(user, locale, template) -> allowed.
type VerificationChecker interface {
	Check(ctx context.Context, userID int64, languageCode string, message map[string]string) (bool, error)
}

type FlyerClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewFlyerClient(baseURL, apiKey string) *FlyerClient {
	return &FlyerClient{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type flyerCheckRequest struct {
	Key          string            `json:"key"`
	UserID       int64             `json:"user_id"`
	LanguageCode string            `json:"language_code,omitempty"`
	Message      map[string]string `json:"message,omitempty"`
}

type flyerCheckResponse struct {
	Skip  bool   `json:"skip"`
	Error string `json:"error,omitempty"`
}

// Check calls Flyer's /check endpoint. The allowed result means the user has
// completed (or is exempt from) the subscription tasks.
func (c *FlyerClient) Check(ctx context.Context, userID int64, languageCode string, message map[string]string) (bool, error) {
	reqBody := flyerCheckRequest{
		Key:          c.APIKey,
		UserID:       userID,
		LanguageCode: languageCode,
		Message:      message,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return false, &ProviderError{Err: err}
	}

	url := fmt.Sprintf("%s/check", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return false, &ProviderError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return false, &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		log.Printf("[FLYER] ❌ /check returned %d for user %d: %s", resp.StatusCode, userID, string(body))
		return false, &ProviderError{Err: fmt.Errorf("check returned status %d", resp.StatusCode)}
	}

	var out flyerCheckResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return false, &ProviderError{Err: fmt.Errorf("failed to decode check response: %w", err)}
	}
	if out.Error != "" {
		return false, &ProviderError{Err: fmt.Errorf("provider reported: %s", out.Error)}
	}

	return out.Skip, nil
}
