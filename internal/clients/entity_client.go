package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"import-service/internal/importer"
)

// EntityClient performs the create-calls against the backend entity API
// (products-service, inventory-service, ...). It is the Creator the
// import runner drains rows into.
type EntityClient struct {
	baseURL    string
	tenantID   string
	httpClient *http.Client
}

// CreateResponse is the envelope the entity services answer with.
type CreateResponse struct {
	Success bool `json:"success"`
	Data    *struct {
		ID string `json:"id"`
	} `json:"data,omitempty"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewEntityClient creates a client for one tenant against the configured
// entity API base URL.
func NewEntityClient(tenantID string) *EntityClient {
	baseURL := os.Getenv("ENTITY_API_URL")
	if baseURL == "" {
		baseURL = "http://api-gateway:8080/api/v1"
	}

	return &EntityClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		tenantID: tenantID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewEntityClientWithURL is used by tests and by callers that already
// resolved the base URL.
func NewEntityClientWithURL(baseURL, tenantID string) *EntityClient {
	return &EntityClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		tenantID: tenantID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Create POSTs one row payload to the endpoint and returns the created
// entity ID. HTTP 429 maps to importer.ErrRateLimited so the runner can
// back off and retry the same row.
func (c *EntityClient) Create(ctx context.Context, endpoint string, payload map[string]interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	url := c.baseURL + "/" + strings.TrimPrefix(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", importer.ErrRateLimited
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		var envelope CreateResponse
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error != nil {
			return "", fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return "", fmt.Errorf("create failed: %d - %s", resp.StatusCode, string(raw))
	}

	var envelope CreateResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("failed to decode create response: %w", err)
	}
	if envelope.Data == nil {
		return "", nil
	}
	return envelope.Data.ID, nil
}
