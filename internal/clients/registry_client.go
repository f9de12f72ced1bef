package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"import-service/internal/importer"
)

// registryCacheTTL controls how long resolved company records stay in
// Redis. Registry data changes rarely; a day keeps repeat imports of the
// same suppliers from burning the registry's tight rate limit.
const registryCacheTTL = 24 * time.Hour

// RegistryClient looks up company records in the external registry
// service by national tax identifier. Hits are cached in Redis when a
// client is available.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
	redis      *redis.Client
	logger     *logrus.Entry
}

// registryResponse is the wire shape of the registry's company endpoint.
type registryResponse struct {
	TaxID      string `json:"cnpj"`
	LegalName  string `json:"razao_social"`
	TradeName  string `json:"nome_fantasia"`
	Email      string `json:"email"`
	Phone      string `json:"ddd_telefone_1"`
	PostalCode string `json:"cep"`
	Street     string `json:"logradouro"`
	Number     string `json:"numero"`
	City       string `json:"municipio"`
	State      string `json:"uf"`
	StatusCode int    `json:"situacao_cadastral"`
}

// NewRegistryClient creates a registry client. redisClient may be nil,
// in which case lookups are uncached.
func NewRegistryClient(redisClient *redis.Client, logger *logrus.Logger) *RegistryClient {
	baseURL := os.Getenv("REGISTRY_API_URL")
	if baseURL == "" {
		baseURL = "https://brasilapi.com.br/api/cnpj/v1"
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &RegistryClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		redis:  redisClient,
		logger: logger.WithField("component", "registry-client"),
	}
}

// NewRegistryClientWithURL is used by tests.
func NewRegistryClientWithURL(baseURL string, redisClient *redis.Client, logger *logrus.Logger) *RegistryClient {
	c := NewRegistryClient(redisClient, logger)
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// Lookup resolves a company record by tax ID. Returns (nil, nil) when the
// registry has no record, importer.ErrRateLimited on the registry's
// throttle response, and an error for anything else.
func (c *RegistryClient) Lookup(ctx context.Context, taxID string) (*importer.RegistryRecord, error) {
	if cached := c.fromCache(ctx, taxID); cached != nil {
		return cached, nil
	}

	url := fmt.Sprintf("%s/%s", c.baseURL, taxID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, importer.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("registry lookup failed: %d", resp.StatusCode)
	}

	var payload registryResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode registry response: %w", err)
	}

	record := payload.toRecord(taxID)
	c.toCache(ctx, taxID, record)
	return record, nil
}

func (p *registryResponse) toRecord(taxID string) *importer.RegistryRecord {
	address := strings.TrimSpace(p.Street)
	if p.Number != "" {
		address = strings.TrimSpace(address + ", " + p.Number)
	}
	return &importer.RegistryRecord{
		TaxID:      taxID,
		LegalName:  p.LegalName,
		TradeName:  p.TradeName,
		Email:      p.Email,
		Phone:      p.Phone,
		PostalCode: p.PostalCode,
		Address:    address,
		City:       p.City,
		State:      p.State,
		StatusCode: fmt.Sprintf("%02d", p.StatusCode),
	}
}

func (c *RegistryClient) cacheKey(taxID string) string {
	return "registry:company:" + taxID
}

func (c *RegistryClient) fromCache(ctx context.Context, taxID string) *importer.RegistryRecord {
	if c.redis == nil {
		return nil
	}
	raw, err := c.redis.Get(ctx, c.cacheKey(taxID)).Bytes()
	if err != nil {
		return nil
	}
	var record importer.RegistryRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil
	}
	return &record
}

func (c *RegistryClient) toCache(ctx context.Context, taxID string, record *importer.RegistryRecord) {
	if c.redis == nil || record == nil {
		return
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.cacheKey(taxID), raw, registryCacheTTL).Err(); err != nil {
		c.logger.WithError(err).Debug("Failed to cache registry record")
	}
}
