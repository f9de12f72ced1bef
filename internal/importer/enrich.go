package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RegistryRecord is a company record resolved from the external
// company-registry service, keyed by the national tax identifier.
type RegistryRecord struct {
	TaxID      string `json:"taxId"`
	LegalName  string `json:"legalName"`
	TradeName  string `json:"tradeName"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	PostalCode string `json:"postalCode"`
	Address    string `json:"address"`
	City       string `json:"city"`
	State      string `json:"state"`
	// StatusCode is the registry's cadastral status code.
	StatusCode string `json:"statusCode"`
}

// RegistryStatusActive is the cadastral status code the registry reports
// for companies in regular standing.
const RegistryStatusActive = "02"

// Active maps the registry status code to the local active flag.
func (r *RegistryRecord) Active() bool {
	return r != nil && r.StatusCode == RegistryStatusActive
}

// Registry resolves company data from the external lookup service. A
// (nil, nil) return means "not found, proceed without enrichment";
// ErrRateLimited means "retry after backoff"; any other error is treated
// as a non-fatal lookup failure.
type Registry interface {
	Lookup(ctx context.Context, taxID string) (*RegistryRecord, error)
}

// taxIDLength is the digit count of a well-formed national company tax
// identifier.
const taxIDLength = 14

// Pacing defaults for registry-enriched runs. The registry enforces much
// stricter rate limits than the primary API, so batches are smaller and
// the delays longer.
const (
	EnrichedBatchSize      = 5
	EnrichedItemDelay      = 500 * time.Millisecond
	EnrichedBatchDelay     = 2 * time.Second
	EnrichedRateLimitDelay = 5 * time.Second
)

// NewSupplierRunner builds a Runner whose rows are enriched from the
// company registry before submission. Pacing options not set fall back to
// the stricter enrichment defaults rather than the generic ones.
func NewSupplierRunner(creator Creator, registry Registry, logger *logrus.Logger, opts Options) *Runner {
	if opts.BatchSize <= 0 {
		opts.BatchSize = EnrichedBatchSize
	}
	if opts.ItemDelay <= 0 {
		opts.ItemDelay = EnrichedItemDelay
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = EnrichedBatchDelay
	}
	if opts.RateLimitDelay <= 0 {
		opts.RateLimitDelay = EnrichedRateLimitDelay
	}
	if opts.MaxRateLimitRetries == 0 {
		opts.MaxRateLimitRetries = DefaultRateLimitRetries
	}
	if logger == nil {
		logger = logrus.New()
	}
	opts.PrepareRow = EnrichFromRegistry(registry, logger, opts.RateLimitDelay, opts.MaxRateLimitRetries)
	return NewRunner(creator, logger, opts)
}

// EnrichFromRegistry returns a PrepareRow hook that resolves the row's
// tax identifier against the registry and merges the response into the
// payload. Registry-provided name, contact and address fields take
// precedence over user-entered ones; the normalized identifier is always
// included; empty fields are dropped. A missing or malformed identifier
// fails the row; any other lookup failure is non-fatal and the row
// proceeds with its locally entered data.
func EnrichFromRegistry(registry Registry, logger *logrus.Logger, backoff time.Duration, maxRetries int) func(ctx context.Context, fields map[string]interface{}) (map[string]interface{}, error) {
	entry := logger.WithField("component", "registry-enrichment")

	return func(ctx context.Context, fields map[string]interface{}) (map[string]interface{}, error) {
		raw, _ := fields["taxId"].(string)
		taxID := digitsOnly(raw)
		if len(taxID) != taxIDLength {
			return nil, fmt.Errorf("invalid tax ID: %q", raw)
		}

		record, err := lookupWithBackoff(ctx, registry, taxID, backoff, maxRetries)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, context.Canceled
			}
			entry.WithField("taxId", taxID).WithError(err).
				Warn("Registry lookup failed, importing row without enrichment")
			record = nil
		}

		merged := make(map[string]interface{}, len(fields)+4)
		for k, v := range fields {
			if isEmptyField(v) {
				continue
			}
			merged[k] = v
		}
		merged["taxId"] = taxID

		if record != nil {
			setIfPresent(merged, "legalName", record.LegalName)
			setIfPresent(merged, "tradeName", record.TradeName)
			setIfPresent(merged, "email", record.Email)
			setIfPresent(merged, "phone", digitsOnly(record.Phone))
			setIfPresent(merged, "postalCode", digitsOnly(record.PostalCode))
			setIfPresent(merged, "address", record.Address)
			setIfPresent(merged, "city", record.City)
			setIfPresent(merged, "state", record.State)
			merged["active"] = record.Active()
		}

		return merged, nil
	}
}

// lookupWithBackoff retries the registry on the rate-limit signal only.
// maxRetries < 0 removes the cap.
func lookupWithBackoff(ctx context.Context, registry Registry, taxID string, backoff time.Duration, maxRetries int) (*RegistryRecord, error) {
	retries := 0
	for {
		record, err := registry.Lookup(ctx, taxID)
		if err == nil {
			return record, nil
		}
		if errors.Is(err, ErrRateLimited) && (maxRetries < 0 || retries < maxRetries) {
			retries++
			if !sleepCtx(ctx, backoff) {
				return nil, context.Canceled
			}
			continue
		}
		return nil, err
	}
}

func setIfPresent(fields map[string]interface{}, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

func isEmptyField(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
