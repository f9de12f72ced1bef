package importer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRegistry struct {
	record *RegistryRecord
	err    error
	// rateLimitHits makes the first N lookups return ErrRateLimited
	rateLimitHits int32
	calls         int32
}

func (f *fakeRegistry) Lookup(ctx context.Context, taxID string) (*RegistryRecord, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.rateLimitHits) {
		return nil, ErrRateLimited
	}
	return f.record, f.err
}

func activeRecord() *RegistryRecord {
	return &RegistryRecord{
		TaxID:      "12345678000195",
		LegalName:  "ACME INDUSTRIA LTDA",
		TradeName:  "ACME",
		Email:      "contato@acme.com.br",
		Phone:      "(11) 98888-7777",
		PostalCode: "01310-100",
		Address:    "Av Paulista, 1000",
		City:       "São Paulo",
		State:      "SP",
		StatusCode: RegistryStatusActive,
	}
}

func TestEnrichMergesRegistryDataOverUserInput(t *testing.T) {
	registry := &fakeRegistry{record: activeRecord()}
	prepare := EnrichFromRegistry(registry, testLogger(), time.Millisecond, 3)

	fields := map[string]interface{}{
		"taxId":     "12.345.678/0001-95",
		"legalName": "typed by hand",
		"city":      "Typed City",
	}
	merged, err := prepare(context.Background(), fields)

	assert.NoError(t, err)
	assert.Equal(t, "12345678000195", merged["taxId"])
	// registry data wins over what the user typed
	assert.Equal(t, "ACME INDUSTRIA LTDA", merged["legalName"])
	assert.Equal(t, "São Paulo", merged["city"])
	assert.Equal(t, "ACME", merged["tradeName"])
	assert.Equal(t, "11988887777", merged["phone"])
	assert.Equal(t, "01310100", merged["postalCode"])
	assert.Equal(t, true, merged["active"])
}

func TestEnrichInactiveCompanyFlagged(t *testing.T) {
	record := activeRecord()
	record.StatusCode = "08"
	registry := &fakeRegistry{record: record}
	prepare := EnrichFromRegistry(registry, testLogger(), time.Millisecond, 3)

	merged, err := prepare(context.Background(), map[string]interface{}{"taxId": "12345678000195"})

	assert.NoError(t, err)
	assert.Equal(t, false, merged["active"])
}

func TestEnrichInvalidTaxIDFailsRow(t *testing.T) {
	registry := &fakeRegistry{record: activeRecord()}
	prepare := EnrichFromRegistry(registry, testLogger(), time.Millisecond, 3)

	_, err := prepare(context.Background(), map[string]interface{}{"taxId": "123"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tax ID")

	_, err = prepare(context.Background(), map[string]interface{}{})
	assert.Error(t, err)

	// the registry is never consulted for a malformed identifier
	assert.EqualValues(t, 0, atomic.LoadInt32(&registry.calls))
}

func TestEnrichLookupFailureIsNonFatal(t *testing.T) {
	registry := &fakeRegistry{err: errors.New("registry unreachable")}
	prepare := EnrichFromRegistry(registry, testLogger(), time.Millisecond, 3)

	fields := map[string]interface{}{
		"taxId":     "12.345.678/0001-95",
		"legalName": "Local Name",
	}
	merged, err := prepare(context.Background(), fields)

	// the row proceeds with its locally entered data
	assert.NoError(t, err)
	assert.Equal(t, "12345678000195", merged["taxId"])
	assert.Equal(t, "Local Name", merged["legalName"])
	assert.NotContains(t, merged, "active")
}

func TestEnrichNotFoundProceedsWithoutEnrichment(t *testing.T) {
	registry := &fakeRegistry{}
	prepare := EnrichFromRegistry(registry, testLogger(), time.Millisecond, 3)

	merged, err := prepare(context.Background(), map[string]interface{}{"taxId": "12345678000195"})

	assert.NoError(t, err)
	assert.Equal(t, "12345678000195", merged["taxId"])
	assert.NotContains(t, merged, "legalName")
	assert.NotContains(t, merged, "active")
}

func TestEnrichRetriesLookupOnRateLimit(t *testing.T) {
	registry := &fakeRegistry{record: activeRecord(), rateLimitHits: 2}
	prepare := EnrichFromRegistry(registry, testLogger(), time.Millisecond, 5)

	merged, err := prepare(context.Background(), map[string]interface{}{"taxId": "12345678000195"})

	assert.NoError(t, err)
	assert.Equal(t, "ACME INDUSTRIA LTDA", merged["legalName"])
	assert.EqualValues(t, 3, atomic.LoadInt32(&registry.calls))
}

func TestEnrichDropsEmptyFields(t *testing.T) {
	record := activeRecord()
	record.TradeName = ""
	registry := &fakeRegistry{record: record}
	prepare := EnrichFromRegistry(registry, testLogger(), time.Millisecond, 3)

	fields := map[string]interface{}{
		"taxId": "12345678000195",
		"notes": "   ",
	}
	merged, err := prepare(context.Background(), fields)

	assert.NoError(t, err)
	assert.NotContains(t, merged, "notes")
	assert.NotContains(t, merged, "tradeName")
}

func TestRegistryRecordActive(t *testing.T) {
	assert.True(t, (&RegistryRecord{StatusCode: "02"}).Active())
	assert.False(t, (&RegistryRecord{StatusCode: "08"}).Active())
	assert.False(t, (*RegistryRecord)(nil).Active())
}
