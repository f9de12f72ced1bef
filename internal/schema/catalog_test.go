package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabledFieldsFiltersAndSortsByOrder(t *testing.T) {
	fields := []FieldDescriptor{
		{Key: "c", Enabled: true, Order: 30},
		{Key: "hidden", Enabled: false, Order: 1},
		{Key: "a", Enabled: true, Order: 10},
		{Key: "b", Enabled: true, Order: 20},
	}

	enabled := EnabledFields(fields)

	assert.Len(t, enabled, 3)
	assert.Equal(t, "a", enabled[0].Key)
	assert.Equal(t, "b", enabled[1].Key)
	assert.Equal(t, "c", enabled[2].Key)
}

func TestEnabledFieldsKeepsInputOrderOnTies(t *testing.T) {
	fields := []FieldDescriptor{
		{Key: "first", Enabled: true, Order: 5},
		{Key: "second", Enabled: true, Order: 5},
	}

	enabled := EnabledFields(fields)
	assert.Equal(t, "first", enabled[0].Key)
	assert.Equal(t, "second", enabled[1].Key)
}

func TestFieldByKey(t *testing.T) {
	fields := ProductFields()

	f, ok := FieldByKey(fields, "sku")
	assert.True(t, ok)
	assert.Equal(t, "SKU", f.Label)

	_, ok = FieldByKey(fields, "missing")
	assert.False(t, ok)
}

func TestBuiltinFieldsUnknownEntity(t *testing.T) {
	_, err := BuiltinFields("vehicles")
	assert.Error(t, err)
}

func TestSupplierSchemaRequiresTaxID(t *testing.T) {
	fields, err := BuiltinFields(EntitySuppliers)
	assert.NoError(t, err)

	taxID, ok := FieldByKey(fields, "taxId")
	assert.True(t, ok)
	assert.True(t, taxID.Required)
	assert.Equal(t, FieldFormatTaxID, taxID.Format)
	assert.Equal(t, 14, *taxID.MinLength)
	assert.Equal(t, 14, *taxID.MaxLength)
}

func TestStaticProviderServesCatalog(t *testing.T) {
	provider := NewStaticProvider()

	fields, err := provider.GetEntityFields(context.Background(), "tenant-1", EntityProducts)
	assert.NoError(t, err)
	assert.NotEmpty(t, fields)

	assert.Equal(t, "/products", provider.GetBasePath(EntityProducts))
	assert.Equal(t, "/suppliers", provider.GetBasePath(EntitySuppliers))
	assert.Equal(t, "", provider.GetBasePath("vehicles"))

	_, err = provider.GetEntityFields(context.Background(), "tenant-1", "vehicles")
	assert.Error(t, err)
}
