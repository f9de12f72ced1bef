package schema

import "fmt"

// Entity type identifiers understood by the built-in catalog.
const (
	EntityProducts   = "products"
	EntitySuppliers  = "suppliers"
	EntityStockItems = "stock-items"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

// ProductFields returns the built-in import schema for products.
func ProductFields() []FieldDescriptor {
	return []FieldDescriptor{
		{Key: "name", Label: "Name", Type: FieldTypeText, Required: true, Enabled: true, Order: 1, MaxLength: intPtr(255), Description: "Product name", Example: "Blue Cotton T-Shirt"},
		{Key: "sku", Label: "SKU", Type: FieldTypeText, Required: true, Enabled: true, Order: 2, Pattern: `^[A-Za-z0-9_-]+$`, PatternMessage: "SKU may only contain letters, digits, dashes and underscores", Example: "TSH-BLU-001"},
		{Key: "price", Label: "Price", Type: FieldTypeNumber, Required: true, Enabled: true, Order: 3, Min: floatPtr(0), Example: "29,99"},
		{Key: "costPrice", Label: "Cost Price", Type: FieldTypeNumber, Enabled: true, Order: 4, Min: floatPtr(0)},
		{Key: "quantity", Label: "Initial Quantity", Type: FieldTypeNumber, Enabled: true, Order: 5, Min: floatPtr(0)},
		{Key: "unit", Label: "Unit", Type: FieldTypeSelect, Enabled: true, Order: 6, Options: []string{"UN", "KG", "L", "M", "CX"}, DefaultValue: "UN"},
		{Key: "barcode", Label: "Barcode", Type: FieldTypeText, Enabled: true, Order: 7, MaxLength: intPtr(14)},
		{Key: "categoryName", Label: "Category", Type: FieldTypeReference, Enabled: true, Order: 8, ReferenceEntity: "categories"},
		{Key: "supplierName", Label: "Supplier", Type: FieldTypeReference, Enabled: true, Order: 9, ReferenceEntity: "suppliers"},
		{Key: "active", Label: "Active", Type: FieldTypeBoolean, Enabled: true, Order: 10, DefaultValue: "true"},
		{Key: "description", Label: "Description", Type: FieldTypeText, Enabled: false, Order: 11, MaxLength: intPtr(2000)},
	}
}

// SupplierFields returns the built-in import schema for suppliers.
// The tax ID drives the registry enrichment lookup.
func SupplierFields() []FieldDescriptor {
	return []FieldDescriptor{
		{Key: "taxId", Label: "Tax ID", Type: FieldTypeText, Format: FieldFormatTaxID, Required: true, Enabled: true, Order: 1, MinLength: intPtr(14), MaxLength: intPtr(14), Description: "National company tax identifier, digits only after normalization", Example: "12.345.678/0001-95"},
		{Key: "legalName", Label: "Legal Name", Type: FieldTypeText, Enabled: true, Order: 2, MaxLength: intPtr(255)},
		{Key: "tradeName", Label: "Trade Name", Type: FieldTypeText, Enabled: true, Order: 3, MaxLength: intPtr(255)},
		{Key: "email", Label: "Email", Type: FieldTypeText, Enabled: true, Order: 4, Pattern: `^[^@\s]+@[^@\s]+\.[^@\s]+$`, PatternMessage: "Invalid email address"},
		{Key: "phone", Label: "Phone", Type: FieldTypeText, Format: FieldFormatPhone, Enabled: true, Order: 5, MaxLength: intPtr(11)},
		{Key: "postalCode", Label: "Postal Code", Type: FieldTypeText, Format: FieldFormatPostalCode, Enabled: true, Order: 6, MinLength: intPtr(8), MaxLength: intPtr(8)},
		{Key: "address", Label: "Address", Type: FieldTypeText, Enabled: true, Order: 7},
		{Key: "city", Label: "City", Type: FieldTypeText, Enabled: true, Order: 8},
		{Key: "state", Label: "State", Type: FieldTypeText, Enabled: true, Order: 9, MaxLength: intPtr(2)},
		{Key: "active", Label: "Active", Type: FieldTypeBoolean, Enabled: true, Order: 10, DefaultValue: "true"},
	}
}

// StockItemFields returns the built-in import schema for stock items.
func StockItemFields() []FieldDescriptor {
	return []FieldDescriptor{
		{Key: "productSku", Label: "Product SKU", Type: FieldTypeReference, Required: true, Enabled: true, Order: 1, ReferenceEntity: "products"},
		{Key: "warehouseCode", Label: "Warehouse", Type: FieldTypeReference, Required: true, Enabled: true, Order: 2, ReferenceEntity: "warehouses"},
		{Key: "quantity", Label: "Quantity", Type: FieldTypeNumber, Required: true, Enabled: true, Order: 3, Min: floatPtr(0)},
		{Key: "minQuantity", Label: "Minimum Quantity", Type: FieldTypeNumber, Enabled: true, Order: 4, Min: floatPtr(0)},
		{Key: "maxQuantity", Label: "Maximum Quantity", Type: FieldTypeNumber, Enabled: true, Order: 5, Min: floatPtr(0)},
		{Key: "location", Label: "Location", Type: FieldTypeText, Enabled: true, Order: 6, MaxLength: intPtr(50)},
		{Key: "expiresAt", Label: "Expiry Date", Type: FieldTypeDate, Enabled: true, Order: 7},
	}
}

var builtinCatalog = map[string]func() []FieldDescriptor{
	EntityProducts:   ProductFields,
	EntitySuppliers:  SupplierFields,
	EntityStockItems: StockItemFields,
}

var builtinBasePaths = map[string]string{
	EntityProducts:   "/products",
	EntitySuppliers:  "/suppliers",
	EntityStockItems: "/stock-items",
}

// BuiltinFields returns the static catalog for an entity type.
func BuiltinFields(entityType string) ([]FieldDescriptor, error) {
	fn, ok := builtinCatalog[entityType]
	if !ok {
		return nil, fmt.Errorf("unknown entity type: %s", entityType)
	}
	return fn(), nil
}
