package grid

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"import-service/internal/schema"
)

func testFields() []schema.FieldDescriptor {
	return []schema.FieldDescriptor{
		{Key: "name", Label: "Name", Type: schema.FieldTypeText, Required: true, Enabled: true, Order: 1},
		{Key: "sku", Label: "SKU", Type: schema.FieldTypeText, Required: true, Enabled: true, Order: 2, Pattern: `^[A-Za-z0-9_-]+$`},
		{Key: "price", Label: "Price", Type: schema.FieldTypeNumber, Required: true, Enabled: true, Order: 3, Min: floatPtr(0)},
		{Key: "unit", Label: "Unit", Type: schema.FieldTypeSelect, Enabled: true, Order: 4, Options: []string{"UN", "KG"}, DefaultValue: "UN"},
		{Key: "notes", Label: "Notes", Type: schema.FieldTypeText, Enabled: false, Order: 5},
	}
}

func TestNewGridPreallocatesMinimumRows(t *testing.T) {
	g := New(testFields(), CoerceOptions{})

	assert.Equal(t, MinRows, g.RowCount())
	assert.Equal(t, 0, g.FilledRowCount())
	// disabled fields are not part of the active column set
	assert.Len(t, g.Fields(), 4)
}

func TestApplyPastedGrowsGridWithBuffer(t *testing.T) {
	g := New(testFields(), CoerceOptions{DecimalComma: true})

	matrix := make([][]string, 30)
	for i := range matrix {
		matrix[i] = []string{"Item", "SKU-1", "10,00"}
	}
	g.ApplyPasted(matrix)

	assert.Equal(t, 30+RowBuffer, g.RowCount())
	assert.Equal(t, 30, g.FilledRowCount())
}

func TestApplyPastedMapsColumnsPositionally(t *testing.T) {
	g := New(testFields(), CoerceOptions{DecimalComma: true})

	g.ApplyPasted([][]string{
		{"Shirt", "TSH-1", "29,99", "KG", "extra-column-dropped"},
	})

	rows := g.RowData()
	assert.Len(t, rows, 1)
	assert.Equal(t, "Shirt", rows[0].Fields["name"])
	assert.Equal(t, "TSH-1", rows[0].Fields["sku"])
	assert.Equal(t, 29.99, rows[0].Fields["price"])
	assert.Equal(t, "KG", rows[0].Fields["unit"])
}

func TestSetCellRejectsUnknownFieldAndRange(t *testing.T) {
	g := New(testFields(), CoerceOptions{})

	assert.NoError(t, g.SetCell(0, "name", "Widget"))
	assert.Error(t, g.SetCell(0, "nope", "x"))
	assert.Error(t, g.SetCell(-1, "name", "x"))
	assert.Error(t, g.SetCell(g.RowCount(), "name", "x"))
}

func TestValidateSkipsEmptyRowsAndReportsPositions(t *testing.T) {
	g := New(testFields(), CoerceOptions{DecimalComma: true})

	g.ApplyPasted([][]string{
		{"Shirt", "TSH-1", "29,99"},
		{"", "", ""},
		{"", "BAD SKU", "-5"},
	})

	result := g.Validate()

	assert.False(t, result.Valid)
	// the fully empty row is neither counted nor flagged
	assert.Equal(t, 2, result.TotalRows)

	rows := make(map[int]bool)
	fields := make(map[string]bool)
	for _, e := range result.Errors {
		rows[e.Row] = true
		fields[e.Field] = true
	}
	assert.False(t, rows[1])
	assert.False(t, rows[2])
	assert.True(t, rows[3])
	assert.True(t, fields["name"])  // required
	assert.True(t, fields["sku"])   // pattern
	assert.True(t, fields["price"]) // below min
}

func TestValidateIsIdempotent(t *testing.T) {
	g := New(testFields(), CoerceOptions{DecimalComma: true})
	g.ApplyPasted([][]string{{"", "BAD SKU", "x"}})

	first := g.Validate()
	second := g.Validate()

	assert.Equal(t, first, second)
}

func TestValidateColumnIsDisplayOrderIndex(t *testing.T) {
	g := New(testFields(), CoerceOptions{})
	g.ApplyPasted([][]string{{"Shirt", "", "10"}})

	result := g.Validate()
	assert.Len(t, result.Errors, 1)
	assert.Equal(t, "sku", result.Errors[0].Field)
	assert.Equal(t, 1, result.Errors[0].Column)
}

func TestRowDataAppliesDefaultsAndOmitsEmpty(t *testing.T) {
	g := New(testFields(), CoerceOptions{DecimalComma: true})
	g.ApplyPasted([][]string{{"Shirt", "TSH-1", "29,99"}})

	rows := g.RowData()
	assert.Len(t, rows, 1)
	assert.Equal(t, "UN", rows[0].Fields["unit"])
	assert.NotContains(t, rows[0].Fields, "notes")
}

func TestRowDataKeepsFullGridRowIndex(t *testing.T) {
	g := New(testFields(), CoerceOptions{})

	g.SetCell(0, "name", "First")
	g.SetCell(7, "name", "Eighth")

	rows := g.RowData()
	assert.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].RowIndex)
	assert.Equal(t, 7, rows[1].RowIndex)
}

func TestRowDataSnapshotIsDetachedFromGrid(t *testing.T) {
	g := New(testFields(), CoerceOptions{})
	g.SetCell(0, "name", "Before")

	rows := g.RowData()
	g.SetCell(0, "name", "After")

	assert.Equal(t, "Before", rows[0].Fields["name"])
}

func TestWhitespaceOnlyRowIsNotFilled(t *testing.T) {
	g := New(testFields(), CoerceOptions{})
	g.SetCell(0, "name", "   ")

	assert.Equal(t, 0, g.FilledRowCount())
	assert.Empty(t, g.RowData())
}

func TestClearAllResetsToInitialState(t *testing.T) {
	g := New(testFields(), CoerceOptions{})
	g.ApplyPasted(make([][]string, 40))
	g.SetCell(0, "name", "Widget")

	g.ClearAll()

	assert.Equal(t, MinRows, g.RowCount())
	assert.Equal(t, 0, g.FilledRowCount())
}

func TestUpdateHeadersPreservesDataByKey(t *testing.T) {
	g := New(testFields(), CoerceOptions{})
	g.SetCell(0, "name", "Widget")
	g.SetCell(0, "sku", "W-1")

	// reorder and drop a column; data must follow keys, not positions
	updated := []schema.FieldDescriptor{
		{Key: "sku", Label: "SKU", Type: schema.FieldTypeText, Enabled: true, Order: 1},
		{Key: "name", Label: "Name", Type: schema.FieldTypeText, Enabled: true, Order: 2},
	}
	g.UpdateHeaders(updated)

	fields := g.Fields()
	assert.Equal(t, "sku", fields[0].Key)
	assert.Equal(t, "name", fields[1].Key)

	rows := g.RowData()
	assert.Equal(t, "Widget", rows[0].Fields["name"])
	assert.Equal(t, "W-1", rows[0].Fields["sku"])
}

func TestExportCSVWritesFilledRowsOnly(t *testing.T) {
	g := New(testFields(), CoerceOptions{})
	g.SetCell(0, "name", "Plain")
	g.SetCell(0, "sku", "P-1")
	g.SetCell(2, "name", "Needs;Quoting")
	g.SetCell(2, "sku", "Q-1")

	var buf bytes.Buffer
	assert.NoError(t, g.ExportCSV(&buf, ';'))

	out := buf.String()
	assert.Equal(t, "Plain;P-1;;\n\"Needs;Quoting\";Q-1;;\n", out)
}
