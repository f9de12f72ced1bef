package grid

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"import-service/internal/schema"
)

const (
	// MinRows is the smallest working size the grid pre-allocates so the
	// user always has empty rows to type into.
	MinRows = 20
	// RowBuffer is the number of empty trailing rows kept after a paste
	// fills the grid.
	RowBuffer = 5
)

// RowData is the point-in-time snapshot of one filled row handed to the
// import runner. RowIndex is the row's position within the full grid
// (zero-based), not within the filtered filled-row list, so import errors
// can be correlated back to the grid position the user sees.
type RowData struct {
	RowIndex int                    `json:"rowIndex"`
	Fields   map[string]interface{} `json:"fields"`
}

// Grid is an editable tabular dataset: an ordered collection of rows
// against the enabled-field schema. It owns row data; import runs only
// ever receive a snapshot via RowData and never write back.
type Grid struct {
	fields []schema.FieldDescriptor
	rows   []map[string]string
	opts   CoerceOptions
}

// New creates a grid for the enabled fields of the given schema snapshot,
// pre-allocated to the minimum working size.
func New(fields []schema.FieldDescriptor, opts CoerceOptions) *Grid {
	g := &Grid{
		fields: schema.EnabledFields(fields),
		opts:   opts,
	}
	g.ensureRows(MinRows)
	return g
}

// Fields returns the active column set in display order.
func (g *Grid) Fields() []schema.FieldDescriptor {
	out := make([]schema.FieldDescriptor, len(g.fields))
	copy(out, g.fields)
	return out
}

// RowCount returns the total number of rows, filled or not.
func (g *Grid) RowCount() int { return len(g.rows) }

// FilledRowCount returns the number of rows with data in at least one field.
func (g *Grid) FilledRowCount() int {
	count := 0
	for _, row := range g.rows {
		if rowFilled(row) {
			count++
		}
	}
	return count
}

// SetCell stores a raw value in one cell.
func (g *Grid) SetCell(rowIndex int, key, raw string) error {
	if rowIndex < 0 || rowIndex >= len(g.rows) {
		return fmt.Errorf("row %d out of range", rowIndex)
	}
	if _, ok := schema.FieldByKey(g.fields, key); !ok {
		return fmt.Errorf("unknown field: %s", key)
	}
	g.rows[rowIndex][key] = raw
	return nil
}

// ApplyPasted ingests a rectangular block of pasted text starting at row
// zero, mapping columns positionally onto the enabled-field order. Columns
// beyond the active field set are dropped; the grid grows when the block
// exceeds current capacity. Paste never validates; validation is a
// separate explicit step.
func (g *Grid) ApplyPasted(matrix [][]string) {
	g.ensureRows(len(matrix) + RowBuffer)
	for r, pastedRow := range matrix {
		for c, raw := range pastedRow {
			if c >= len(g.fields) {
				break
			}
			g.rows[r][g.fields[c].Key] = raw
		}
	}
}

// AddRow appends one empty row.
func (g *Grid) AddRow() {
	g.rows = append(g.rows, make(map[string]string, len(g.fields)))
}

// ClearAll resets the grid to its initial empty state for the current schema.
func (g *Grid) ClearAll() {
	g.rows = nil
	g.ensureRows(MinRows)
}

// UpdateHeaders re-derives the active column set from a new schema
// snapshot. Data entered under fields still present is preserved by key,
// not by position; values for removed fields are kept in the cells and
// simply become invisible until the field returns.
func (g *Grid) UpdateHeaders(fields []schema.FieldDescriptor) {
	g.fields = schema.EnabledFields(fields)
	g.ensureRows(MinRows)
}

// Validate coerces and validates every enabled field of every non-empty
// row. Fully empty rows are skipped: an intentionally blank trailing row
// is not a user mistake and contributes neither to TotalRows nor to
// errors. The pass is deterministic and idempotent.
func (g *Grid) Validate() ValidationResult {
	result := ValidationResult{Errors: []ValidationError{}}

	for rowIndex, row := range g.rows {
		if !rowFilled(row) {
			continue
		}
		result.TotalRows++

		for col, field := range g.fields {
			value := Coerce(row[field.Key], field, g.opts)
			if verr := ValidateValue(value, field); verr != nil {
				verr.Row = rowIndex + 1
				verr.Column = col
				result.Errors = append(result.Errors, *verr)
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// RowData returns the filled rows, coerced, with empty fields omitted and
// descriptor defaults applied, in original row order. This is the snapshot
// an import run consumes; the live grid can keep being edited afterwards
// without affecting it.
func (g *Grid) RowData() []RowData {
	var out []RowData
	for rowIndex, row := range g.rows {
		if !rowFilled(row) {
			continue
		}
		fields := make(map[string]interface{}, len(g.fields))
		for _, field := range g.fields {
			raw := row[field.Key]
			if raw == "" && field.DefaultValue != "" {
				raw = field.DefaultValue
			}
			value := Coerce(raw, field, g.opts)
			if isEmptyValue(value) {
				continue
			}
			fields[field.Key] = value
		}
		out = append(out, RowData{RowIndex: rowIndex, Fields: fields})
	}
	return out
}

// ExportCSV writes the filled rows as delimited text, one line per filled
// row and one field per column in display order. Quoting follows the CSV
// rules: values containing the delimiter, a quote or a newline are quoted.
func (g *Grid) ExportCSV(w io.Writer, delimiter rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = delimiter
	for _, row := range g.rows {
		if !rowFilled(row) {
			continue
		}
		record := make([]string, len(g.fields))
		for i, field := range g.fields {
			record[i] = row[field.Key]
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (g *Grid) ensureRows(n int) {
	if n < MinRows {
		n = MinRows
	}
	for len(g.rows) < n {
		g.rows = append(g.rows, make(map[string]string, len(g.fields)))
	}
}

func rowFilled(row map[string]string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
