package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"import-service/internal/middleware"
	"import-service/internal/models"
	"import-service/internal/schema"
)

// TemplateHandler serves downloadable import templates derived from the
// live schema snapshot, and ingests uploaded CSV/XLSX files into a grid
// session as if their rows had been pasted.
type TemplateHandler struct {
	sessions *SessionManager
	provider schema.Provider
	logger   *logrus.Entry
}

func NewTemplateHandler(sessions *SessionManager, provider schema.Provider, logger *logrus.Logger) *TemplateHandler {
	return &TemplateHandler{
		sessions: sessions,
		provider: provider,
		logger:   logger.WithField("component", "template-handler"),
	}
}

// ImportTemplateColumn describes one column of the downloadable template.
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example,omitempty"`
}

// ImportTemplate is the schema-derived template document.
type ImportTemplate struct {
	Entity  string                 `json:"entity"`
	Version string                 `json:"version"`
	Columns []ImportTemplateColumn `json:"columns"`
}

func buildTemplate(entityType string, fields []schema.FieldDescriptor) ImportTemplate {
	fields = schema.EnabledFields(fields)
	columns := make([]ImportTemplateColumn, len(fields))
	for i, f := range fields {
		columns[i] = ImportTemplateColumn{
			Name:        f.Key,
			Label:       f.Label,
			Description: f.Description,
			Required:    f.Required,
			Type:        string(f.Type),
			Example:     f.Example,
		}
	}
	return ImportTemplate{Entity: entityType, Version: "1.0", Columns: columns}
}

// GetTemplate returns the import template for an entity type in json,
// csv or xlsx format.
// GET /api/v1/imports/template?entity=suppliers&format=xlsx
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	entityType := c.Query("entity")
	format := c.DefaultQuery("format", "json")

	fields, err := h.provider.GetEntityFields(c.Request.Context(), tenantID, entityType)
	if err != nil {
		badRequest(c, "UNKNOWN_ENTITY", err.Error())
		return
	}
	template := buildTemplate(entityType, fields)

	switch format {
	case "csv":
		h.writeCSVTemplate(c, template)
	case "xlsx":
		h.writeXLSXTemplate(c, template)
	default:
		c.JSON(http.StatusOK, gin.H{"success": true, "template": template})
	}
}

func (h *TemplateHandler) writeCSVTemplate(c *gin.Context, template ImportTemplate) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.csv", template.Entity))

	writer := csv.NewWriter(c.Writer)
	defer writer.Flush()

	headers := make([]string, len(template.Columns))
	examples := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
		examples[i] = col.Example
	}
	writer.Write(headers)
	writer.Write(examples)
}

func (h *TemplateHandler) writeXLSXTemplate(c *gin.Context, template ImportTemplate) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := template.Entity
	if sheetName != "" {
		sheetName = strings.ToUpper(sheetName[:1]) + sheetName[1:]
	}
	f.SetSheetName("Sheet1", sheetName)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	requiredStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"C65911"}, Pattern: 1},
	})

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		if col.Required {
			headerText = col.Name + " *"
		}
		f.SetCellValue(sheetName, cell, headerText)

		if col.Required {
			f.SetCellStyle(sheetName, cell, cell, requiredStyle)
		} else {
			f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, 18)

		exampleCell, _ := excelize.CoordinatesToCellName(i+1, 2)
		f.SetCellValue(sheetName, exampleCell, col.Example)
	}

	sheetIdx, _ := f.GetSheetIndex(sheetName)
	f.SetActiveSheet(sheetIdx)

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_import_template.xlsx", template.Entity))

	f.Write(c.Writer)
}

// Upload parses an uploaded CSV or XLSX file and applies its rows to the
// session's grid, matched to columns by header name. The grid treats the
// result exactly like a paste; validation stays a separate step.
// POST /api/v1/grid/sessions/:id/upload
func (h *TemplateHandler) Upload(c *gin.Context) {
	gridHandler := &GridHandler{sessions: h.sessions}
	session, ok := gridHandler.session(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		badRequest(c, "FILE_REQUIRED", "Please upload a CSV or Excel file")
		return
	}
	defer file.Close()

	records, err := parseUpload(file, header.Filename)
	if err != nil {
		badRequest(c, "PARSE_ERROR", err.Error())
		return
	}
	if len(records) < 2 {
		badRequest(c, "EMPTY_FILE", "The file must have a header row and at least one data row")
		return
	}

	session.Lock()
	fields := session.Grid.Fields()
	rows := alignToFields(records, fields)
	session.Grid.ApplyPasted(rows)
	rowCount := session.Grid.RowCount()
	filled := session.Grid.FilledRowCount()
	session.Unlock()

	h.logger.WithFields(logrus.Fields{
		"sessionId": session.ID,
		"filename":  header.Filename,
		"rows":      len(rows),
	}).Info("File imported into grid session")

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    gin.H{"rowCount": rowCount, "filledRowCount": filled, "importedRows": len(rows)},
	})
}

func parseUpload(file io.Reader, filename string) ([][]string, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return parseCSVUpload(file)
	case strings.HasSuffix(lower, ".xlsx"):
		return parseXLSXUpload(file)
	}
	return nil, fmt.Errorf("only CSV and XLSX files are supported")
}

func parseCSVUpload(file io.Reader) ([][]string, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func parseXLSXUpload(file io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet: %w", err)
	}
	return rows, nil
}

// alignToFields reorders file columns into the grid's display order by
// matching header names (case-insensitive, "*" markers stripped) against
// field keys and labels. Unknown columns are dropped.
func alignToFields(records [][]string, fields []schema.FieldDescriptor) [][]string {
	headers := records[0]
	colForField := make([]int, len(fields))
	for i := range colForField {
		colForField[i] = -1
	}
	for colIdx, raw := range headers {
		name := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "*")))
		for fieldIdx, field := range fields {
			if name == strings.ToLower(field.Key) || name == strings.ToLower(field.Label) {
				colForField[fieldIdx] = colIdx
				break
			}
		}
	}

	rows := make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]string, len(fields))
		for fieldIdx, colIdx := range colForField {
			if colIdx >= 0 && colIdx < len(record) {
				row[fieldIdx] = strings.TrimSpace(record[colIdx])
			}
		}
		rows = append(rows, row)
	}
	return rows
}
