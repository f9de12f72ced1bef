package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"import-service/internal/grid"
	"import-service/internal/middleware"
	"import-service/internal/models"
	"import-service/internal/schema"
)

// GridHandler exposes the spreadsheet grid over REST: session lifecycle,
// paste ingestion, validation and export.
type GridHandler struct {
	sessions *SessionManager
	provider schema.Provider
	opts     grid.CoerceOptions
	logger   *logrus.Entry
}

func NewGridHandler(sessions *SessionManager, provider schema.Provider, opts grid.CoerceOptions, logger *logrus.Logger) *GridHandler {
	return &GridHandler{
		sessions: sessions,
		provider: provider,
		opts:     opts,
		logger:   logger.WithField("component", "grid-handler"),
	}
}

// CreateSessionRequest starts a new grid session for one entity type.
type CreateSessionRequest struct {
	EntityType string `json:"entityType" binding:"required"`
}

// PasteRequest carries a rectangular block of pasted text.
type PasteRequest struct {
	Rows [][]string `json:"rows" binding:"required"`
}

// CellRequest updates one cell.
type CellRequest struct {
	RowIndex int    `json:"rowIndex"`
	Key      string `json:"key" binding:"required"`
	Value    string `json:"value"`
}

// CreateSession resolves a schema snapshot for the entity type and opens
// a grid session on it.
// POST /api/v1/grid/sessions
func (h *GridHandler) CreateSession(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	fields, err := h.provider.GetEntityFields(c.Request.Context(), tenantID, req.EntityType)
	if err != nil {
		badRequest(c, "UNKNOWN_ENTITY", err.Error())
		return
	}

	session := h.sessions.Create(tenantID, req.EntityType, grid.New(fields, h.opts))
	h.logger.WithFields(logrus.Fields{
		"sessionId":  session.ID,
		"entityType": req.EntityType,
		"tenantId":   tenantID,
	}).Info("Grid session created")

	c.JSON(http.StatusCreated, models.SuccessResponse{
		Success: true,
		Data: gin.H{
			"sessionId":  session.ID,
			"entityType": session.EntityType,
			"fields":     session.Grid.Fields(),
			"rowCount":   session.Grid.RowCount(),
		},
	})
}

// GetSession returns the session's column set and row counters.
// GET /api/v1/grid/sessions/:id
func (h *GridHandler) GetSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Lock()
	defer session.Unlock()

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data: gin.H{
			"sessionId":      session.ID,
			"entityType":     session.EntityType,
			"fields":         session.Grid.Fields(),
			"rowCount":       session.Grid.RowCount(),
			"filledRowCount": session.Grid.FilledRowCount(),
		},
	})
}

// Paste ingests a pasted block. Paste never validates inline; validation
// stays a separate explicit step.
// POST /api/v1/grid/sessions/:id/paste
func (h *GridHandler) Paste(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req PasteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	session.Lock()
	session.Grid.ApplyPasted(req.Rows)
	rowCount := session.Grid.RowCount()
	filled := session.Grid.FilledRowCount()
	session.Unlock()

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    gin.H{"rowCount": rowCount, "filledRowCount": filled},
	})
}

// SetCell applies one direct edit.
// PUT /api/v1/grid/sessions/:id/cells
func (h *GridHandler) SetCell(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	var req CellRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	session.Lock()
	err := session.Grid.SetCell(req.RowIndex, req.Key, req.Value)
	session.Unlock()
	if err != nil {
		badRequest(c, "INVALID_CELL", err.Error())
		return
	}

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// AddRow appends one empty row.
// POST /api/v1/grid/sessions/:id/rows
func (h *GridHandler) AddRow(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Lock()
	session.Grid.AddRow()
	rowCount := session.Grid.RowCount()
	session.Unlock()

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    gin.H{"rowCount": rowCount},
	})
}

// Clear resets the grid to its initial empty state.
// POST /api/v1/grid/sessions/:id/clear
func (h *GridHandler) Clear(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Lock()
	session.Grid.ClearAll()
	session.Unlock()

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// UpdateHeaders re-resolves the schema snapshot and re-derives the active
// column set, preserving entered data by field key.
// PUT /api/v1/grid/sessions/:id/headers
func (h *GridHandler) UpdateHeaders(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	fields, err := h.provider.GetEntityFields(c.Request.Context(), session.TenantID, session.EntityType)
	if err != nil {
		badRequest(c, "UNKNOWN_ENTITY", err.Error())
		return
	}

	session.Lock()
	session.Grid.UpdateHeaders(fields)
	updated := session.Grid.Fields()
	session.Unlock()

	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    gin.H{"fields": updated},
	})
}

// Validate runs the full validation pass and reports every violation
// with 1-based row numbers and display-order column indices.
// POST /api/v1/grid/sessions/:id/validate
func (h *GridHandler) Validate(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Lock()
	result := session.Grid.Validate()
	session.Unlock()

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: result})
}

// RowData returns the coerced filled-row snapshot the import would consume.
// GET /api/v1/grid/sessions/:id/rows
func (h *GridHandler) RowData(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	session.Lock()
	rows := session.Grid.RowData()
	session.Unlock()

	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: rows})
}

// Export downloads the filled rows as delimited text for backup.
// GET /api/v1/grid/sessions/:id/export
func (h *GridHandler) Export(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s_grid_export.csv", session.EntityType))

	session.Lock()
	err := session.Grid.ExportCSV(c.Writer, ';')
	session.Unlock()
	if err != nil {
		h.logger.WithError(err).Error("Grid export failed")
	}
}

// DeleteSession discards a session.
// DELETE /api/v1/grid/sessions/:id
func (h *GridHandler) DeleteSession(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	h.sessions.Delete(session.TenantID, session.ID)
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// session resolves the :id parameter into a tenant-scoped session,
// answering 404 itself when it cannot.
func (h *GridHandler) session(c *gin.Context) (*GridSession, bool) {
	tenantID := middleware.GetTenantID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "INVALID_SESSION_ID", "Session ID must be a UUID")
		return nil, false
	}
	session, ok := h.sessions.Get(tenantID, id)
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "SESSION_NOT_FOUND", Message: "Grid session not found"},
		})
		return nil, false
	}
	return session, true
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: code, Message: message},
	})
}
