package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"import-service/internal/grid"
	"import-service/internal/middleware"
	"import-service/internal/schema"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	sessions := NewSessionManager()
	handler := NewGridHandler(sessions, schema.NewStaticProvider(), grid.CoerceOptions{DecimalComma: true}, logger)

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.TenantMiddleware())

	gridSessions := api.Group("/grid/sessions")
	gridSessions.POST("", handler.CreateSession)
	gridSessions.GET("/:id", handler.GetSession)
	gridSessions.DELETE("/:id", handler.DeleteSession)
	gridSessions.POST("/:id/paste", handler.Paste)
	gridSessions.PUT("/:id/cells", handler.SetCell)
	gridSessions.POST("/:id/validate", handler.Validate)
	gridSessions.GET("/:id/rows", handler.RowData)
	gridSessions.GET("/:id/export", handler.Export)

	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, router *gin.Engine, entityType string) string {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/api/v1/grid/sessions", gin.H{"entityType": entityType})
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			SessionID string `json:"sessionId"`
			RowCount  int    `json:"rowCount"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, grid.MinRows, resp.Data.RowCount)
	return resp.Data.SessionID
}

func TestCreateSessionRequiresTenantHeader(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/grid/sessions", bytes.NewBufferString(`{"entityType":"products"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateSessionUnknownEntityType(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodPost, "/api/v1/grid/sessions", gin.H{"entityType": "vehicles"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionIsTenantScoped(t *testing.T) {
	router := newTestRouter()
	sessionID := createSession(t, router, "products")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/grid/sessions/"+sessionID, nil)
	req.Header.Set("X-Tenant-ID", "other-tenant")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPasteThenValidateReportsRowErrors(t *testing.T) {
	router := newTestRouter()
	sessionID := createSession(t, router, "products")

	w := doJSON(router, http.MethodPost, fmt.Sprintf("/api/v1/grid/sessions/%s/paste", sessionID), gin.H{
		"rows": [][]string{
			{"Blue Shirt", "TSH-BLU-001", "29,99"},
			{"", "BAD SKU", "-5"},
		},
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, fmt.Sprintf("/api/v1/grid/sessions/%s/validate", sessionID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data struct {
			Valid     bool `json:"valid"`
			TotalRows int  `json:"totalRows"`
			Errors    []struct {
				Row   int    `json:"row"`
				Field string `json:"field"`
			} `json:"errors"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.TotalRows)

	for _, e := range resp.Data.Errors {
		assert.Equal(t, 2, e.Row)
	}
}

func TestSetCellFixesValidation(t *testing.T) {
	router := newTestRouter()
	sessionID := createSession(t, router, "products")

	doJSON(router, http.MethodPost, fmt.Sprintf("/api/v1/grid/sessions/%s/paste", sessionID), gin.H{
		"rows": [][]string{{"", "TSH-1", "10,00"}},
	})

	w := doJSON(router, http.MethodPut, fmt.Sprintf("/api/v1/grid/sessions/%s/cells", sessionID), gin.H{
		"rowIndex": 0, "key": "name", "value": "Blue Shirt",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, fmt.Sprintf("/api/v1/grid/sessions/%s/validate", sessionID), nil)
	var resp struct {
		Data struct {
			Valid bool `json:"valid"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Valid)
}

func TestRowDataReturnsCoercedSnapshot(t *testing.T) {
	router := newTestRouter()
	sessionID := createSession(t, router, "products")

	doJSON(router, http.MethodPost, fmt.Sprintf("/api/v1/grid/sessions/%s/paste", sessionID), gin.H{
		"rows": [][]string{{"Blue Shirt", "TSH-1", "29,99"}},
	})

	w := doJSON(router, http.MethodGet, fmt.Sprintf("/api/v1/grid/sessions/%s/rows", sessionID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []struct {
			RowIndex int                    `json:"rowIndex"`
			Fields   map[string]interface{} `json:"fields"`
		} `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, 0, resp.Data[0].RowIndex)
	assert.Equal(t, 29.99, resp.Data[0].Fields["price"])
	// descriptor defaults are applied in the snapshot
	assert.Equal(t, "UN", resp.Data[0].Fields["unit"])
	assert.Equal(t, true, resp.Data[0].Fields["active"])
}

func TestExportStreamsDelimitedText(t *testing.T) {
	router := newTestRouter()
	sessionID := createSession(t, router, "products")

	doJSON(router, http.MethodPost, fmt.Sprintf("/api/v1/grid/sessions/%s/paste", sessionID), gin.H{
		"rows": [][]string{{"Blue Shirt", "TSH-1", "29,99"}},
	})

	w := doJSON(router, http.MethodGet, fmt.Sprintf("/api/v1/grid/sessions/%s/export", sessionID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "Blue Shirt;TSH-1;29,99")
}

func TestDeleteSessionRemovesIt(t *testing.T) {
	router := newTestRouter()
	sessionID := createSession(t, router, "products")

	w := doJSON(router, http.MethodDelete, "/api/v1/grid/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/grid/sessions/"+sessionID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInvalidSessionIDIsBadRequest(t *testing.T) {
	router := newTestRouter()

	w := doJSON(router, http.MethodGet, "/api/v1/grid/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
