package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"import-service/internal/clients"
	"import-service/internal/config"
	"import-service/internal/events"
	"import-service/internal/importer"
	"import-service/internal/middleware"
	"import-service/internal/models"
	"import-service/internal/repository"
	"import-service/internal/schema"
)

// ImportHandler drives import runs over REST: start, pause, resume,
// cancel, reset, progress polling and run history.
type ImportHandler struct {
	sessions  *SessionManager
	repo      *repository.ImportRunRepository
	publisher *events.Publisher
	provider  schema.Provider
	redis     *redis.Client
	cfg       *config.Config
	logger    *logrus.Logger
	log       *logrus.Entry
}

// NewImportHandler wires the import control surface. publisher may be
// nil when NATS is not configured.
func NewImportHandler(
	sessions *SessionManager,
	repo *repository.ImportRunRepository,
	publisher *events.Publisher,
	provider schema.Provider,
	redisClient *redis.Client,
	cfg *config.Config,
	logger *logrus.Logger,
) *ImportHandler {
	return &ImportHandler{
		sessions:  sessions,
		repo:      repo,
		publisher: publisher,
		provider:  provider,
		redis:     redisClient,
		cfg:       cfg,
		logger:    logger,
		log:       logger.WithField("component", "import-handler"),
	}
}

// StartImportRequest carries per-run pacing overrides and the fields
// injected into every row before submission (e.g. a foreign key shared
// by the whole run).
type StartImportRequest struct {
	BatchSize           int                    `json:"batchSize"`
	ItemDelayMs         int                    `json:"itemDelayMs"`
	BatchDelayMs        int                    `json:"batchDelayMs"`
	RateLimitDelayMs    int                    `json:"rateLimitDelayMs"`
	MaxRateLimitRetries int                    `json:"maxRateLimitRetries"`
	CommonFields        map[string]interface{} `json:"commonFields,omitempty"`
}

// StartImport validates the grid, snapshots its filled rows and starts
// the batch runner in the background. A session carries at most one run
// at a time; starting over a live run is an explicit conflict.
// POST /api/v1/grid/sessions/:id/import
func (h *ImportHandler) StartImport(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	userID := c.GetString("user_id")

	gridHandler := &GridHandler{sessions: h.sessions}
	session, ok := gridHandler.session(c)
	if !ok {
		return
	}

	// an empty body is fine, every option has a default
	var req StartImportRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "INVALID_REQUEST", err.Error())
		return
	}

	session.Lock()
	defer session.Unlock()

	if session.Runner != nil {
		status := session.Runner.Status()
		if status == importer.StatusImporting || status == importer.StatusPaused {
			conflict(c, "IMPORT_IN_PROGRESS", "An import is already running for this session")
			return
		}
	}

	validation := session.Grid.Validate()
	if !validation.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error": models.Error{
				Code:    "VALIDATION_FAILED",
				Message: "Fix the validation errors before importing",
			},
			"validation": validation,
		})
		return
	}

	snapshot := session.Grid.RowData()
	rows := make([]importer.Row, len(snapshot))
	for i, r := range snapshot {
		rows[i] = importer.Row{RowIndex: r.RowIndex, Fields: r.Fields}
	}

	runID := uuid.New()
	run := &models.ImportRun{
		ID:         runID,
		TenantID:   tenantID,
		EntityType: session.EntityType,
		Status:     string(importer.StatusImporting),
		TotalRows:  len(rows),
		CreatedBy:  optionalString(userID),
		StartedAt:  time.Now(),
	}
	if err := h.repo.CreateRun(c.Request.Context(), run); err != nil {
		h.log.WithError(err).Error("Failed to persist import run")
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "RUN_PERSIST_FAILED", Message: "Could not record the import run"},
		})
		return
	}

	runner := h.buildRunner(session.EntityType, tenantID, runID, req)
	if err := runner.Start(context.Background(), rows); err != nil {
		conflict(c, "IMPORT_IN_PROGRESS", err.Error())
		return
	}
	session.Runner = runner
	session.RunID = runID

	if h.publisher != nil {
		h.publisher.PublishRunStarted(runID, tenantID, session.EntityType, userID, len(rows))
	}
	go h.watchRun(runner, runID, tenantID, session.EntityType, userID)

	progress := runner.Progress()
	c.JSON(http.StatusAccepted, models.SuccessResponse{
		Success: true,
		Data: gin.H{
			"runId":        runID,
			"total":        progress.Total,
			"totalBatches": progress.TotalBatches,
		},
	})
}

// buildRunner assembles the creator, pacing options and (for suppliers)
// the registry enrichment for one run.
func (h *ImportHandler) buildRunner(entityType, tenantID string, runID uuid.UUID, req StartImportRequest) *importer.Runner {
	opts := importer.Options{
		Endpoint:            h.provider.GetBasePath(entityType),
		BatchSize:           req.BatchSize,
		ItemDelay:           time.Duration(req.ItemDelayMs) * time.Millisecond,
		BatchDelay:          time.Duration(req.BatchDelayMs) * time.Millisecond,
		RateLimitDelay:      time.Duration(req.RateLimitDelayMs) * time.Millisecond,
		MaxRateLimitRetries: req.MaxRateLimitRetries,
		OnProgress: func(p importer.Progress) {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			h.repo.PublishProgress(ctx, runID, p)
		},
	}
	if len(req.CommonFields) > 0 {
		common := req.CommonFields
		opts.TransformRow = func(fields map[string]interface{}) map[string]interface{} {
			for k, v := range common {
				fields[k] = v
			}
			return fields
		}
	}

	creator := clients.NewEntityClientWithURL(h.cfg.EntityAPIURL, tenantID)

	if entityType == schema.EntitySuppliers {
		registry := clients.NewRegistryClientWithURL(h.cfg.RegistryAPIURL, h.redis, h.logger)
		return importer.NewSupplierRunner(creator, registry, h.logger, opts)
	}

	// generic runs inherit the service-wide pacing when the request did
	// not override it
	if opts.BatchSize <= 0 {
		opts.BatchSize = h.cfg.ImportBatchSize
	}
	if opts.ItemDelay <= 0 {
		opts.ItemDelay = h.cfg.ImportItemDelay
	}
	if opts.BatchDelay <= 0 {
		opts.BatchDelay = h.cfg.ImportBatchDelay
	}
	if opts.RateLimitDelay <= 0 {
		opts.RateLimitDelay = h.cfg.RateLimitDelay
	}
	if opts.MaxRateLimitRetries == 0 {
		opts.MaxRateLimitRetries = h.cfg.MaxRateLimitRetries
	}
	return importer.NewRunner(creator, h.logger, opts)
}

// watchRun persists the terminal state and publishes the lifecycle event
// once the run ends.
func (h *ImportHandler) watchRun(runner *importer.Runner, runID uuid.UUID, tenantID, entityType, userID string) {
	runner.Wait()
	progress := runner.Progress()
	result := runner.Result()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.repo.FinishRun(ctx, runID, progress, result); err != nil {
		h.log.WithField("runId", runID).WithError(err).Error("Failed to persist import run outcome")
	}
	if h.publisher != nil {
		h.publisher.PublishRunFinished(runID, tenantID, entityType, userID, progress)
	}
}

// PauseImport sets the runner's pause flag.
// POST /api/v1/grid/sessions/:id/import/pause
func (h *ImportHandler) PauseImport(c *gin.Context) {
	if runner, ok := h.runner(c); ok {
		runner.Pause()
		c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: runner.Progress()})
	}
}

// ResumeImport clears the pause flag.
// POST /api/v1/grid/sessions/:id/import/resume
func (h *ImportHandler) ResumeImport(c *gin.Context) {
	if runner, ok := h.runner(c); ok {
		runner.Resume()
		c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: runner.Progress()})
	}
}

// CancelImport signals a cooperative abort; partial results survive.
// POST /api/v1/grid/sessions/:id/import/cancel
func (h *ImportHandler) CancelImport(c *gin.Context) {
	if runner, ok := h.runner(c); ok {
		runner.Cancel()
		c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: runner.Progress()})
	}
}

// ResetImport returns a terminal runner to idle so the session can start
// a fresh run.
// POST /api/v1/grid/sessions/:id/import/reset
func (h *ImportHandler) ResetImport(c *gin.Context) {
	runner, ok := h.runner(c)
	if !ok {
		return
	}
	if err := runner.Reset(); err != nil {
		conflict(c, "IMPORT_IN_PROGRESS", err.Error())
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true})
}

// ImportProgress returns the live progress of the session's run.
// GET /api/v1/grid/sessions/:id/import/progress
func (h *ImportHandler) ImportProgress(c *gin.Context) {
	if runner, ok := h.runner(c); ok {
		c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: runner.Progress()})
	}
}

// ImportResult returns the final summary once the run is terminal.
// GET /api/v1/grid/sessions/:id/import/result
func (h *ImportHandler) ImportResult(c *gin.Context) {
	runner, ok := h.runner(c)
	if !ok {
		return
	}
	result := runner.Result()
	if result == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "RESULT_NOT_READY", Message: "The import has not finished yet"},
		})
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: result})
}

// GetRunProgress answers progress polls by run ID from the Redis mirror,
// falling back to the persisted record. This works from any instance,
// not only the one hosting the session.
// GET /api/v1/imports/:runId/progress
func (h *ImportHandler) GetRunProgress(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		badRequest(c, "INVALID_RUN_ID", "Run ID must be a UUID")
		return
	}

	if progress, err := h.repo.GetProgress(c.Request.Context(), runID); err == nil && progress != nil {
		c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: progress})
		return
	}

	run, err := h.repo.GetRun(c.Request.Context(), tenantID, runID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error:   models.Error{Code: "RUN_NOT_FOUND", Message: "Import run not found"},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "RUN_LOOKUP_FAILED", Message: err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: run})
}

// ListRuns returns the tenant's run history, newest first.
// GET /api/v1/imports
func (h *ImportHandler) ListRuns(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	runs, err := h.repo.ListRuns(c.Request.Context(), tenantID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "RUN_LIST_FAILED", Message: err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: runs})
}

// runner resolves the session's runner, answering the error itself when
// no run was started.
func (h *ImportHandler) runner(c *gin.Context) (*importer.Runner, bool) {
	gridHandler := &GridHandler{sessions: h.sessions}
	session, ok := gridHandler.session(c)
	if !ok {
		return nil, false
	}
	session.Lock()
	runner := session.Runner
	session.Unlock()
	if runner == nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Success: false,
			Error:   models.Error{Code: "NO_IMPORT", Message: "No import has been started for this session"},
		})
		return nil, false
	}
	return runner, true
}

func conflict(c *gin.Context, code, message string) {
	c.JSON(http.StatusConflict, models.ErrorResponse{
		Success: false,
		Error:   models.Error{Code: code, Message: message},
	})
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
