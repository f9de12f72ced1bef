package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"import-service/internal/importer"
	"import-service/internal/models"
)

// progressTTL bounds how long a run's live progress stays in Redis after
// the last update. Runs are short-lived; an hour covers polling across
// instances without accumulating stale keys.
const progressTTL = time.Hour

// ImportRunRepository persists import-run audit records in Postgres and
// mirrors live progress into Redis so any instance can answer progress
// polls.
type ImportRunRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewImportRunRepository(db *gorm.DB, redisClient *redis.Client) *ImportRunRepository {
	return &ImportRunRepository{db: db, redis: redisClient}
}

// CreateRun records the start of a run.
func (r *ImportRunRepository) CreateRun(ctx context.Context, run *models.ImportRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create import run: %w", err)
	}
	return nil
}

// FinishRun stores the terminal counters and per-row errors of a run.
func (r *ImportRunRepository) FinishRun(ctx context.Context, runID uuid.UUID, progress importer.Progress, result *importer.Result) error {
	updates := map[string]interface{}{
		"status":       string(progress.Status),
		"processed":    progress.Processed,
		"successful":   progress.Successful,
		"failed":       progress.Failed,
		"completed_at": progress.CompletedAt,
	}

	if len(progress.Errors) > 0 {
		raw, err := json.Marshal(progress.Errors)
		if err != nil {
			return fmt.Errorf("failed to encode row errors: %w", err)
		}
		updates["errors"] = datatypes.JSON(raw)
	}
	if result != nil && len(result.CreatedIDs) > 0 {
		raw, err := json.Marshal(result.CreatedIDs)
		if err != nil {
			return fmt.Errorf("failed to encode created IDs: %w", err)
		}
		updates["created_ids"] = datatypes.JSON(raw)
	}

	if err := r.db.WithContext(ctx).
		Model(&models.ImportRun{}).
		Where("id = ?", runID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to finish import run: %w", err)
	}
	return nil
}

// GetRun fetches one run scoped to a tenant.
func (r *ImportRunRepository) GetRun(ctx context.Context, tenantID string, runID uuid.UUID) (*models.ImportRun, error) {
	var run models.ImportRun
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", runID, tenantID).
		First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns a tenant's runs, newest first.
func (r *ImportRunRepository) ListRuns(ctx context.Context, tenantID string, limit int) ([]models.ImportRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var runs []models.ImportRun
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func progressKey(runID uuid.UUID) string {
	return "import:progress:" + runID.String()
}

// PublishProgress mirrors a progress snapshot into Redis. Best-effort:
// a missing or unreachable Redis never affects the run itself.
func (r *ImportRunRepository) PublishProgress(ctx context.Context, runID uuid.UUID, progress importer.Progress) {
	if r.redis == nil {
		return
	}
	raw, err := json.Marshal(progress)
	if err != nil {
		return
	}
	r.redis.Set(ctx, progressKey(runID), raw, progressTTL)
}

// GetProgress reads the mirrored progress snapshot, or nil when absent.
func (r *ImportRunRepository) GetProgress(ctx context.Context, runID uuid.UUID) (*importer.Progress, error) {
	if r.redis == nil {
		return nil, nil
	}
	raw, err := r.redis.Get(ctx, progressKey(runID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var progress importer.Progress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}
