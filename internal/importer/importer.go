package importer

import (
	"context"
	"errors"
	"time"
)

// Status is the observable state of an import run.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusImporting Status = "importing"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is a terminal state (reachable only
// out of a run; Reset returns to idle).
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	// ErrRateLimited is the distinguished transient signal from a
	// downstream service (HTTP 429 equivalent). Rows that hit it are
	// retried after a backoff instead of being recorded as failures.
	ErrRateLimited = errors.New("rate limited by downstream service")

	// ErrAlreadyRunning is returned by Start when the runner is not idle.
	ErrAlreadyRunning = errors.New("an import is already running; reset the runner first")

	// ErrNotRunning is returned by Reset while a run is in flight.
	ErrNotRunning = errors.New("cannot reset while an import is running")
)

// RowError is one per-row failure recorded during a run. Row is 1-based
// for display; Data carries the offending row's payload so the user can
// correct and re-attempt the failed subset.
type RowError struct {
	Row     int                    `json:"row"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// Progress is the runner's observable state. Every publication is a full
// replacement snapshot, never an in-place mutation, so observers always
// see a consistent view and updates cannot be reordered relative to the
// loop that produced them. Invariant: Processed == Successful + Failed.
type Progress struct {
	Status       Status     `json:"status"`
	Total        int        `json:"total"`
	Processed    int        `json:"processed"`
	Successful   int        `json:"successful"`
	Failed       int        `json:"failed"`
	CurrentBatch int        `json:"currentBatch"`
	TotalBatches int        `json:"totalBatches"`
	Errors       []RowError `json:"errors"`
	StartedAt    time.Time  `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// RowOutcome is the final per-row record in a Result.
type RowOutcome struct {
	RowIndex int    `json:"rowIndex"`
	Success  bool   `json:"success"`
	EntityID string `json:"entityId,omitempty"`
	Error    string `json:"error,omitempty"`
	Retries  int    `json:"retries,omitempty"`
}

// Result summarizes a finished (or unwound) run. Rows never reached are
// absent from Rows; SkippedRows is reserved and always zero today.
type Result struct {
	Success      bool         `json:"success"`
	TotalRows    int          `json:"totalRows"`
	ImportedRows int          `json:"importedRows"`
	SkippedRows  int          `json:"skippedRows"`
	FailedRows   int          `json:"failedRows"`
	Rows         []RowOutcome `json:"rows"`
	CreatedIDs   []string     `json:"createdIds"`
}

// Row is the point-in-time snapshot of one grid row handed to a run.
// RowIndex is the zero-based position within the full grid.
type Row struct {
	RowIndex int                    `json:"rowIndex"`
	Fields   map[string]interface{} `json:"fields"`
}

// Creator performs the actual create-call for one row. Implementations
// return ErrRateLimited (wrapped or bare) to request a backoff-and-retry;
// any other error is terminal for that row.
type Creator interface {
	Create(ctx context.Context, endpoint string, payload map[string]interface{}) (string, error)
}

// CreatorFunc adapts a function to the Creator interface.
type CreatorFunc func(ctx context.Context, endpoint string, payload map[string]interface{}) (string, error)

func (f CreatorFunc) Create(ctx context.Context, endpoint string, payload map[string]interface{}) (string, error) {
	return f(ctx, endpoint, payload)
}

// Pacing and retry defaults for the generic runner.
const (
	DefaultBatchSize        = 10
	DefaultItemDelay        = 200 * time.Millisecond
	DefaultBatchDelay       = time.Second
	DefaultRateLimitDelay   = 3 * time.Second
	DefaultRateLimitRetries = 5

	pausePollInterval = 100 * time.Millisecond
)

// Options configure a run. Hooks are plain injected functions; a runner
// configuration is a flat data structure plus a handful of function
// references.
type Options struct {
	// Endpoint is passed through to the Creator on every row.
	Endpoint string

	BatchSize      int
	ItemDelay      time.Duration
	BatchDelay     time.Duration
	RateLimitDelay time.Duration

	// MaxRateLimitRetries caps the automatic rate-limit retries per row.
	// Zero means DefaultRateLimitRetries; a negative value removes the
	// cap entirely (the historical behavior, bounded only by the caller
	// eventually cancelling).
	MaxRateLimitRetries int

	// PrepareRow runs before TransformRow and may replace the payload,
	// e.g. to enrich it from an external lookup. A returned error fails
	// the row. Nil means no preparation.
	PrepareRow func(ctx context.Context, fields map[string]interface{}) (map[string]interface{}, error)

	// TransformRow is applied exactly once per row, immediately before
	// submission. It is handed a copy, so the grid's stored row is never
	// affected.
	TransformRow func(fields map[string]interface{}) map[string]interface{}

	OnProgress func(Progress)
	OnComplete func(Result)
	OnError    func(error)
}

func (o *Options) applyDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ItemDelay <= 0 {
		o.ItemDelay = DefaultItemDelay
	}
	if o.BatchDelay <= 0 {
		o.BatchDelay = DefaultBatchDelay
	}
	if o.RateLimitDelay <= 0 {
		o.RateLimitDelay = DefaultRateLimitDelay
	}
	if o.MaxRateLimitRetries == 0 {
		o.MaxRateLimitRetries = DefaultRateLimitRetries
	}
}
