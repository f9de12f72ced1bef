package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Runner drives a point-in-time snapshot of rows through create-calls,
// batch by batch, with pacing, and exposes a finite state machine for
// observable progress. One Runner serves one run at a time; there is no
// process-wide state, so concurrent imports get their own instances.
type Runner struct {
	creator Creator
	opts    Options
	logger  *logrus.Entry

	mu         sync.Mutex
	progress   Progress
	outcomes   []RowOutcome
	createdIDs []string
	result     *Result
	paused     bool
	cancelled  bool
	cancelRun  context.CancelFunc
	done       chan struct{}
}

// NewRunner creates an idle runner. Options not set fall back to the
// package defaults.
func NewRunner(creator Creator, logger *logrus.Logger, opts Options) *Runner {
	opts.applyDefaults()
	if logger == nil {
		logger = logrus.New()
	}
	return &Runner{
		creator:  creator,
		opts:     opts,
		logger:   logger.WithField("component", "import-runner"),
		progress: Progress{Status: StatusIdle, Errors: []RowError{}},
	}
}

// Start begins the batch loop in a background goroutine and returns
// immediately. Starting while a run is in flight or finished-but-unreset
// is an explicit error rather than a silent race of two loops.
func (r *Runner) Start(ctx context.Context, rows []Row) error {
	r.mu.Lock()
	if r.progress.Status != StatusIdle {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancelRun = cancel
	r.cancelled = false
	r.paused = false
	r.outcomes = nil
	r.createdIDs = nil
	r.result = nil
	r.done = make(chan struct{})
	r.progress = Progress{
		Status:       StatusImporting,
		Total:        len(rows),
		TotalBatches: (len(rows) + r.opts.BatchSize - 1) / r.opts.BatchSize,
		Errors:       []RowError{},
		StartedAt:    time.Now(),
	}
	snapshot := r.progress
	r.mu.Unlock()

	r.publish(snapshot)
	r.logger.WithFields(logrus.Fields{
		"rows":    len(rows),
		"batches": snapshot.TotalBatches,
	}).Info("Import run started")

	go r.run(ctx, runCtx, rows)
	return nil
}

// Pause sets the pause flag. The loop polls it between items and holds
// its place; a call already in flight is not interrupted.
func (r *Runner) Pause() {
	r.mu.Lock()
	if r.progress.Status != StatusImporting {
		r.mu.Unlock()
		return
	}
	r.paused = true
	r.progress.Status = StatusPaused
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.publish(snapshot)
}

// Resume clears the pause flag.
func (r *Runner) Resume() {
	r.mu.Lock()
	if r.progress.Status != StatusPaused {
		r.mu.Unlock()
		return
	}
	r.paused = false
	r.progress.Status = StatusImporting
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.publish(snapshot)
}

// Cancel signals a cooperative abort. It is checked at the top of each
// item and each batch and interrupts pacing and backoff waits; rows
// already submitted keep their recorded outcome.
func (r *Runner) Cancel() {
	r.mu.Lock()
	if r.progress.Status != StatusImporting && r.progress.Status != StatusPaused {
		r.mu.Unlock()
		return
	}
	r.cancelled = true
	r.paused = false
	cancel := r.cancelRun
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset returns a terminal runner to idle, clearing all counters. It must
// be called before a subsequent Start.
func (r *Runner) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress.Status == StatusImporting || r.progress.Status == StatusPaused {
		return ErrNotRunning
	}
	r.progress = Progress{Status: StatusIdle, Errors: []RowError{}}
	r.outcomes = nil
	r.createdIDs = nil
	r.result = nil
	r.cancelled = false
	r.paused = false
	return nil
}

// Progress returns a snapshot copy of the current progress.
func (r *Runner) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Status returns the current run status.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress.Status
}

// Result returns the final summary of the last run, or nil while idle or
// still running.
func (r *Runner) Result() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return nil
	}
	out := *r.result
	return &out
}

// Wait blocks until the current run reaches a terminal state.
func (r *Runner) Wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}

// run is the batch loop. ctx is the caller's context and is handed to
// create-calls; runCtx additionally observes Cancel and only gates the
// loop's own waits, so an in-flight create is never forcibly aborted by a
// user cancel.
func (r *Runner) run(ctx, runCtx context.Context, rows []Row) {
	defer func() {
		if rec := recover(); rec != nil {
			r.finish(StatusFailed, fmt.Errorf("import run aborted: %v", rec))
		}
		r.mu.Lock()
		done := r.done
		r.mu.Unlock()
		close(done)
	}()

	batchSize := r.opts.BatchSize
	for start := 0; start < len(rows); start += batchSize {
		if r.isCancelled(runCtx) {
			r.finish(StatusCancelled, nil)
			return
		}

		batchNum := start/batchSize + 1
		r.mutate(func(p *Progress) { p.CurrentBatch = batchNum })

		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		for i := start; i < end; i++ {
			if !r.waitWhilePaused(runCtx) || r.isCancelled(runCtx) {
				r.finish(StatusCancelled, nil)
				return
			}

			if !r.processRow(ctx, runCtx, rows[i]) {
				r.finish(StatusCancelled, nil)
				return
			}

			// smooth the request rate inside the batch
			if i < end-1 && !sleepCtx(runCtx, r.opts.ItemDelay) {
				r.finish(StatusCancelled, nil)
				return
			}
		}

		if end < len(rows) && !sleepCtx(runCtx, r.opts.BatchDelay) {
			r.finish(StatusCancelled, nil)
			return
		}
	}

	r.finish(StatusCompleted, nil)
}

// processRow prepares, transforms and submits one row, retrying
// transparently on the distinguished rate-limit signal. It returns false
// when the run was cancelled mid-row, in which case no outcome is
// recorded for the row.
func (r *Runner) processRow(ctx, runCtx context.Context, row Row) bool {
	rowNum := row.RowIndex + 1

	payload := make(map[string]interface{}, len(row.Fields))
	for k, v := range row.Fields {
		payload[k] = v
	}

	if r.opts.PrepareRow != nil {
		prepared, err := r.opts.PrepareRow(runCtx, payload)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return false
			}
			r.recordFailure(row, rowNum, 0, err)
			return true
		}
		payload = prepared
	}

	if r.opts.TransformRow != nil {
		payload = r.opts.TransformRow(payload)
	}

	retries := 0
	for {
		id, err := r.creator.Create(ctx, r.opts.Endpoint, payload)
		if err == nil {
			r.recordSuccess(row, id, retries)
			return true
		}

		if errors.Is(err, ErrRateLimited) && (r.opts.MaxRateLimitRetries < 0 || retries < r.opts.MaxRateLimitRetries) {
			retries++
			r.logger.WithFields(logrus.Fields{
				"row":     rowNum,
				"retries": retries,
			}).Warn("Rate limited, backing off before retrying row")
			if !sleepCtx(runCtx, r.opts.RateLimitDelay) {
				return false
			}
			continue
		}

		if errors.Is(err, context.Canceled) {
			return false
		}

		r.recordFailure(row, rowNum, retries, err)
		return true
	}
}

func (r *Runner) recordSuccess(row Row, id string, retries int) {
	r.mu.Lock()
	r.progress.Processed++
	r.progress.Successful++
	r.outcomes = append(r.outcomes, RowOutcome{
		RowIndex: row.RowIndex,
		Success:  true,
		EntityID: id,
		Retries:  retries,
	})
	if id != "" {
		r.createdIDs = append(r.createdIDs, id)
	}
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.publish(snapshot)
}

func (r *Runner) recordFailure(row Row, rowNum, retries int, err error) {
	r.mu.Lock()
	r.progress.Processed++
	r.progress.Failed++
	r.progress.Errors = append(r.progress.Errors, RowError{
		Row:     rowNum,
		Message: err.Error(),
		Data:    row.Fields,
	})
	r.outcomes = append(r.outcomes, RowOutcome{
		RowIndex: row.RowIndex,
		Success:  false,
		Error:    err.Error(),
		Retries:  retries,
	})
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.publish(snapshot)

	r.logger.WithFields(logrus.Fields{
		"row": rowNum,
	}).WithError(err).Warn("Row import failed")
}

// finish moves the run to a terminal state, builds the final Result and
// fires the matching callback. Cancellation is not an error: it keeps the
// partial result and reaches neither OnComplete nor OnError.
func (r *Runner) finish(status Status, runErr error) {
	r.mu.Lock()
	now := time.Now()
	r.progress.Status = status
	r.progress.CompletedAt = &now

	result := Result{
		Success:      status == StatusCompleted && r.progress.Failed == 0,
		TotalRows:    r.progress.Total,
		ImportedRows: r.progress.Successful,
		FailedRows:   r.progress.Failed,
		Rows:         append([]RowOutcome(nil), r.outcomes...),
		CreatedIDs:   append([]string(nil), r.createdIDs...),
	}
	r.result = &result
	snapshot := r.snapshotLocked()
	onComplete := r.opts.OnComplete
	onError := r.opts.OnError
	r.mu.Unlock()

	r.publish(snapshot)

	switch status {
	case StatusCompleted:
		r.logger.WithFields(logrus.Fields{
			"imported": result.ImportedRows,
			"failed":   result.FailedRows,
		}).Info("Import run completed")
		if onComplete != nil {
			onComplete(result)
		}
	case StatusCancelled:
		r.logger.WithFields(logrus.Fields{
			"processed": snapshot.Processed,
		}).Info("Import run cancelled")
	case StatusFailed:
		r.logger.WithError(runErr).Error("Import run failed")
		if onError != nil && runErr != nil {
			onError(runErr)
		}
	}
}

// waitWhilePaused blocks in short fixed-interval sleeps while the pause
// flag is set. Returns false when the run is cancelled while waiting.
func (r *Runner) waitWhilePaused(runCtx context.Context) bool {
	for {
		r.mu.Lock()
		paused := r.paused
		cancelled := r.cancelled
		r.mu.Unlock()
		if cancelled {
			return false
		}
		if !paused {
			return true
		}
		if !sleepCtx(runCtx, pausePollInterval) {
			return false
		}
	}
}

func (r *Runner) isCancelled(runCtx context.Context) bool {
	r.mu.Lock()
	cancelled := r.cancelled
	r.mu.Unlock()
	return cancelled || runCtx.Err() != nil
}

func (r *Runner) mutate(fn func(*Progress)) {
	r.mu.Lock()
	fn(&r.progress)
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	r.publish(snapshot)
}

// snapshotLocked copies the progress, including the errors slice, so the
// published value is immune to later appends. Callers hold r.mu.
func (r *Runner) snapshotLocked() Progress {
	snapshot := r.progress
	snapshot.Errors = append([]RowError(nil), r.progress.Errors...)
	return snapshot
}

func (r *Runner) publish(p Progress) {
	if r.opts.OnProgress != nil {
		r.opts.OnProgress(p)
	}
}

// sleepCtx waits for d or until the context is done. Returns false when
// interrupted.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
