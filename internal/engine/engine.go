// Package engine is the download scheduler: a single dispatch loop that
// promotes pending jobs into at most N concurrently running subprocess
// runners, applies their terminal outcomes, and drives the retry policy.
package engine

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/hunght/gograb/internal/app"
	"github.com/hunght/gograb/internal/config"
	"github.com/hunght/gograb/internal/domain"
	"github.com/hunght/gograb/internal/logger"
	"github.com/hunght/gograb/internal/runner"
	"github.com/segmentio/ksuid"
)

// Runner executes one job end to end and returns only once its subprocess
// is confirmed dead.
type Runner interface {
	Run(ctx context.Context, job *domain.DownloadJob) runner.Outcome
}

type stopIntent string

const (
	intentNone   stopIntent = ""
	intentCancel stopIntent = "cancel"
	intentPause  stopIntent = "pause"
)

// activeJob is one occupied worker slot. The map it lives in is owned
// exclusively by the engine; runners report back by returning from Run.
type activeJob struct {
	cancel context.CancelFunc
	intent stopIntent
}

type Engine struct {
	mu     sync.Mutex
	active map[string]*activeJob

	store  app.Store
	runner Runner
	meta   app.MetadataResolver
	log    *logger.Logger

	maxConcurrent int
	retry         config.RetryConfig

	wake chan struct{}
	wg   sync.WaitGroup
}

func New(store app.Store, r Runner, meta app.MetadataResolver, log *logger.Logger, maxConcurrent int, retry config.RetryConfig) *Engine {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	return &Engine{
		active:        make(map[string]*activeJob),
		store:         store,
		runner:        r,
		meta:          meta,
		log:           log,
		maxConcurrent: maxConcurrent,
		retry:         retry,
		wake:          make(chan struct{}, 1),
	}
}

// Start runs the dispatch loop until ctx is cancelled, then waits for the
// active runners to drain. The loop wakes on enqueue/slot-free signals; the
// ticker is a safety net against a missed signal.
func (e *Engine) Start(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		e.dispatch(ctx)

		select {
		case <-ctx.Done():
			e.wg.Wait()
			return
		case <-e.wake:
		case <-ticker.C:
		}
	}
}

// dispatch fills free slots with the oldest pending jobs. The store CAS is
// what actually claims a job; an in-memory check only avoids re-listing a
// job this process is already running.
func (e *Engine) dispatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	for {
		e.mu.Lock()
		free := e.maxConcurrent - len(e.active)
		e.mu.Unlock()

		if free <= 0 {
			return
		}

		pending, err := e.store.ListJobsByStatus(domain.StatusPending)
		if err != nil {
			e.log.Error("[Engine] failed to list pending jobs: %v", err)
			return
		}

		started := false
		for _, job := range pending {
			e.mu.Lock()
			_, busy := e.active[job.ID]
			e.mu.Unlock()
			if busy {
				continue
			}

			claimed, err := e.store.Transition(job.ID, domain.StatusPending, domain.StatusQueued, nil)
			if err != nil {
				e.log.Error("[Engine] failed to claim job %s: %v", job.ID, err)
				continue
			}
			if !claimed {
				// Lost the race to another actor, move on
				continue
			}

			job.Status = domain.StatusQueued
			e.launch(ctx, job)
			started = true
			break
		}

		if !started {
			return
		}
	}
}

func (e *Engine) launch(ctx context.Context, job *domain.DownloadJob) {
	jobCtx, cancel := context.WithCancel(ctx)

	e.mu.Lock()
	e.active[job.ID] = &activeJob{cancel: cancel}
	e.mu.Unlock()

	e.log.Info("[Engine] starting job %s (%s)", job.ID, job.SourceURL)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()

		outcome := e.runner.Run(jobCtx, job)
		e.finalize(ctx, job, outcome)

		e.mu.Lock()
		delete(e.active, job.ID)
		e.mu.Unlock()

		e.signal()
	}()
}

// finalize writes the terminal state for one finished run. It only executes
// after Run returns, i.e. with the subprocess confirmed dead, so a terminal
// status is never written speculatively.
func (e *Engine) finalize(parent context.Context, job *domain.DownloadJob, outcome runner.Outcome) {
	intent := e.intentFor(job.ID)

	switch {
	case intent == intentPause:
		// Progress is retained; yt-dlp resumes .part files on the next run.
		if ok, _ := e.store.Transition(job.ID, domain.StatusDownloading, domain.StatusPaused, nil); ok {
			e.log.Info("[Engine] job %s paused", job.ID)
			return
		}
		// Never reached downloading; put it back in line instead
		_, _ = e.store.Transition(job.ID, domain.StatusQueued, domain.StatusPending, domain.RecoveryFields())

	case intent == intentCancel:
		if ok, _ := e.store.Transition(job.ID, domain.StatusDownloading, domain.StatusCancelled, nil); !ok {
			_, _ = e.store.Transition(job.ID, domain.StatusQueued, domain.StatusCancelled, nil)
		}
		e.log.Info("[Engine] job %s cancelled", job.ID)

	case parent.Err() != nil:
		// Shutdown, not a user action: hand the job back to the queue so
		// the next start picks it up without waiting for crash recovery.
		if ok, _ := e.store.Transition(job.ID, domain.StatusDownloading, domain.StatusPending, domain.RecoveryFields()); !ok {
			_, _ = e.store.Transition(job.ID, domain.StatusQueued, domain.StatusPending, domain.RecoveryFields())
		}

	case outcome.Kind == runner.OutcomeCompleted:
		ok, err := e.store.Transition(job.ID, domain.StatusDownloading, domain.StatusCompleted,
			domain.CompletionFields(outcome.FilePath, outcome.FileSizeBytes))
		if err != nil {
			e.log.Error("[Engine] failed to complete job %s: %v", job.ID, err)
			return
		}
		if ok {
			e.log.Info("[Engine] job %s completed: %s", job.ID, outcome.FilePath)
			e.resolveMetadata(job, outcome.FilePath)
		}

	case outcome.Kind == runner.OutcomeFailed:
		fields := domain.FailureFields(outcome.ErrorMessage, outcome.ErrorKind, outcome.Retryable)
		ok, err := e.store.Transition(job.ID, domain.StatusDownloading, domain.StatusFailed, fields)
		if err == nil && !ok {
			// Spawn failures happen before the runner ever claims downloading
			ok, err = e.store.Transition(job.ID, domain.StatusQueued, domain.StatusFailed, fields)
		}
		if err != nil {
			e.log.Error("[Engine] failed to fail job %s: %v", job.ID, err)
			return
		}
		if ok {
			e.log.Warn("[Engine] job %s failed (%s, retryable=%t): %s",
				job.ID, outcome.ErrorKind, outcome.Retryable, outcome.ErrorMessage)
			e.scheduleAutoRetry(job, outcome)
		}

	default:
		// Runner lost its claim without an intent recorded here: another
		// actor already moved the job, nothing left to write.
	}
}

// scheduleAutoRetry re-queues a retryable failure after an exponential
// backoff (base, 2x base, 4x base...). The cap is configuration; RetryCount
// stays visible so callers can impose their own ceiling on top.
func (e *Engine) scheduleAutoRetry(job *domain.DownloadJob, outcome runner.Outcome) {
	if !outcome.Retryable || !e.retry.Auto || job.RetryCount >= e.retry.MaxAuto {
		return
	}

	delay := time.Duration(math.Pow(2, float64(job.RetryCount))) * e.retry.BackoffBase
	e.log.Warn("[Retry] job %s: attempt %d/%d in %s", job.ID, job.RetryCount+1, e.retry.MaxAuto, delay)

	time.AfterFunc(delay, func() {
		ok, err := e.store.Transition(job.ID, domain.StatusFailed, domain.StatusPending, domain.RequeueFields())
		if err != nil {
			e.log.Error("[Retry] job %s: re-queue failed: %v", job.ID, err)
			return
		}
		if ok {
			e.signal()
		}
	})
}

func (e *Engine) resolveMetadata(job *domain.DownloadJob, filePath string) {
	if e.meta == nil {
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		info, err := e.meta.Resolve(ctx, job.SourceURL, filePath)
		if err != nil {
			e.log.Warn("[Engine] metadata resolution failed for %s: %v", job.ID, err)
			return
		}

		if err := e.store.UpdateMetadata(job.ID, info.Title, info.DurationSeconds); err != nil {
			e.log.Warn("[Engine] metadata write failed for %s: %v", job.ID, err)
		}
	}()
}

func (e *Engine) intentFor(id string) stopIntent {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.active[id]; ok {
		return a.intent
	}
	return intentNone
}

// signal wakes the dispatch loop without blocking the caller
func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
		// Signal already pending, no need to block
	}
}

// ActiveCount reports how many worker slots are currently occupied.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Enqueue persists one pending row per URL and wakes the loop. It performs
// no downloading itself.
func (e *Engine) Enqueue(params domain.EnqueueParams) ([]string, error) {
	if len(params.URLs) == 0 {
		return nil, domain.ErrEmptyBatch
	}

	now := time.Now()
	ids := make([]string, 0, len(params.URLs))

	for i, url := range params.URLs {
		// Stagger by a microsecond so a batch keeps its submission order
		// under the created_at sort.
		ts := now.Add(time.Duration(i) * time.Microsecond)
		job := &domain.DownloadJob{
			ID:                     ksuid.New().String(),
			SourceURL:              url,
			Status:                 domain.StatusPending,
			Format:                 params.Format,
			OutputFormat:           params.OutputFormat,
			OutputPath:             params.OutputPath,
			OutputFilenameTemplate: params.OutputFilenameTemplate,
			CreatedAt:              ts,
			UpdatedAt:              ts,
		}

		if err := e.store.CreateJob(job); err != nil {
			return ids, err
		}
		ids = append(ids, job.ID)
	}

	e.signal()
	return ids, nil
}

// Cancel stops a job wherever it is. An active job gets its subprocess
// terminated and is marked cancelled only after the process is dead; a job
// that never started is swapped straight to cancelled.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	if a, ok := e.active[id]; ok {
		a.intent = intentCancel
		a.cancel()
		e.mu.Unlock()
		return true
	}
	e.mu.Unlock()

	for _, from := range []domain.JobStatus{domain.StatusPending, domain.StatusQueued, domain.StatusPaused} {
		if ok, _ := e.store.Transition(id, from, domain.StatusCancelled, nil); ok {
			return true
		}
	}
	return false
}

// Pause terminates an active job's subprocess but keeps the row (and its
// partial download) for a later resume. Only active jobs can pause.
func (e *Engine) Pause(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if a, ok := e.active[id]; ok && a.intent == intentNone {
		a.intent = intentPause
		a.cancel()
		return true
	}
	return false
}

// Resume re-enters a paused job at pending.
func (e *Engine) Resume(id string) bool {
	ok, _ := e.store.Transition(id, domain.StatusPaused, domain.StatusPending, nil)
	if ok {
		e.signal()
	}
	return ok
}

// Retry re-queues a failed job. Rejected unless the failure was classified
// retryable; increments RetryCount and clears the error triple.
func (e *Engine) Retry(id string) bool {
	job, err := e.store.GetJob(id)
	if err != nil || job == nil {
		return false
	}
	if job.Status != domain.StatusFailed || !job.IsRetryable {
		return false
	}

	ok, err := e.store.Transition(id, domain.StatusFailed, domain.StatusPending, domain.RequeueFields())
	if err != nil || !ok {
		return false
	}

	e.signal()
	return true
}

// Delete removes a job row. Refused while a runner owns the job so a live
// subprocess is never orphaned.
func (e *Engine) Delete(id string) error {
	e.mu.Lock()
	_, busy := e.active[id]
	e.mu.Unlock()

	if busy {
		return domain.ErrJobActive
	}
	return e.store.DeleteJob(id)
}

func (e *Engine) GetJob(id string) (*domain.DownloadJob, error) {
	return e.store.GetJob(id)
}

func (e *Engine) ListJobs(filter domain.JobFilter) ([]*domain.DownloadJob, error) {
	return e.store.ListJobs(filter)
}

func (e *Engine) Stats() (*domain.QueueStats, error) {
	return e.store.Stats()
}
