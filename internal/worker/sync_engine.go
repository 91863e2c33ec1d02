package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tasksync/internal/domain"
	"tasksync/internal/events"
	"tasksync/internal/metrics"
	"tasksync/internal/models"
	"tasksync/internal/payload"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options tune the engine. A nil Retry disables re-running failed batches;
// the next connectivity change or restart retries them instead.
type Options struct {
	RemoteTimeout time.Duration
	Retry         *RetryPolicy
}

// Result summarises one batch.
type Result struct {
	RunID     string
	Processed int
	Conflicts int
	Remaining int
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

// Engine replays the outbox against the remote task service. At most one
// batch runs at a time; triggers that arrive meanwhile are dropped.
type Engine struct {
	store  domain.SyncStore
	remote domain.RemoteTaskService
	events domain.EventPublisher
	opts   Options
	logger *zerolog.Logger

	syncing atomic.Bool
	last    atomic.Pointer[Result]
	online  atomic.Pointer[func() bool]

	mu         sync.Mutex
	stopping   bool
	attempts   int
	retryTimer *time.Timer
	wg         sync.WaitGroup
}

func NewEngine(store domain.SyncStore, remote domain.RemoteTaskService, publisher domain.EventPublisher, opts Options, logger *zerolog.Logger) *Engine {
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = models.DefaultRemoteTimeout * time.Second
	}
	if opts.Retry != nil {
		policy := opts.Retry.withDefaults()
		opts.Retry = &policy
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Engine{
		store:  store,
		remote: remote,
		events: publisher,
		opts:   opts,
		logger: logger,
	}
}

func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// LastResult returns the most recent finished batch, nil before the first.
func (e *Engine) LastResult() *Result {
	return e.last.Load()
}

// Run follows the monitor until ctx is done. It syncs once at startup when
// already online and again on every transition to online. On return no
// batch started by Run is still in flight.
func (e *Engine) Run(ctx context.Context, monitor domain.ConnectivityMonitor) {
	updates, unsubscribe := monitor.Subscribe()
	defer unsubscribe()

	isOnline := monitor.CurrentState
	e.online.Store(&isOnline)

	e.mu.Lock()
	e.stopping = false
	e.mu.Unlock()

	e.logger.Info().Msg("sync engine started")
	defer e.logger.Info().Msg("sync engine stopped")

	if monitor.CurrentState() {
		e.Trigger(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case online, ok := <-updates:
			if !ok {
				e.shutdown()
				return
			}
			if !online {
				continue
			}
			e.mu.Lock()
			e.attempts = 0
			e.mu.Unlock()
			e.Trigger(ctx)
		}
	}
}

func (e *Engine) shutdown() {
	e.mu.Lock()
	e.stopping = true
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	e.mu.Unlock()
	e.wg.Wait()
}

// Trigger starts a batch in the background. It returns false without doing
// anything when a batch is already running.
func (e *Engine) Trigger(ctx context.Context) bool {
	e.mu.Lock()
	if e.stopping || !e.syncing.CompareAndSwap(false, true) {
		e.mu.Unlock()
		return false
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		res := e.execute(ctx)
		e.scheduleRetry(ctx, res)
	}()
	return true
}

// SyncNow runs a batch on the caller's goroutine. It fails with
// domain.ErrSyncInProgress, changing nothing, while another batch runs.
func (e *Engine) SyncNow(ctx context.Context) (Result, error) {
	if !e.syncing.CompareAndSwap(false, true) {
		return Result{}, domain.ErrSyncInProgress
	}
	res := e.execute(ctx)
	return res, res.Err
}

// execute runs one batch and clears the syncing flag. Cancelling ctx does not
// abort the batch: it ends on completion or first failure, and every remote
// call is bounded by RemoteTimeout.
func (e *Engine) execute(ctx context.Context) Result {
	defer e.syncing.Store(false)

	res := e.process(context.WithoutCancel(ctx))
	e.last.Store(&res)
	return res
}

func (e *Engine) process(ctx context.Context) Result {
	res := Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := e.logger.With().Str("run_id", res.RunID).Logger()

	entries, err := e.store.DrainSyncQueue(ctx)
	if err != nil {
		res.Err = err
		logger.Error().Err(err).Msg("failed to read sync queue")
		e.finish(&logger, &res)
		return res
	}
	if len(entries) == 0 {
		logger.Debug().Msg("sync queue empty")
		metrics.SetPending(0)
		return res
	}

	logger.Info().Int("entries", len(entries)).Msg("sync started")
	e.publish(models.EventSyncStarted, events.SyncEventPayload{RunID: res.RunID, Remaining: len(entries)})

	// Tasks this batch already wrote to the remote. Their remote version is
	// ours, so later entries for them skip the fetch.
	pushed := make(map[int64]bool)

	for _, entry := range entries {
		conflict, err := e.processEntry(ctx, &logger, res.RunID, entry, pushed)
		if err != nil {
			res.Err = err
			logger.Warn().Err(err).
				Int64("entry_id", entry.ID).
				Int64("task_id", entry.TaskID).
				Str("operation", string(entry.Operation)).
				Msg("sync stopped at failing entry")
			break
		}
		res.Processed++
		if conflict {
			res.Conflicts++
		}
	}

	e.finish(&logger, &res)
	return res
}

func (e *Engine) finish(logger *zerolog.Logger, res *Result) {
	res.Duration = time.Since(res.StartedAt)

	if remaining, err := e.store.PendingSyncCount(context.Background()); err != nil {
		logger.Warn().Err(err).Msg("failed to count pending entries")
	} else {
		res.Remaining = remaining
		metrics.SetPending(remaining)
	}

	body := events.SyncEventPayload{
		RunID:     res.RunID,
		Processed: res.Processed,
		Conflicts: res.Conflicts,
		Remaining: res.Remaining,
	}
	if res.Err != nil {
		body.Error = res.Err.Error()
		metrics.ObserveSyncRun("failure", res.Duration.Seconds())
		e.publish(models.EventSyncFailed, body)
		logger.Warn().Int("processed", res.Processed).Int("remaining", res.Remaining).Msg("sync failed")
		return
	}

	metrics.ObserveSyncRun("success", res.Duration.Seconds())
	e.publish(models.EventSyncCompleted, body)
	logger.Info().
		Int("processed", res.Processed).
		Int("conflicts", res.Conflicts).
		Dur("duration", res.Duration).
		Msg("sync completed")
}

// processEntry applies one outbox entry. It reports whether the remote copy
// won the conflict check.
func (e *Engine) processEntry(ctx context.Context, logger *zerolog.Logger, runID string, entry models.SyncEntry, pushed map[int64]bool) (bool, error) {
	var task *models.Task
	switch entry.Operation {
	case models.OpCreate, models.OpUpdate:
		decoded, err := payload.Decode(entry)
		if err != nil {
			return false, err
		}
		task = decoded
	case models.OpDelete:
	default:
		return false, &domain.SerializationError{EntryID: entry.ID, Err: fmt.Errorf("unknown operation %q", entry.Operation)}
	}

	if !pushed[entry.TaskID] {
		version, err := e.fetchVersion(ctx, entry.TaskID)
		if err != nil {
			return false, err
		}
		if version != nil && version.ServerModifiedAt.After(entry.Timestamp) {
			ours, err := e.store.PushedVersion(ctx, entry.TaskID)
			if err != nil {
				return false, err
			}
			// A version this client wrote is not a competing edit.
			if !version.ServerModifiedAt.Equal(ours) {
				return true, e.discard(ctx, logger, runID, entry, version)
			}
		}
	}

	var pushedAt time.Time
	if task != nil {
		at, err := e.push(ctx, task)
		if err != nil {
			return false, err
		}
		pushedAt = at
	} else {
		if err := e.pushDelete(ctx, entry.TaskID); err != nil {
			return false, err
		}
	}
	pushed[entry.TaskID] = true

	if err := e.store.ConfirmSyncEntry(ctx, entry, pushedAt); err != nil {
		return false, err
	}
	metrics.IncSyncEntry(string(entry.Operation))
	logger.Debug().Int64("entry_id", entry.ID).Int64("task_id", entry.TaskID).Str("operation", string(entry.Operation)).Msg("entry synced")
	return false, nil
}

// discard drops an entry that lost to a newer remote version and logs the
// conflict.
func (e *Engine) discard(ctx context.Context, logger *zerolog.Logger, runID string, entry models.SyncEntry, version *models.RemoteVersion) error {
	record := &models.ConflictRecord{
		TaskID:          entry.TaskID,
		EntryID:         entry.ID,
		Operation:       entry.Operation,
		LocalTimestamp:  entry.Timestamp,
		RemoteTimestamp: version.ServerModifiedAt,
		Resolution:      models.ResolutionRemoteWins,
	}
	if err := e.store.RecordConflict(ctx, record); err != nil {
		return err
	}
	if err := e.store.ConfirmSyncEntry(ctx, entry, time.Time{}); err != nil {
		return err
	}

	metrics.IncConflict()
	e.publish(models.EventSyncConflict, events.ConflictEventPayload{
		RunID:           runID,
		TaskID:          entry.TaskID,
		EntryID:         entry.ID,
		Operation:       string(entry.Operation),
		LocalTimestamp:  entry.Timestamp,
		RemoteTimestamp: version.ServerModifiedAt,
	})
	logger.Info().
		Int64("entry_id", entry.ID).
		Int64("task_id", entry.TaskID).
		Time("local", entry.Timestamp).
		Time("remote", version.ServerModifiedAt).
		Msg("remote version is newer, local change dropped")
	return nil
}

func (e *Engine) fetchVersion(ctx context.Context, taskID int64) (*models.RemoteVersion, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	defer cancel()
	version, err := e.remote.FetchVersion(ctx, taskID)
	return version, remoteErr("fetch", taskID, err)
}

func (e *Engine) push(ctx context.Context, task *models.Task) (time.Time, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	defer cancel()
	at, err := e.remote.Push(ctx, task)
	return at, remoteErr("push", task.ID, err)
}

func (e *Engine) pushDelete(ctx context.Context, taskID int64) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.RemoteTimeout)
	defer cancel()
	return remoteErr("delete", taskID, e.remote.PushDelete(ctx, taskID))
}

// remoteErr makes sure every collaborator failure, a timeout included,
// surfaces as a RemoteError.
func remoteErr(op string, taskID int64, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", domain.ErrRemoteUnavailable, err)
	}
	return domain.NewRemoteError(op, taskID, err)
}

func (e *Engine) scheduleRetry(ctx context.Context, res Result) {
	if e.opts.Retry == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if res.Err == nil {
		e.attempts = 0
		return
	}
	if e.stopping || ctx.Err() != nil {
		return
	}
	if fn := e.online.Load(); fn != nil && !(*fn)() {
		return
	}
	if e.attempts >= e.opts.Retry.MaxRetries {
		e.logger.Warn().Int("attempts", e.attempts).Msg("sync retries exhausted, waiting for connectivity change")
		return
	}

	e.attempts++
	delay := e.opts.Retry.NextDelay(e.attempts)
	e.logger.Info().Int("attempt", e.attempts).Dur("delay", delay).Msg("sync retry scheduled")
	e.retryTimer = time.AfterFunc(delay, func() {
		e.Trigger(ctx)
	})
}

func (e *Engine) publish(eventType string, body interface{}) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishJSON(eventType, body); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
