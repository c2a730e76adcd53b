package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"branch-distance-service/internal/domain"
	"branch-distance-service/internal/platform/retry"
	"branch-distance-service/internal/ports"
)

// WriteBack persists newly resolved facts. Two modes:
//
//   - Schedule/SaveFacts: ad-hoc per-fact upserts for request-time
//     fallback results. Fire-and-forget, detached from the request's
//     cancellation, and deliberately without retry: a dropped save just
//     means the next request recomputes the fact.
//   - BulkSave: the staged path for backfills — stage insert, merge,
//     truncate, each step retried independently on transient errors with
//     the final failure escalated to the alert sink. A failed merge
//     leaves staged rows in place for the next run; at-least-once,
//     not atomic.
type WriteBack struct {
	store   ports.FactStore
	alerts  ports.AlertSink
	backoff time.Duration

	wg sync.WaitGroup
}

func NewWriteBack(store ports.FactStore, alerts ports.AlertSink, backoff time.Duration) *WriteBack {
	if backoff <= 0 {
		backoff = time.Second
	}
	return &WriteBack{store: store, alerts: alerts, backoff: backoff}
}

// Schedule starts a detached save of the given facts. The context is
// stripped of its cancellation so an in-flight write-back outliving its
// request is expected, not a leak.
func (w *WriteBack) Schedule(ctx context.Context, facts []domain.BranchFact) {
	if len(facts) == 0 {
		return
	}

	ctx = context.WithoutCancel(ctx)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.SaveFacts(ctx, facts)
	}()
}

// Drain blocks until all scheduled write-backs have finished. Called on
// shutdown so detached saves are not cut off mid-flight.
func (w *WriteBack) Drain() {
	w.wg.Wait()
}

// SaveFacts upserts each fact that still requires saving. Failures are
// logged and dropped; nothing here may reach the original caller.
func (w *WriteBack) SaveFacts(ctx context.Context, facts []domain.BranchFact) {
	for i := range facts {
		if !facts[i].RequiresSaving {
			continue
		}

		if err := w.store.UpsertFact(ctx, facts[i]); err != nil {
			log.Printf("write-back: upsert branch=%q zip=%q failed, dropping: %v",
				facts[i].BranchNumber, facts[i].DestinationZip, err)
			continue
		}
		facts[i].RequiresSaving = false
	}
}

// BulkSave runs the staged write sequence. A step that exhausts its
// retries stops the sequence; earlier progress is not rolled back.
func (w *WriteBack) BulkSave(ctx context.Context, facts []domain.BranchFact) error {
	if len(facts) == 0 {
		return nil
	}

	if err := w.step(ctx, "bulk stage insert", func(ctx context.Context) error {
		return w.store.BulkStageInsert(ctx, facts)
	}); err != nil {
		return fmt.Errorf("bulk save: %w", err)
	}

	if err := w.step(ctx, "merge staged", w.store.MergeStaged); err != nil {
		return fmt.Errorf("bulk save: %w", err)
	}

	if err := w.step(ctx, "truncate staged", w.store.TruncateStaged); err != nil {
		return fmt.Errorf("bulk save: %w", err)
	}

	return nil
}

// step wraps one staged-write step in the shared retry policy: up to five
// attempts on transient errors, warnings on intermediate failures, an
// error log plus operational alert on the final one. Permanent errors
// (schema mismatches and the like) are abandoned on the first attempt.
func (w *WriteBack) step(ctx context.Context, name string, op func(context.Context) error) error {
	policy := retry.Policy{
		MaxAttempts: 5,
		Backoff:     w.backoff,
		Retryable:   ports.IsTransient,
		Notify: func(attempt int, final bool, err error) {
			if !final {
				log.Printf("write-back %s attempt=%d failed, retrying: %v", name, attempt, err)
				return
			}
			log.Printf("write-back %s failed after %d attempts: %v", name, attempt, err)
			if w.alerts != nil {
				w.alerts.Alert(ctx, fmt.Sprintf("Write-back step %q failed", name),
					fmt.Sprintf("Giving up after %d attempts: %v", attempt, err))
			}
		},
	}

	return policy.Do(ctx, op)
}
