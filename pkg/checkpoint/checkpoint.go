package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "pinscraper/pkg/errors"
	"pinscraper/pkg/logger"
	"pinscraper/pkg/retry"
	"pinscraper/pkg/store"
)

// Store is the part of the persistent store the writer needs
type Store interface {
	Exists(ctx context.Context, table store.Table, key store.Row) (bool, error)
	Insert(ctx context.Context, table store.Table, key store.Row, fields store.Row) error
	Update(ctx context.Context, table store.Table, key store.Row, fields store.Row) (int64, error)
}

// Entry is one record to commit
type Entry struct {
	Table  store.Table
	Key    store.Row
	Fields store.Row
}

// Outcome tells how a commit ended
type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeUpdated
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Summary counts the outcomes of a batch
type Summary struct {
	Inserted int
	Updated  int
	Dropped  int
}

// Total returns the number of records committed or dropped
func (s Summary) Total() int {
	return s.Inserted + s.Updated + s.Dropped
}

// Writer commits records one at a time: update when present, insert
// otherwise, and update again when the insert loses a race
type Writer struct {
	store      Store
	retryDelay time.Duration
	logger     logger.Logger
}

// NewWriter creates a writer that waits retryDelay before its one re-try
func NewWriter(s Store, retryDelay time.Duration, log logger.Logger) *Writer {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Writer{
		store:      s,
		retryDelay: retryDelay,
		logger:     log.WithField("component", "checkpoint"),
	}
}

// Commit writes one record. A record that still fails after the re-try is
// dropped: the outcome is OutcomeDropped and the error is a persistence
// failure the caller may log and move past.
func (w *Writer) Commit(ctx context.Context, e Entry) (Outcome, error) {
	outcome, err := retry.DoWithResult(func() (Outcome, error) {
		return w.commitOnce(ctx, e)
	}, &retry.Config{
		MaxAttempts: 2,
		Backoff:     &retry.ConstantBackoff{Delay: w.retryDelay},
		RetryIf: func(err error) bool {
			return errs.Is(err, errs.KindPersistenceFailure) && ctx.Err() == nil
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.LogRetryDecision(w.logger.WithFields(entryFields(e)), "persistence failure", attempt, 2, err)
		},
		Context: ctx,
	})
	if err == nil {
		return outcome, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return OutcomeDropped, ctxErr
	}

	w.logger.WithError(err).WarnWithFields("Dropping record after failed commit", entryFields(e))
	return OutcomeDropped, errs.Wrap(errs.KindPersistenceFailure, "checkpoint.commit", err)
}

func (w *Writer) commitOnce(ctx context.Context, e Entry) (Outcome, error) {
	exists, err := w.store.Exists(ctx, e.Table, e.Key)
	if err != nil {
		return 0, err
	}
	if exists {
		return w.update(ctx, e)
	}

	err = w.store.Insert(ctx, e.Table, e.Key, e.Fields)
	if err == nil {
		return OutcomeInserted, nil
	}
	if errors.Is(err, store.ErrConflict) {
		w.logger.DebugWithFields("Insert conflicted, updating instead", entryFields(e))
		return w.update(ctx, e)
	}
	return 0, err
}

func (w *Writer) update(ctx context.Context, e Entry) (Outcome, error) {
	if len(e.Fields) == 0 {
		return OutcomeUpdated, nil
	}
	if _, err := w.store.Update(ctx, e.Table, e.Key, e.Fields); err != nil {
		return 0, err
	}
	return OutcomeUpdated, nil
}

// CommitAll commits entries in order. Dropped records are counted, not
// returned; only a cancelled context stops the batch.
func (w *Writer) CommitAll(ctx context.Context, entries []Entry) (Summary, error) {
	var sum Summary
	for _, e := range entries {
		outcome, err := w.Commit(ctx, e)
		if err != nil && ctx.Err() != nil {
			return sum, fmt.Errorf("commit interrupted after %d records: %w", sum.Total(), ctx.Err())
		}
		switch outcome {
		case OutcomeInserted:
			sum.Inserted++
		case OutcomeUpdated:
			sum.Updated++
		default:
			sum.Dropped++
		}
	}

	w.logger.InfoWithFields("Records committed", map[string]interface{}{
		"inserted": sum.Inserted,
		"updated":  sum.Updated,
		"dropped":  sum.Dropped,
	})
	return sum, nil
}

func entryFields(e Entry) map[string]interface{} {
	fields := map[string]interface{}{"table": string(e.Table)}
	for k, v := range e.Key {
		fields[k] = v
	}
	return fields
}
