package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/metrics"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultUpcomingHorizonDays is how far ahead Rollforward looks for due expenses.
	DefaultUpcomingHorizonDays = 30

	// sharedRollforwardTimeout bounds a coalesced rollforward, which no
	// single caller can cancel.
	sharedRollforwardTimeout = 30 * time.Second
)

// RecurringStore is the subset of the ledger the processor needs.
type RecurringStore interface {
	ledger.Lister
	ledger.DatePersister
	GetOwner(ctx context.Context, id int64) (core.Owner, error)
}

// UpcomingNotifier is told about the expenses due inside the horizon after a
// successful rollforward.
type UpcomingNotifier interface {
	PublishUpcoming(ctx context.Context, ownerID int64, today core.Date, upcoming []core.Transaction) error
}

// RecurringProcessor advances the due date of recurring expenses on demand.
type RecurringProcessor struct {
	store       RecurringStore
	notifier    UpcomingNotifier
	metrics     *metrics.Metrics
	horizonDays int
	group       singleflight.Group
}

// NewRecurringProcessor creates a new recurring expense processor. notifier
// may be nil.
func NewRecurringProcessor(store RecurringStore, notifier UpcomingNotifier, m *metrics.Metrics, horizonDays int) *RecurringProcessor {
	if horizonDays <= 0 {
		horizonDays = DefaultUpcomingHorizonDays
	}
	return &RecurringProcessor{
		store:       store,
		notifier:    notifier,
		metrics:     m,
		horizonDays: horizonDays,
	}
}

// Rollforward moves every recurring expense of the owner to its first
// occurrence on or after today, persists the new dates in one batch and
// returns the expenses falling in [today, today+horizon], earliest first.
//
// Concurrent calls for the same owner and day share one execution. The
// shared run is detached from the caller that started it, so a caller that
// goes away gets its own context error while the others still get the
// result.
func (p *RecurringProcessor) Rollforward(ctx context.Context, ownerID int64, today core.Date) ([]core.Transaction, error) {
	key := strconv.FormatInt(ownerID, 10) + "/" + today.String()
	ch := p.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedRollforwardTimeout)
		defer cancel()
		return p.rollforward(runCtx, ownerID, today)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		upcoming := res.Val.([]core.Transaction)
		if res.Shared {
			upcoming = append([]core.Transaction(nil), upcoming...)
		}
		return upcoming, nil
	}
}

func (p *RecurringProcessor) rollforward(ctx context.Context, ownerID int64, today core.Date) ([]core.Transaction, error) {
	if _, err := p.store.GetOwner(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("get owner: %w", err)
	}

	recurring, err := p.store.List(ctx, ownerID, ledger.Filter{Kind: core.Expense, RecurringOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list recurring expenses: %w", err)
	}

	var changed []core.Transaction
	for i := range recurring {
		tx := &recurring[i]
		if tx.Interval == nil || tx.Interval.IsZero() {
			return nil, fmt.Errorf("expense %d: %w", tx.ID, core.ErrZeroInterval)
		}
		advanced := advance(tx.Date, *tx.Interval, today)
		if advanced.Equal(tx.Date) {
			continue
		}
		slog.DebugContext(ctx, "Advancing recurring expense",
			"expense_id", tx.ID,
			"from", tx.Date.String(),
			"to", advanced.String(),
			"interval", tx.Interval.String())
		tx.Date = advanced
		changed = append(changed, *tx)
	}

	if len(changed) > 0 {
		if err := p.store.BulkUpdateDates(ctx, ownerID, changed); err != nil {
			return nil, fmt.Errorf("persist rolled dates: %w", err)
		}
		p.metrics.RecordRolledForward(len(changed))
	}

	horizon := today.AddDays(p.horizonDays)
	upcoming := make([]core.Transaction, 0, len(recurring))
	for _, tx := range recurring {
		if !tx.Date.Before(today) && !tx.Date.After(horizon) {
			upcoming = append(upcoming, tx)
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		if !upcoming[i].Date.Equal(upcoming[j].Date) {
			return upcoming[i].Date.Before(upcoming[j].Date)
		}
		return upcoming[i].ID < upcoming[j].ID
	})

	slog.InfoContext(ctx, "Recurring expense rollforward complete",
		"owner_id", ownerID,
		"recurring", len(recurring),
		"advanced", len(changed),
		"upcoming", len(upcoming))

	if p.notifier != nil && len(upcoming) > 0 {
		if err := p.notifier.PublishUpcoming(ctx, ownerID, today, upcoming); err != nil {
			slog.ErrorContext(ctx, "Failed to publish upcoming expenses",
				"owner_id", ownerID,
				"error", err)
			// Dates are already persisted; the reminder is best effort.
		}
	}
	return upcoming, nil
}

// advance applies iv to date until it is no longer before today.
func advance(date core.Date, iv core.Interval, today core.Date) core.Date {
	for date.Before(today) {
		date = iv.AddTo(date)
	}
	return date
}
