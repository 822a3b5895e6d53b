package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/metrics"
)

// OwnerReader looks up the owner a reminder is addressed to.
type OwnerReader interface {
	GetOwner(ctx context.Context, id int64) (core.Owner, error)
}

// cachedOwners serves repeated lookups for the same owner from memory.
// Failed lookups are not cached.
type cachedOwners struct {
	next  OwnerReader
	cache *cache.LRU[int64, core.Owner]
}

// CacheOwners wraps r so each owner is read at most once per ttl.
func CacheOwners(r OwnerReader, size int, ttl time.Duration) OwnerReader {
	return &cachedOwners{next: r, cache: cache.NewLRU[int64, core.Owner](size, ttl)}
}

func (c *cachedOwners) GetOwner(ctx context.Context, id int64) (core.Owner, error) {
	if o, ok := c.cache.Get(id); ok {
		return o, nil
	}
	o, err := c.next.GetOwner(ctx, id)
	if err != nil {
		return core.Owner{}, err
	}
	c.cache.Set(id, o)
	return o, nil
}

// ReminderWorker turns upcoming-expense messages into one reminder log
// entry per expense.
type ReminderWorker struct {
	owners  OwnerReader
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewReminderWorker creates a worker. owners may be nil, in which case
// reminders carry only the owner id.
func NewReminderWorker(owners OwnerReader, m *metrics.Metrics, logger *slog.Logger) *ReminderWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderWorker{owners: owners, metrics: m, logger: logger}
}

// HandleUpcoming emits the reminders for one message. Messages for owners
// that no longer exist are dropped; any other lookup failure is returned so
// the message is redelivered.
func (w *ReminderWorker) HandleUpcoming(ctx context.Context, msg *amqp.UpcomingExpensesMessage) error {
	w.logger.InfoContext(ctx, "Processing upcoming expenses message",
		"owner_id", msg.OwnerID,
		"today", msg.Today.String(),
		"expenses", len(msg.Expenses))

	username := ""
	if w.owners != nil {
		owner, err := w.owners.GetOwner(ctx, msg.OwnerID)
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			w.logger.WarnContext(ctx, "Dropping reminders for unknown owner", "owner_id", msg.OwnerID)
			return nil
		case err != nil:
			return fmt.Errorf("get owner %d: %w", msg.OwnerID, err)
		}
		username = owner.Username
	}

	for _, exp := range msg.Expenses {
		w.logger.InfoContext(ctx, "Upcoming expense reminder",
			"owner_id", msg.OwnerID,
			"username", username,
			"expense_id", exp.ID,
			"amount", exp.Amount.StringFixed(2),
			"category", exp.Category,
			"description", exp.Description,
			"date", exp.Date.String(),
			"days_until", daysBetween(msg.Today, exp.Date))
	}
	w.metrics.RecordReminders(len(msg.Expenses))
	return nil
}

func daysBetween(from, to core.Date) int {
	return int(to.Sub(from.Time) / (24 * time.Hour))
}
