// Package ledger defines the storage ports the services depend on.
package ledger

import (
	"context"
	"errors"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned (wrapped) when an owner or transaction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a username is already taken.
	ErrConflict = errors.New("already exists")
)

// Filter selects an owner's transactions. Zero values mean "any".
type Filter struct {
	Kind          core.Kind
	Category      core.Category
	From          core.Date // inclusive
	To            core.Date // inclusive
	RecurringOnly bool
}

// Matches reports whether tx satisfies f, ignoring ownership.
func (f Filter) Matches(tx core.Transaction) bool {
	if f.Kind != "" && tx.Kind != f.Kind {
		return false
	}
	if f.Category != "" && tx.Category != f.Category {
		return false
	}
	if !f.From.IsZero() && tx.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && tx.Date.After(f.To) {
		return false
	}
	if f.RecurringOnly && !tx.IsRecurring {
		return false
	}
	return true
}

// MonthRange returns the inclusive range covering year/month. A zero month
// covers the whole year.
func MonthRange(year, month int) (core.Date, core.Date) {
	if month == 0 {
		return core.NewDate(year, 1, 1), core.NewDate(year, 12, 31)
	}
	from := core.NewDate(year, month, 1)
	return from, from.AddMonths(1).AddDays(-1)
}

// Ports for outbound adapters.
type (
	// Summer totals amounts. The result is invalid (not zero) when no rows match.
	Summer interface {
		SumAmount(ctx context.Context, ownerID int64, f Filter) (decimal.NullDecimal, error)
	}

	// Lister returns matching transactions, newest date first.
	Lister interface {
		List(ctx context.Context, ownerID int64, f Filter) ([]core.Transaction, error)
	}

	// DatePersister stores new dates for a batch of the owner's transactions.
	// Either every date is written or none is.
	DatePersister interface {
		BulkUpdateDates(ctx context.Context, ownerID int64, txs []core.Transaction) error
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		GetTransaction(ctx context.Context, kind core.Kind, id int64) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, kind core.Kind, id int64) error
	}

	OwnerStore interface {
		CreateOwner(ctx context.Context, o core.Owner) (core.Owner, error)
		GetOwner(ctx context.Context, id int64) (core.Owner, error)
		UpdateOwner(ctx context.Context, o core.Owner) (core.Owner, error)
		// DeleteOwner removes the owner and all of their transactions.
		DeleteOwner(ctx context.Context, id int64) error
		ListOwners(ctx context.Context) ([]core.Owner, error)
		SetBudget(ctx context.Context, ownerID int64, b core.BudgetSetting) error
	}

	Store interface {
		Summer
		Lister
		DatePersister
		TransactionStore
		OwnerStore
		// Ping reports whether the backing database is reachable.
		Ping(ctx context.Context) error
		Close() error
	}
)
