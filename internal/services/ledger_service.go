package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
)

// ListQuery filters a transaction listing. Zero fields mean "any".
type ListQuery struct {
	Kind     core.Kind
	Year     int
	Month    int
	Category core.Category
}

// TransactionList is a filtered listing together with its category breakdown.
type TransactionList struct {
	Items []core.Transaction
	Stat  core.Breakdown
}

// LedgerService orchestrates owner and transaction CRUD over a ledger.Store.
type LedgerService struct {
	store ledger.Store
}

func NewLedgerService(store ledger.Store) *LedgerService {
	return &LedgerService{store: store}
}

func (s *LedgerService) CreateOwner(ctx context.Context, o core.Owner) (core.Owner, error) {
	o.Budget.IncomeGoal = core.RoundAmount(o.Budget.IncomeGoal)
	o.Budget.ExpenseBudget = core.RoundAmount(o.Budget.ExpenseBudget)
	if err := o.Validate(); err != nil {
		return core.Owner{}, err
	}
	created, err := s.store.CreateOwner(ctx, o)
	if err != nil {
		return core.Owner{}, fmt.Errorf("create owner: %w", err)
	}
	slog.InfoContext(ctx, "Owner created", "owner_id", created.ID, "username", created.Username)
	return created, nil
}

func (s *LedgerService) GetOwner(ctx context.Context, id int64) (core.Owner, error) {
	o, err := s.store.GetOwner(ctx, id)
	if err != nil {
		return core.Owner{}, fmt.Errorf("get owner: %w", err)
	}
	return o, nil
}

// UpdateOwner replaces the profile fields and keeps the stored budget.
func (s *LedgerService) UpdateOwner(ctx context.Context, o core.Owner) (core.Owner, error) {
	current, err := s.store.GetOwner(ctx, o.ID)
	if err != nil {
		return core.Owner{}, fmt.Errorf("get owner: %w", err)
	}
	o.Budget = current.Budget
	if err := o.Validate(); err != nil {
		return core.Owner{}, err
	}
	updated, err := s.store.UpdateOwner(ctx, o)
	if err != nil {
		return core.Owner{}, fmt.Errorf("update owner: %w", err)
	}
	return updated, nil
}

func (s *LedgerService) DeleteOwner(ctx context.Context, id int64) error {
	if err := s.store.DeleteOwner(ctx, id); err != nil {
		return fmt.Errorf("delete owner: %w", err)
	}
	slog.InfoContext(ctx, "Owner deleted", "owner_id", id)
	return nil
}

func (s *LedgerService) ListOwners(ctx context.Context) ([]core.Owner, error) {
	owners, err := s.store.ListOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}
	return owners, nil
}

// CreateTransaction fills defaults, rounds the amount and validates before
// anything reaches storage.
func (s *LedgerService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	created, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create %s: %w", tx.Kind, err)
	}
	slog.InfoContext(ctx, "Transaction created",
		"id", created.ID,
		"owner_id", created.OwnerID,
		"kind", created.Kind,
		"amount", created.Amount.StringFixed(2),
		"category", created.Category)
	return created, nil
}

func (s *LedgerService) GetTransaction(ctx context.Context, kind core.Kind, id int64) (core.Transaction, error) {
	tx, err := s.store.GetTransaction(ctx, kind, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get %s: %w", kind, err)
	}
	return tx, nil
}

func (s *LedgerService) UpdateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx.Normalize()
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	updated, err := s.store.UpdateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update %s: %w", tx.Kind, err)
	}
	return updated, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, kind core.Kind, id int64) error {
	if err := s.store.DeleteTransaction(ctx, kind, id); err != nil {
		return fmt.Errorf("delete %s: %w", kind, err)
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id, "kind", kind)
	return nil
}

// List returns the owner's transactions matching q, newest first, with the
// category breakdown of exactly that set.
func (s *LedgerService) List(ctx context.Context, ownerID int64, q ListQuery) (TransactionList, error) {
	if err := q.Kind.Validate(); err != nil {
		return TransactionList{}, err
	}
	if q.Month < 0 || q.Month > 12 {
		return TransactionList{}, fmt.Errorf("%w: %d", core.ErrInvalidMonth, q.Month)
	}
	if q.Category != "" && !q.Kind.ValidCategory(q.Category) {
		return TransactionList{}, fmt.Errorf("%w: %q for %s", core.ErrInvalidCategory, q.Category, q.Kind)
	}
	if _, err := s.store.GetOwner(ctx, ownerID); err != nil {
		return TransactionList{}, fmt.Errorf("get owner: %w", err)
	}

	f := ledger.Filter{Kind: q.Kind, Category: q.Category}
	if q.Year != 0 {
		f.From, f.To = ledger.MonthRange(q.Year, q.Month)
	}
	items, err := s.store.List(ctx, ownerID, f)
	if err != nil {
		return TransactionList{}, fmt.Errorf("list %s: %w", q.Kind, err)
	}
	if q.Year == 0 && q.Month != 0 {
		// A month without a year matches that month in any year.
		kept := items[:0]
		for _, tx := range items {
			if tx.Date.Month() == q.Month {
				kept = append(kept, tx)
			}
		}
		items = kept
	}
	if items == nil {
		items = []core.Transaction{}
	}
	return TransactionList{Items: items, Stat: CategoryBreakdown(q.Kind, items)}, nil
}

// Close closes the underlying store.
func (s *LedgerService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close ledger store: %w", err)
	}
	return nil
}
