package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/ledger"

	"github.com/shopspring/decimal"
)

// Store is an in-process ledger.Store guarded by a single mutex.
type Store struct {
	mu     sync.Mutex
	nextID int64
	owners map[int64]core.Owner
	items  map[int64]core.Transaction
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		owners: make(map[int64]core.Owner),
		items:  make(map[int64]core.Transaction),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) CreateOwner(_ context.Context, o core.Owner) (core.Owner, error) {
	if err := o.Validate(); err != nil {
		return core.Owner{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(o); err != nil {
		return core.Owner{}, err
	}
	o.ID = s.id()
	s.owners[o.ID] = o
	return o, nil
}

func (s *Store) GetOwner(_ context.Context, id int64) (core.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[id]
	if !ok {
		return core.Owner{}, fmt.Errorf("owner %d: %w", id, ledger.ErrNotFound)
	}
	return o, nil
}

func (s *Store) UpdateOwner(_ context.Context, o core.Owner) (core.Owner, error) {
	if err := o.Validate(); err != nil {
		return core.Owner{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[o.ID]; !ok {
		return core.Owner{}, fmt.Errorf("owner %d: %w", o.ID, ledger.ErrNotFound)
	}
	if err := s.checkUnique(o); err != nil {
		return core.Owner{}, err
	}
	s.owners[o.ID] = o
	return o, nil
}

// checkUnique mirrors the SQL schema: usernames are unique and so are
// non-empty emails.
func (s *Store) checkUnique(o core.Owner) error {
	for id, other := range s.owners {
		if id == o.ID {
			continue
		}
		if other.Username == o.Username {
			return fmt.Errorf("username %q: %w", o.Username, ledger.ErrConflict)
		}
		if o.Email != "" && other.Email == o.Email {
			return fmt.Errorf("email %q: %w", o.Email, ledger.ErrConflict)
		}
	}
	return nil
}

func (s *Store) DeleteOwner(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[id]; !ok {
		return fmt.Errorf("owner %d: %w", id, ledger.ErrNotFound)
	}
	delete(s.owners, id)
	for txID, tx := range s.items {
		if tx.OwnerID == id {
			delete(s.items, txID)
		}
	}
	return nil
}

func (s *Store) ListOwners(_ context.Context) ([]core.Owner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Owner, 0, len(s.owners))
	for _, o := range s.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) SetBudget(_ context.Context, ownerID int64, b core.BudgetSetting) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[ownerID]
	if !ok {
		return fmt.Errorf("owner %d: %w", ownerID, ledger.ErrNotFound)
	}
	o.Budget = b
	s.owners[ownerID] = o
	return nil
}

// CreateTransaction stores tx under a new ID.
func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.owners[tx.OwnerID]; !ok {
		return core.Transaction{}, fmt.Errorf("owner %d: %w", tx.OwnerID, ledger.ErrNotFound)
	}
	tx.ID = s.id()
	s.items[tx.ID] = copyTx(tx)
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, kind core.Kind, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.items[id]
	if !ok || tx.Kind != kind {
		return core.Transaction{}, fmt.Errorf("%s %d: %w", kind, id, ledger.ErrNotFound)
	}
	return copyTx(tx), nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[tx.ID]
	if !ok || cur.Kind != tx.Kind {
		return core.Transaction{}, fmt.Errorf("%s %d: %w", tx.Kind, tx.ID, ledger.ErrNotFound)
	}
	if _, ok := s.owners[tx.OwnerID]; !ok {
		return core.Transaction{}, fmt.Errorf("owner %d: %w", tx.OwnerID, ledger.ErrNotFound)
	}
	s.items[tx.ID] = copyTx(tx)
	return tx, nil
}

func (s *Store) DeleteTransaction(_ context.Context, kind core.Kind, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.items[id]
	if !ok || tx.Kind != kind {
		return fmt.Errorf("%s %d: %w", kind, id, ledger.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

func (s *Store) SumAmount(_ context.Context, ownerID int64, f ledger.Filter) (decimal.NullDecimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum decimal.NullDecimal
	for _, tx := range s.items {
		if tx.OwnerID != ownerID || !f.Matches(tx) {
			continue
		}
		sum.Decimal = sum.Decimal.Add(tx.Amount)
		sum.Valid = true
	}
	return sum, nil
}

// List returns matching transactions ordered by date then ID, newest first.
func (s *Store) List(_ context.Context, ownerID int64, f ledger.Filter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.items {
		if tx.OwnerID == ownerID && f.Matches(tx) {
			out = append(out, copyTx(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// BulkUpdateDates checks every row before writing any of them.
func (s *Store) BulkUpdateDates(_ context.Context, ownerID int64, txs []core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		cur, ok := s.items[tx.ID]
		if !ok || cur.OwnerID != ownerID {
			return fmt.Errorf("transaction %d: %w", tx.ID, ledger.ErrNotFound)
		}
	}
	for _, tx := range txs {
		cur := s.items[tx.ID]
		cur.Date = tx.Date
		s.items[tx.ID] = cur
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func copyTx(tx core.Transaction) core.Transaction {
	if tx.Interval != nil {
		iv := *tx.Interval
		tx.Interval = &iv
	}
	return tx
}
