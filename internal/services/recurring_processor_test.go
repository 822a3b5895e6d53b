package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/ledger/memory"

	"github.com/shopspring/decimal"
)

func seedRecurring(t *testing.T, store *memory.Store, ownerID int64, date core.Date, interval string) core.Transaction {
	t.Helper()
	iv, err := core.ParseInterval(interval)
	if err != nil {
		t.Fatalf("ParseInterval() error = %v", err)
	}
	tx, err := store.CreateTransaction(context.Background(), core.Transaction{
		OwnerID:     ownerID,
		Kind:        core.Expense,
		Amount:      decimal.NewFromInt(9),
		Category:    "SUBSCRIPTION",
		IsRecurring: true,
		Interval:    &iv,
		Date:        date,
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	return tx
}

func TestAdvance(t *testing.T) {
	today := core.NewDate(2023, 4, 15)
	tests := []struct {
		name     string
		date     core.Date
		interval core.Interval
		want     core.Date
	}{
		{"monthly catches up past today", core.NewDate(2023, 1, 1), core.Interval{Months: 1}, core.NewDate(2023, 5, 1)},
		{"already in future", core.NewDate(2023, 6, 1), core.Interval{Months: 1}, core.NewDate(2023, 6, 1)},
		{"due today stays", today, core.Interval{Days: 7}, today},
		{"weekly", core.NewDate(2023, 4, 1), core.Interval{Days: 7}, core.NewDate(2023, 4, 15)},
		{"yearly", core.NewDate(2020, 2, 29), core.Interval{Years: 1}, core.NewDate(2024, 2, 28)},
		{"month end drifts after clamping", core.NewDate(2023, 1, 31), core.Interval{Months: 1}, core.NewDate(2023, 4, 28)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := advance(tt.date, tt.interval, today); !got.Equal(tt.want) {
				t.Errorf("advance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRollforward(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := seedOwner(t, store)
	today := core.NewDate(2023, 4, 15)

	monthly := seedRecurring(t, store, o.ID, core.NewDate(2023, 1, 1), "0-1-0")
	weekly := seedRecurring(t, store, o.ID, core.NewDate(2023, 4, 10), "0-0-7")
	yearly := seedRecurring(t, store, o.ID, core.NewDate(2022, 1, 1), "1-0-0")
	seedTx(t, store, o.ID, core.Expense, "3", core.NewDate(2023, 4, 20)) // not recurring

	p := NewRecurringProcessor(store, nil, nil, 0)
	got, err := p.Rollforward(ctx, o.ID, today)
	if err != nil {
		t.Fatalf("Rollforward() error = %v", err)
	}

	wantIDs := []int64{weekly.ID, monthly.ID}
	if len(got) != len(wantIDs) {
		t.Fatalf("Rollforward() returned %d expenses, want %d: %+v", len(got), len(wantIDs), got)
	}
	for i, id := range wantIDs {
		if got[i].ID != id {
			t.Errorf("Rollforward()[%d].ID = %d, want %d", i, got[i].ID, id)
		}
	}
	if !got[0].Date.Equal(core.NewDate(2023, 4, 17)) {
		t.Errorf("weekly date = %v, want 2023-04-17", got[0].Date)
	}
	if !got[1].Date.Equal(core.NewDate(2023, 5, 1)) {
		t.Errorf("monthly date = %v, want 2023-05-01", got[1].Date)
	}

	stored, _ := store.GetTransaction(ctx, core.Expense, yearly.ID)
	if !stored.Date.Equal(core.NewDate(2024, 1, 1)) {
		t.Errorf("yearly stored date = %v, want 2024-01-01", stored.Date)
	}
	for _, tx := range got {
		if tx.Date.Before(today) {
			t.Errorf("expense %d still before today: %v", tx.ID, tx.Date)
		}
	}
}

func TestRollforwardIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := seedOwner(t, store)
	today := core.NewDate(2023, 4, 15)
	seedRecurring(t, store, o.ID, core.NewDate(2023, 1, 1), "0-1-0")
	seedRecurring(t, store, o.ID, core.NewDate(2022, 12, 31), "0-0-10")

	p := NewRecurringProcessor(store, nil, nil, 0)
	first, err := p.Rollforward(ctx, o.ID, today)
	if err != nil {
		t.Fatalf("Rollforward() error = %v", err)
	}
	before, _ := store.List(ctx, o.ID, ledger.Filter{})

	second, err := p.Rollforward(ctx, o.ID, today)
	if err != nil {
		t.Fatalf("second Rollforward() error = %v", err)
	}
	after, _ := store.List(ctx, o.ID, ledger.Filter{})

	if len(first) != len(second) {
		t.Fatalf("results differ: %d vs %d", len(first), len(second))
	}
	for i := range before {
		if !before[i].Date.Equal(after[i].Date) {
			t.Errorf("expense %d moved on second call: %v -> %v", before[i].ID, before[i].Date, after[i].Date)
		}
	}
}

func TestRollforwardEmpty(t *testing.T) {
	store := memory.New()
	o := seedOwner(t, store)
	got, err := NewRecurringProcessor(store, nil, nil, 0).Rollforward(context.Background(), o.ID, core.NewDate(2023, 4, 15))
	if err != nil {
		t.Fatalf("Rollforward() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Rollforward() = %v, want empty", got)
	}
}

func TestRollforwardUnknownOwner(t *testing.T) {
	_, err := NewRecurringProcessor(memory.New(), nil, nil, 0).Rollforward(context.Background(), 99, core.NewDate(2023, 4, 15))
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Rollforward() error = %v, want ErrNotFound", err)
	}
}

// stubRecurringStore serves fixed rows and records date writes.
type stubRecurringStore struct {
	rows       []core.Transaction
	persistErr error
	persisted  [][]core.Transaction
}

func (s *stubRecurringStore) List(context.Context, int64, ledger.Filter) ([]core.Transaction, error) {
	return append([]core.Transaction(nil), s.rows...), nil
}

func (s *stubRecurringStore) BulkUpdateDates(_ context.Context, _ int64, txs []core.Transaction) error {
	if s.persistErr != nil {
		return s.persistErr
	}
	s.persisted = append(s.persisted, txs)
	return nil
}

func (s *stubRecurringStore) GetOwner(_ context.Context, id int64) (core.Owner, error) {
	return core.Owner{ID: id, Username: "stub"}, nil
}

func TestRollforwardZeroIntervalFailsWithoutPersisting(t *testing.T) {
	store := &stubRecurringStore{rows: []core.Transaction{
		{ID: 1, Kind: core.Expense, IsRecurring: true, Interval: &core.Interval{Months: 1}, Date: core.NewDate(2023, 1, 1)},
		{ID: 2, Kind: core.Expense, IsRecurring: true, Interval: &core.Interval{}, Date: core.NewDate(2023, 1, 1)},
	}}
	_, err := NewRecurringProcessor(store, nil, nil, 0).Rollforward(context.Background(), 1, core.NewDate(2023, 4, 15))
	if !errors.Is(err, core.ErrZeroInterval) {
		t.Fatalf("Rollforward() error = %v, want ErrZeroInterval", err)
	}
	if len(store.persisted) != 0 {
		t.Errorf("persisted %d batches, want 0", len(store.persisted))
	}
}

func TestRollforwardPersistFailure(t *testing.T) {
	boom := errors.New("disk full")
	store := &stubRecurringStore{
		rows: []core.Transaction{
			{ID: 1, Kind: core.Expense, IsRecurring: true, Interval: &core.Interval{Months: 1}, Date: core.NewDate(2023, 1, 1)},
		},
		persistErr: boom,
	}
	_, err := NewRecurringProcessor(store, nil, nil, 0).Rollforward(context.Background(), 1, core.NewDate(2023, 4, 15))
	if !errors.Is(err, boom) {
		t.Errorf("Rollforward() error = %v, want %v", err, boom)
	}
}

func TestRollforwardPersistsOneBatch(t *testing.T) {
	store := &stubRecurringStore{rows: []core.Transaction{
		{ID: 1, Kind: core.Expense, IsRecurring: true, Interval: &core.Interval{Months: 1}, Date: core.NewDate(2023, 1, 1)},
		{ID: 2, Kind: core.Expense, IsRecurring: true, Interval: &core.Interval{Days: 3}, Date: core.NewDate(2023, 4, 1)},
		{ID: 3, Kind: core.Expense, IsRecurring: true, Interval: &core.Interval{Days: 3}, Date: core.NewDate(2023, 9, 1)},
	}}
	if _, err := NewRecurringProcessor(store, nil, nil, 0).Rollforward(context.Background(), 1, core.NewDate(2023, 4, 15)); err != nil {
		t.Fatalf("Rollforward() error = %v", err)
	}
	if len(store.persisted) != 1 {
		t.Fatalf("persisted %d batches, want 1", len(store.persisted))
	}
	if n := len(store.persisted[0]); n != 2 {
		t.Errorf("batch size = %d, want 2 (unchanged rows are skipped)", n)
	}
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
	last  []core.Transaction
	err   error
}

func (n *recordingNotifier) PublishUpcoming(_ context.Context, _ int64, _ core.Date, upcoming []core.Transaction) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	n.last = upcoming
	return n.err
}

func TestRollforwardNotifies(t *testing.T) {
	store := memory.New()
	o := seedOwner(t, store)
	seedRecurring(t, store, o.ID, core.NewDate(2023, 1, 1), "0-1-0")

	notifier := &recordingNotifier{err: errors.New("broker down")}
	got, err := NewRecurringProcessor(store, notifier, nil, 0).Rollforward(context.Background(), o.ID, core.NewDate(2023, 4, 15))
	if err != nil {
		t.Fatalf("Rollforward() error = %v, publish failures must not fail the call", err)
	}
	if notifier.calls != 1 || len(notifier.last) != len(got) {
		t.Errorf("notifier calls = %d with %d expenses, want 1 with %d", notifier.calls, len(notifier.last), len(got))
	}
}

func TestRollforwardConcurrentCallsAgree(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := seedOwner(t, store)
	for i := 0; i < 20; i++ {
		seedRecurring(t, store, o.ID, core.NewDate(2022, 1, 1+i), "0-0-7")
	}
	p := NewRecurringProcessor(store, nil, nil, 0)
	today := core.NewDate(2023, 4, 15)

	var wg sync.WaitGroup
	results := make([][]core.Transaction, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = p.Rollforward(ctx, o.ID, today)
		}()
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("call %d error = %v", i, errs[i])
		}
		if len(results[i]) != len(results[0]) {
			t.Fatalf("call %d returned %d expenses, call 0 returned %d", i, len(results[i]), len(results[0]))
		}
		for j := range results[i] {
			if !results[i][j].Date.Equal(results[0][j].Date) {
				t.Errorf("call %d expense %d date %v differs from %v", i, j, results[i][j].Date, results[0][j].Date)
			}
		}
	}
}

// gatedStore holds List until release is closed.
type gatedStore struct {
	*memory.Store
	entered chan struct{}
	once    sync.Once
	release chan struct{}
}

func (s *gatedStore) List(ctx context.Context, ownerID int64, f ledger.Filter) ([]core.Transaction, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.Store.List(ctx, ownerID, f)
}

func TestRollforwardCancelledCallerDoesNotFailOthers(t *testing.T) {
	mem := memory.New()
	o := seedOwner(t, mem)
	seedRecurring(t, mem, o.ID, core.NewDate(2023, 1, 1), "0-1-0")
	store := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	p := NewRecurringProcessor(store, nil, nil, 0)
	today := core.NewDate(2023, 4, 15)

	type result struct {
		upcoming []core.Transaction
		err      error
	}
	first, second := make(chan result, 1), make(chan result, 1)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	go func() {
		up, err := p.Rollforward(ctxA, o.ID, today)
		first <- result{up, err}
	}()
	<-store.entered

	go func() {
		up, err := p.Rollforward(context.Background(), o.ID, today)
		second <- result{up, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	select {
	case r := <-first:
		if !errors.Is(r.err, context.Canceled) {
			t.Errorf("cancelled caller error = %v, want context.Canceled", r.err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(store.release)
	r := <-second
	if r.err != nil {
		t.Fatalf("live caller error = %v", r.err)
	}
	if len(r.upcoming) != 1 || !r.upcoming[0].Date.Equal(core.NewDate(2023, 5, 1)) {
		t.Errorf("live caller upcoming = %v, want one expense on 2023-05-01", r.upcoming)
	}

	stored, err := mem.List(context.Background(), o.ID, ledger.Filter{Kind: core.Expense, RecurringOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if !stored[0].Date.Equal(core.NewDate(2023, 5, 1)) {
		t.Errorf("persisted date = %v, want 2023-05-01", stored[0].Date)
	}
}
