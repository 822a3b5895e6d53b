package services

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/ledger/memory"

	"github.com/shopspring/decimal"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestBudgetSetAndGet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ann := seedOwner(t, store)
	bob, _ := store.CreateOwner(ctx, core.Owner{Username: "bob"})
	today := core.NewDate(2023, 6, 15)

	seedTx(t, store, ann.ID, core.Income, "1000", core.NewDate(2023, 6, 1))
	seedTx(t, store, ann.ID, core.Income, "50", core.NewDate(2023, 5, 31))  // previous month
	seedTx(t, store, ann.ID, core.Expense, "120", core.NewDate(2023, 6, 15))
	seedTx(t, store, ann.ID, core.Expense, "80", core.NewDate(2023, 6, 16)) // after today
	seedTx(t, store, bob.ID, core.Expense, "5000", core.NewDate(2023, 6, 2)) // other owner

	svc := NewBudgetService(store)
	r, err := svc.Set(ctx, ann.ID, today, decPtr("1500"), decPtr("600"))
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	checks := []struct {
		name string
		got  *decimal.Decimal
		want string
	}{
		{"IncomeGoal", r.IncomeGoal, "1500"},
		{"MonthlyTotalIncome", r.MonthlyTotalIncome, "1000"},
		{"ExpenseBudget", r.ExpenseBudget, "600"},
		{"MonthlyTotalExpense", r.MonthlyTotalExpense, "120"},
	}
	for _, c := range checks {
		if c.got == nil || !c.got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("%s = %v, want %s", c.name, c.got, c.want)
		}
	}

	got, err := svc.Get(ctx, ann.ID, today, false, true)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.IncomeGoal != nil || got.MonthlyTotalIncome != nil {
		t.Errorf("income half present without being requested: %+v", got)
	}
	if got.ExpenseBudget == nil || !got.ExpenseBudget.Equal(decimal.NewFromInt(600)) {
		t.Errorf("ExpenseBudget = %v, want 600", got.ExpenseBudget)
	}
}

func TestBudgetSetPartialKeepsOtherValue(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := seedOwner(t, store)
	svc := NewBudgetService(store)
	today := core.NewDate(2023, 6, 15)

	if _, err := svc.Set(ctx, o.ID, today, decPtr("100"), decPtr("50")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	r, err := svc.Set(ctx, o.ID, today, nil, decPtr("75"))
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if r.IncomeGoal != nil {
		t.Errorf("IncomeGoal reported though not set: %v", r.IncomeGoal)
	}
	stored, _ := store.GetOwner(ctx, o.ID)
	if !stored.Budget.IncomeGoal.Equal(decimal.NewFromInt(100)) || !stored.Budget.ExpenseBudget.Equal(decimal.NewFromInt(75)) {
		t.Errorf("stored budget = %+v, want goal 100 budget 75", stored.Budget)
	}
}

func TestBudgetGetNothingRequested(t *testing.T) {
	store := memory.New()
	o := seedOwner(t, store)
	r, err := NewBudgetService(store).Get(context.Background(), o.ID, core.NewDate(2023, 6, 15), false, false)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if r != (BudgetReport{}) {
		t.Errorf("Get() = %+v, want empty report", r)
	}
}

func TestBudgetErrors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	o := seedOwner(t, store)
	svc := NewBudgetService(store)
	today := core.NewDate(2023, 6, 15)

	tests := []struct {
		name          string
		incomeGoal    *decimal.Decimal
		expenseBudget *decimal.Decimal
	}{
		{"negative goal", decPtr("-1"), nil},
		{"goal above max amount", decPtr("184467440737095516.17"), nil},
		{"budget above max amount", nil, decPtr("1e17")},
		{"budget one cent over", nil, decPtr("100000000.00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Set(ctx, o.ID, today, tt.incomeGoal, tt.expenseBudget); !errors.Is(err, core.ErrInvalidAmount) {
				t.Errorf("Set() error = %v, want ErrInvalidAmount", err)
			}
		})
	}
	stored, err := store.GetOwner(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Budget.IncomeGoal.IsZero() || !stored.Budget.ExpenseBudget.IsZero() {
		t.Errorf("stored budget = %+v, want untouched zeros", stored.Budget)
	}
	if _, err := svc.Set(ctx, o.ID, today, decPtr("99999999.99"), nil); err != nil {
		t.Errorf("Set(max amount) error = %v", err)
	}
	if _, err := svc.Get(ctx, 404, today, true, true); !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}
