package services

import (
	"context"
	"fmt"
	"log/slog"

	"fintrack/internal/core"
	"fintrack/internal/ledger"

	"github.com/shopspring/decimal"
)

// BudgetStore is the subset of the ledger the budget tracker needs.
type BudgetStore interface {
	ledger.Summer
	GetOwner(ctx context.Context, id int64) (core.Owner, error)
	SetBudget(ctx context.Context, ownerID int64, b core.BudgetSetting) error
}

// BudgetReport pairs stored targets with month-to-date totals. Nil fields
// were not requested.
type BudgetReport struct {
	IncomeGoal          *decimal.Decimal
	MonthlyTotalIncome  *decimal.Decimal
	ExpenseBudget       *decimal.Decimal
	MonthlyTotalExpense *decimal.Decimal
}

// BudgetService reads and updates an owner's income goal and expense budget.
type BudgetService struct {
	store BudgetStore
}

func NewBudgetService(store BudgetStore) *BudgetService {
	return &BudgetService{store: store}
}

// Get reports the requested halves of the owner's budget for today's month.
func (s *BudgetService) Get(ctx context.Context, ownerID int64, today core.Date, wantIncome, wantExpense bool) (BudgetReport, error) {
	owner, err := s.store.GetOwner(ctx, ownerID)
	if err != nil {
		return BudgetReport{}, fmt.Errorf("get owner: %w", err)
	}
	return s.report(ctx, owner, today, wantIncome, wantExpense)
}

// Set stores whichever values are non-nil (last write wins) and reports the
// halves that were set.
func (s *BudgetService) Set(ctx context.Context, ownerID int64, today core.Date, incomeGoal, expenseBudget *decimal.Decimal) (BudgetReport, error) {
	owner, err := s.store.GetOwner(ctx, ownerID)
	if err != nil {
		return BudgetReport{}, fmt.Errorf("get owner: %w", err)
	}

	budget := owner.Budget
	if incomeGoal != nil {
		budget.IncomeGoal = core.RoundAmount(*incomeGoal)
	}
	if expenseBudget != nil {
		budget.ExpenseBudget = core.RoundAmount(*expenseBudget)
	}
	if err := budget.Validate(); err != nil {
		return BudgetReport{}, err
	}
	if incomeGoal != nil || expenseBudget != nil {
		if err := s.store.SetBudget(ctx, ownerID, budget); err != nil {
			return BudgetReport{}, fmt.Errorf("set budget: %w", err)
		}
		slog.InfoContext(ctx, "Budget updated",
			"owner_id", ownerID,
			"income_goal", budget.IncomeGoal.String(),
			"expense_budget", budget.ExpenseBudget.String())
	}
	owner.Budget = budget
	return s.report(ctx, owner, today, incomeGoal != nil, expenseBudget != nil)
}

func (s *BudgetService) report(ctx context.Context, owner core.Owner, today core.Date, wantIncome, wantExpense bool) (BudgetReport, error) {
	var r BudgetReport
	if wantIncome {
		total, err := s.monthToDate(ctx, owner.ID, core.Income, today)
		if err != nil {
			return BudgetReport{}, err
		}
		goal := owner.Budget.IncomeGoal
		r.IncomeGoal, r.MonthlyTotalIncome = &goal, &total
	}
	if wantExpense {
		total, err := s.monthToDate(ctx, owner.ID, core.Expense, today)
		if err != nil {
			return BudgetReport{}, err
		}
		budget := owner.Budget.ExpenseBudget
		r.ExpenseBudget, r.MonthlyTotalExpense = &budget, &total
	}
	return r, nil
}

// monthToDate sums the owner's transactions of kind from the first of
// today's month through today.
func (s *BudgetService) monthToDate(ctx context.Context, ownerID int64, kind core.Kind, today core.Date) (decimal.Decimal, error) {
	sum, err := s.store.SumAmount(ctx, ownerID, ledger.Filter{Kind: kind, From: today.FirstOfMonth(), To: today})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum %s month to date: %w", kind, err)
	}
	return orZero(sum), nil
}
