package http

import (
	"fintrack/internal/core"
	"fintrack/internal/services"

	"github.com/shopspring/decimal"
)

// Amounts are encoded as fixed two-decimal strings.

type incomeResponse struct {
	ID          int64   `json:"id"`
	User        int64   `json:"user"`
	Amount      string  `json:"amount"`
	Source      string  `json:"source"`
	Description string  `json:"description"`
	Type        bool    `json:"type"`
	Interval    *string `json:"interval"`
	Date        string  `json:"date"`
}

type expenseResponse struct {
	ID          int64   `json:"id"`
	User        int64   `json:"user"`
	Amount      string  `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Type        bool    `json:"type"`
	Interval    *string `json:"interval"`
	Date        string  `json:"date"`
}

type ownerResponse struct {
	ID            int64  `json:"id"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	IncomeGoal    string `json:"income_goal"`
	ExpenseBudget string `json:"expense_budget"`
}

// ownerDetailResponse is the single-owner view, which embeds the owner's
// incomes and expenses.
type ownerDetailResponse struct {
	ownerResponse
	Incomes  []any `json:"incomes"`
	Expenses []any `json:"expenses"`
}

type listResponse struct {
	List []any          `json:"list"`
	Stat core.Breakdown `json:"stat"`
}

type netIncomeResponse struct {
	NetIncome string `json:"net_income"`
}

type graphResponse struct {
	Scale         string      `json:"scale"`
	NetIncomeFlow core.Series `json:"net_income_flow"`
	NetIncomeList core.Series `json:"net_income_list"`
}

type upcomingResponse struct {
	Today    string `json:"today"`
	Expenses []any  `json:"expenses"`
}

// budgetResponse omits the halves that were not requested.
type budgetResponse struct {
	IncomeGoal          *string `json:"income_goal,omitempty"`
	MonthlyTotalIncome  *string `json:"monthly_total_income,omitempty"`
	ExpenseBudget       *string `json:"expense_budget,omitempty"`
	MonthlyTotalExpense *string `json:"monthly_total_expense,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optionalMoney(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func newTransactionResponse(tx core.Transaction) any {
	var interval *string
	if tx.Interval != nil {
		s := tx.Interval.String()
		interval = &s
	}
	if tx.Kind == core.Income {
		return incomeResponse{
			ID:          tx.ID,
			User:        tx.OwnerID,
			Amount:      money(tx.Amount),
			Source:      string(tx.Category),
			Description: tx.Description,
			Type:        tx.IsFixed,
			Interval:    interval,
			Date:        tx.Date.String(),
		}
	}
	return expenseResponse{
		ID:          tx.ID,
		User:        tx.OwnerID,
		Amount:      money(tx.Amount),
		Category:    string(tx.Category),
		Description: tx.Description,
		Type:        tx.IsRecurring,
		Interval:    interval,
		Date:        tx.Date.String(),
	}
}

func newTransactionResponses(txs []core.Transaction) []any {
	out := make([]any, len(txs))
	for i, tx := range txs {
		out[i] = newTransactionResponse(tx)
	}
	return out
}

func newOwnerResponse(o core.Owner) ownerResponse {
	return ownerResponse{
		ID:            o.ID,
		FirstName:     o.FirstName,
		LastName:      o.LastName,
		Username:      o.Username,
		Email:         o.Email,
		IncomeGoal:    money(o.Budget.IncomeGoal),
		ExpenseBudget: money(o.Budget.ExpenseBudget),
	}
}

func newListResponse(l services.TransactionList) listResponse {
	return listResponse{List: newTransactionResponses(l.Items), Stat: l.Stat}
}

func newGraphResponse(g services.GraphData) graphResponse {
	return graphResponse{
		Scale:         string(g.Scale),
		NetIncomeFlow: g.Running,
		NetIncomeList: g.Flow,
	}
}

func newBudgetResponse(b services.BudgetReport) budgetResponse {
	return budgetResponse{
		IncomeGoal:          optionalMoney(b.IncomeGoal),
		MonthlyTotalIncome:  optionalMoney(b.MonthlyTotalIncome),
		ExpenseBudget:       optionalMoney(b.ExpenseBudget),
		MonthlyTotalExpense: optionalMoney(b.MonthlyTotalExpense),
	}
}
