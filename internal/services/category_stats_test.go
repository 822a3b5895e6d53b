package services

import (
	"testing"

	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

func TestCategoryBreakdown(t *testing.T) {
	txs := []core.Transaction{
		{Kind: core.Expense, Category: "FOOD", Amount: decimal.RequireFromString("58")},
		{Kind: core.Expense, Category: "HOUSING", Amount: decimal.RequireFromString("21")},
		{Kind: core.Expense, Category: "DEBT", Amount: decimal.RequireFromString("21")},
		{Kind: core.Income, Category: "SALARY", Amount: decimal.RequireFromString("1000")}, // other kind
	}
	got := CategoryBreakdown(core.Expense, txs)
	if len(got) != 14 {
		t.Fatalf("CategoryBreakdown() len = %d, want 14", len(got))
	}
	want := map[core.Category]string{"FOOD": "58", "HOUSING": "21", "DEBT": "21"}
	for _, share := range got {
		w, ok := want[share.Category]
		if !ok {
			w = "0"
		}
		if !share.Percent.Equal(decimal.RequireFromString(w)) {
			t.Errorf("%s = %s, want %s", share.Category, share.Percent, w)
		}
	}
	if got[0].Category != "FOOD" || got[len(got)-1].Category != core.CategoryOther {
		t.Errorf("categories not in declaration order: first %s last %s", got[0].Category, got[len(got)-1].Category)
	}
}

func TestCategoryBreakdownRounding(t *testing.T) {
	txs := []core.Transaction{
		{Kind: core.Income, Category: "SALARY", Amount: decimal.NewFromInt(1)},
		{Kind: core.Income, Category: "BUSINESS", Amount: decimal.NewFromInt(1)},
		{Kind: core.Income, Category: "PENSION", Amount: decimal.NewFromInt(1)},
	}
	total := decimal.Zero
	for _, share := range CategoryBreakdown(core.Income, txs) {
		if share.Category == "SALARY" && !share.Percent.Equal(decimal.RequireFromString("33.3")) {
			t.Errorf("SALARY = %s, want 33.3", share.Percent)
		}
		total = total.Add(share.Percent)
	}
	if !total.Equal(decimal.RequireFromString("99.9")) {
		t.Errorf("sum of shares = %s, want 99.9", total)
	}
}

func TestCategoryBreakdownZeroTotal(t *testing.T) {
	tests := []struct {
		name string
		txs  []core.Transaction
	}{
		{"no rows", nil},
		{"zero amounts", []core.Transaction{{Kind: core.Income, Category: "SALARY", Amount: decimal.Zero}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CategoryBreakdown(core.Income, tt.txs)
			if len(got) != 8 {
				t.Fatalf("len = %d, want 8", len(got))
			}
			for _, share := range got {
				if !share.Percent.IsZero() {
					t.Errorf("%s = %s, want 0", share.Category, share.Percent)
				}
			}
		})
	}
}

func TestCategoryBreakdownTiesRoundHalfEven(t *testing.T) {
	tests := []struct {
		name     string
		salary   int64
		business int64
		want     map[core.Category]string
	}{
		{"half rounds down to even", 1, 1999, map[core.Category]string{"SALARY": "0", "BUSINESS": "100"}},
		{"half rounds up to even", 3, 1997, map[core.Category]string{"SALARY": "0.2", "BUSINESS": "99.8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txs := []core.Transaction{
				{Kind: core.Income, Category: "SALARY", Amount: decimal.NewFromInt(tt.salary)},
				{Kind: core.Income, Category: "BUSINESS", Amount: decimal.NewFromInt(tt.business)},
			}
			for _, share := range CategoryBreakdown(core.Income, txs) {
				w, ok := tt.want[share.Category]
				if !ok {
					continue
				}
				if !share.Percent.Equal(decimal.RequireFromString(w)) {
					t.Errorf("%s = %s, want %s", share.Category, share.Percent, w)
				}
			}
		})
	}
}
