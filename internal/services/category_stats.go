package services

import (
	"fintrack/internal/core"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CategoryBreakdown returns, for every category of kind in declaration
// order, its share of the total of txs as round(partial/total, 3) * 100.
// Ties round half to even.
// Transactions of other kinds are ignored. A zero total yields all zeros.
func CategoryBreakdown(kind core.Kind, txs []core.Transaction) core.Breakdown {
	partial := make(map[core.Category]decimal.Decimal)
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Kind != kind {
			continue
		}
		partial[tx.Category] = partial[tx.Category].Add(tx.Amount)
		total = total.Add(tx.Amount)
	}

	categories := kind.Categories()
	out := make(core.Breakdown, len(categories))
	for i, c := range categories {
		pct := decimal.Zero
		if !total.IsZero() {
			pct = partial[c].Div(total).RoundBank(3).Mul(hundred)
		}
		out[i] = core.CategoryShare{Category: c, Percent: pct}
	}
	return out
}
