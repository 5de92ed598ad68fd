package receipt

import (
	"slices"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Aggregate computes spending by category over the full receipt set.
//
// Sums are exact decimals; totals and category amounts are rounded half-up
// to cents and percentages to whole numbers. Percentages are not adjusted to
// add up to 100. Categories are ordered by rounded amount, largest first,
// with ties kept in the order the category was first seen.
func Aggregate(receipts []Receipt) Breakdown {
	var (
		order  []string
		totals = make(map[string]decimal.Decimal)
		total  = decimal.Zero
	)

	for _, r := range receipts {
		amount := decimal.NewFromFloat(r.Amount)
		if _, seen := totals[r.Category]; !seen {
			order = append(order, r.Category)
		}
		totals[r.Category] = totals[r.Category].Add(amount)
		total = total.Add(amount)
	}

	type group struct {
		name    string
		rounded decimal.Decimal
		pct     int
	}
	groups := make([]group, 0, len(order))
	for _, name := range order {
		sum := totals[name]
		pct := 0
		if !total.IsZero() {
			pct = int(sum.Div(total).Mul(hundred).Round(0).IntPart())
		}
		groups = append(groups, group{name: name, rounded: sum.Round(2), pct: pct})
	}

	slices.SortStableFunc(groups, func(a, b group) int {
		return b.rounded.Cmp(a.rounded)
	})

	categories := make([]SpendingCategory, 0, len(groups))
	for _, g := range groups {
		categories = append(categories, SpendingCategory{
			Name:       g.name,
			Amount:     g.rounded.InexactFloat64(),
			Percentage: g.pct,
		})
	}

	return Breakdown{
		Categories:    categories,
		TotalSpending: total.Round(2).InexactFloat64(),
		TotalReceipts: len(receipts),
	}
}
