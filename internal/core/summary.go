package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// Summary is derived from a snapshot of the collection and is never persisted.
type Summary struct {
	TotalExpenses     int              `json:"total_expenses"`
	TotalAmount       Money            `json:"total_amount"`
	AverageAmount     Money            `json:"average_amount"`
	CategoryBreakdown map[string]Money `json:"category_breakdown"`
}

// Summarize computes count, exact total, average and per-category totals.
// The input slice is only read. Category grouping is case-sensitive.
func Summarize(expenses []Expense) Summary {
	s := Summary{CategoryBreakdown: make(map[string]Money)}
	if len(expenses) == 0 {
		return s
	}

	var total int64
	for _, e := range expenses {
		total += e.Amount.Cents
		acc := s.CategoryBreakdown[e.Category]
		acc.Cents += e.Amount.Cents
		s.CategoryBreakdown[e.Category] = acc
	}

	s.TotalExpenses = len(expenses)
	s.TotalAmount = Money{Cents: total}
	s.AverageAmount = Money{Cents: divRoundHalfUp(total, int64(len(expenses)))}
	return s
}

// SortedBreakdown returns the category totals ordered by amount (largest first), then name.
func (s Summary) SortedBreakdown() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(s.CategoryBreakdown))
	for name, amount := range s.CategoryBreakdown {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// divRoundHalfUp divides n by d (d > 0) rounding half away from zero.
func divRoundHalfUp(n, d int64) int64 {
	if n >= 0 {
		return (n + d/2) / d
	}
	return -((-n + d/2) / d)
}
