package store

import (
	"encoding/json"
	"fmt"

	"expenses/internal/core"
)

// NextID returns the id for a new record: one past the larger of the
// high-water mark and the largest id currently present.
func NextID(highWater int64, items []core.Expense) int64 {
	return max(highWater, MaxID(items)) + 1
}

// MaxID returns the largest id in items, or 0.
func MaxID(items []core.Expense) int64 {
	var m int64
	for _, e := range items {
		m = max(m, e.ID)
	}
	return m
}

// IndexOf returns the position of the record with id, or -1.
func IndexOf(items []core.Expense, id int64) int {
	for i, e := range items {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// FilterByCategory returns records whose category matches exactly.
func FilterByCategory(items []core.Expense, category string) []core.Expense {
	out := make([]core.Expense, 0)
	for _, e := range items {
		if e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// FilterByDateRange returns records with start <= date <= end.
// Dates compare as YYYY-MM-DD text.
func FilterByDateRange(items []core.Expense, start, end core.Date) []core.Expense {
	lo, hi := start.String(), end.String()
	out := make([]core.Expense, 0)
	for _, e := range items {
		d := e.Date.String()
		if d >= lo && d <= hi {
			out = append(out, e)
		}
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func Categories(items []core.Expense) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	for _, e := range items {
		if _, ok := seen[e.Category]; ok {
			continue
		}
		seen[e.Category] = struct{}{}
		out = append(out, e.Category)
	}
	return out
}

// Decode parses a persisted collection. Every record must validate and ids must be unique.
func Decode(data []byte) ([]core.Expense, error) {
	var items []core.Expense
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	seen := make(map[int64]struct{}, len(items))
	for i, e := range items {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("record %d: duplicate id %d", i, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	if items == nil {
		items = []core.Expense{}
	}
	return items, nil
}

// Encode renders the collection as an indented JSON array.
func Encode(items []core.Expense) ([]byte, error) {
	if items == nil {
		items = []core.Expense{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode expenses: %w", err)
	}
	return append(data, '\n'), nil
}
