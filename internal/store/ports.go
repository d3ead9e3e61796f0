package store

import (
	"context"

	"expenses/internal/core"
)

// Ports for expense persistence. Every backend implements Store.
type (
	ExpenseReader interface {
		// List returns all records in insertion order.
		List(ctx context.Context) ([]core.Expense, error)
		// Get returns core.ErrNotFound when no record has the id.
		Get(ctx context.Context, id int64) (core.Expense, error)
		ListByCategory(ctx context.Context, category string) ([]core.Expense, error)
		// ListByDateRange is inclusive on both bounds.
		ListByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error)
	}

	ExpenseWriter interface {
		// Create validates the input, assigns id and created_at, and persists.
		Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
		// Update returns core.ErrNotFound when no record has the id.
		Update(ctx context.Context, id int64, upd core.ExpenseUpdate) (core.Expense, error)
		// Delete reports whether a record was removed.
		Delete(ctx context.Context, id int64) (bool, error)
	}

	Store interface {
		ExpenseReader
		ExpenseWriter
		Close() error
	}
)
