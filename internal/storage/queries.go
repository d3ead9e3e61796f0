package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Expense is a row of the expenses table.
type Expense struct {
	ID          int64
	Description string
	AmountCents int64
	Category    string
	Date        string
	CreatedAt   string
}

const expenseColumns = `id, description, amount_cents, category, date, created_at`

const createExpense = `INSERT INTO expenses (description, amount_cents, category, date, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + expenseColumns

type CreateExpenseParams struct {
	Description string
	AmountCents int64
	Category    string
	Date        string
	CreatedAt   string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, createExpense,
		arg.Description,
		arg.AmountCents,
		arg.Category,
		arg.Date,
		arg.CreatedAt,
	)
	return scanExpense(row)
}

const getExpense = `SELECT ` + expenseColumns + ` FROM expenses WHERE id = ?`

func (q *Queries) GetExpense(ctx context.Context, id int64) (Expense, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, id))
}

const listExpenses = `SELECT ` + expenseColumns + ` FROM expenses ORDER BY id`

func (q *Queries) ListExpenses(ctx context.Context) ([]Expense, error) {
	return q.queryExpenses(ctx, listExpenses)
}

const listExpensesByCategory = `SELECT ` + expenseColumns + ` FROM expenses WHERE category = ? ORDER BY id`

func (q *Queries) ListExpensesByCategory(ctx context.Context, category string) ([]Expense, error) {
	return q.queryExpenses(ctx, listExpensesByCategory, category)
}

const listExpensesByDateRange = `SELECT ` + expenseColumns + ` FROM expenses
WHERE date >= ? AND date <= ?
ORDER BY id`

func (q *Queries) ListExpensesByDateRange(ctx context.Context, start, end string) ([]Expense, error) {
	return q.queryExpenses(ctx, listExpensesByDateRange, start, end)
}

const updateExpense = `UPDATE expenses
SET description = ?, amount_cents = ?, category = ?, date = ?
WHERE id = ?`

type UpdateExpenseParams struct {
	ID          int64
	Description string
	AmountCents int64
	Category    string
	Date        string
}

func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) error {
	_, err := q.db.ExecContext(ctx, updateExpense,
		arg.Description,
		arg.AmountCents,
		arg.Category,
		arg.Date,
		arg.ID,
	)
	return err
}

const deleteExpense = `DELETE FROM expenses WHERE id = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpense, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (q *Queries) queryExpenses(ctx context.Context, query string, args ...interface{}) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Expense{}
	for rows.Next() {
		i, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExpense(s scanner) (Expense, error) {
	var i Expense
	err := s.Scan(
		&i.ID,
		&i.Description,
		&i.AmountCents,
		&i.Category,
		&i.Date,
		&i.CreatedAt,
	)
	return i, err
}
