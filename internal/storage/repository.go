package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"expenses/internal/core"

	_ "modernc.org/sqlite"
)

// SQLiteRepository stores expenses in a SQLite database. Ids come from
// AUTOINCREMENT and are never reused, even across restarts.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := RunMigrations(dbPath, slog.Default()); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.queries.ListExpenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return toDomainList(rows)
}

func (r *SQLiteRepository) Get(ctx context.Context, id int64) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return toDomain(row)
}

func (r *SQLiteRepository) ListByCategory(ctx context.Context, category string) ([]core.Expense, error) {
	rows, err := r.queries.ListExpensesByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list expenses by category: %w", err)
	}
	return toDomainList(rows)
}

func (r *SQLiteRepository) ListByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	rows, err := r.queries.ListExpensesByDateRange(ctx, start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("list expenses by date range: %w", err)
	}
	return toDomainList(rows)
}

func (r *SQLiteRepository) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	// Validate with a placeholder id; the database assigns the real one.
	e, err := core.NewExpense(1, in, r.now())
	if err != nil {
		return core.Expense{}, err
	}

	row, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Date:        e.Date.String(),
		CreatedAt:   e.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", row.ID,
		"description", row.Description,
		"amount_cents", row.AmountCents,
		"date", row.Date)

	return toDomain(row)
}

func (r *SQLiteRepository) Update(ctx context.Context, id int64, upd core.ExpenseUpdate) (core.Expense, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	row, err := q.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	current, err := toDomain(row)
	if err != nil {
		return core.Expense{}, err
	}
	updated, err := upd.Apply(current)
	if err != nil {
		return core.Expense{}, err
	}

	if err := q.UpdateExpense(ctx, UpdateExpenseParams{
		ID:          id,
		Description: updated.Description,
		AmountCents: updated.Amount.Cents,
		Category:    updated.Category,
		Date:        updated.Date.String(),
	}); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.Expense{}, fmt.Errorf("commit transaction: %w", err)
	}

	slog.InfoContext(ctx, "Expense updated in SQLite", "id", id)
	return updated, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) (bool, error) {
	n, err := r.queries.DeleteExpense(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}
	if n > 0 {
		slog.InfoContext(ctx, "Expense deleted from SQLite", "id", id)
	}
	return n > 0, nil
}

func toDomain(row Expense) (core.Expense, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: %w", row.ID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: parse created_at: %w", row.ID, err)
	}
	return core.Expense{
		ID:          row.ID,
		Description: row.Description,
		Amount:      core.Money{Cents: row.AmountCents},
		Category:    row.Category,
		Date:        date,
		CreatedAt:   createdAt.UTC(),
	}, nil
}

func toDomainList(rows []Expense) ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := toDomain(row)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
