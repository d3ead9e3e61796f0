// Package postgres stores expenses in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"expenses/internal/core"
)

//go:embed schema.sql
var schemaSQL string

const table = "expenses"

var columns = []string{"id", "description", "amount_cents", "category", "date", "created_at"}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// Config holds the connection settings.
type Config struct {
	DSN         string
	MaxPoolSize int
}

// Store implements store.Store on PostgreSQL. Ids come from a BIGSERIAL
// sequence and are never reused.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// New connects, pings and ensures the schema exists.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("Connected to PostgreSQL",
		"database", poolConfig.ConnConfig.Database,
		"host", poolConfig.ConnConfig.Host)

	return &Store{pool: pool, logger: logger, now: time.Now}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func selectQuery() squirrel.SelectBuilder {
	return psql.Select(columns...).From(table).OrderBy("id")
}

func insertQuery(e core.Expense) squirrel.InsertBuilder {
	return psql.Insert(table).
		Columns("description", "amount_cents", "category", "date", "created_at").
		Values(e.Description, e.Amount.Cents, e.Category, e.Date.Time, e.CreatedAt).
		Suffix("RETURNING id")
}

func updateQuery(e core.Expense) squirrel.UpdateBuilder {
	return psql.Update(table).
		Set("description", e.Description).
		Set("amount_cents", e.Amount.Cents).
		Set("category", e.Category).
		Set("date", e.Date.Time).
		Where(squirrel.Eq{"id": e.ID})
}

func deleteQuery(id int64) squirrel.DeleteBuilder {
	return psql.Delete(table).Where(squirrel.Eq{"id": id})
}

func (s *Store) query(ctx context.Context, q squirrel.SelectBuilder) ([]core.Expense, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := make([]core.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func scanExpense(row pgx.Row) (core.Expense, error) {
	var (
		e    core.Expense
		date time.Time
	)
	if err := row.Scan(&e.ID, &e.Description, &e.Amount.Cents, &e.Category, &date, &e.CreatedAt); err != nil {
		return core.Expense{}, err
	}
	e.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (s *Store) List(ctx context.Context) ([]core.Expense, error) {
	return s.query(ctx, selectQuery())
}

func (s *Store) Get(ctx context.Context, id int64) (core.Expense, error) {
	sql, args, err := selectQuery().Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build query: %w", err)
	}
	e, err := scanExpense(s.pool.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return e, nil
}

func (s *Store) ListByCategory(ctx context.Context, category string) ([]core.Expense, error) {
	return s.query(ctx, selectQuery().Where(squirrel.Eq{"category": category}))
}

func (s *Store) ListByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	return s.query(ctx, selectQuery().Where(squirrel.And{
		squirrel.GtOrEq{"date": start.Time},
		squirrel.LtOrEq{"date": end.Time},
	}))
}

func (s *Store) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	e, err := core.NewExpense(1, in, s.now())
	if err != nil {
		return core.Expense{}, err
	}
	// Postgres keeps microseconds.
	e.CreatedAt = e.CreatedAt.Truncate(time.Microsecond)

	sql, args, err := insertQuery(e).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build query: %w", err)
	}
	if err := s.pool.QueryRow(ctx, sql, args...).Scan(&e.ID); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense saved to PostgreSQL", "id", e.ID, "amount_cents", e.Amount.Cents)
	return e, nil
}

func (s *Store) Update(ctx context.Context, id int64, upd core.ExpenseUpdate) (core.Expense, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return core.Expense{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sql, args, err := selectQuery().Where(squirrel.Eq{"id": id}).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build query: %w", err)
	}
	current, err := scanExpense(tx.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}

	updated, err := upd.Apply(current)
	if err != nil {
		return core.Expense{}, err
	}
	sql, args, err = updateQuery(updated).ToSql()
	if err != nil {
		return core.Expense{}, fmt.Errorf("build query: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return core.Expense{}, fmt.Errorf("commit transaction: %w", err)
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	sql, args, err := deleteQuery(id).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return false, fmt.Errorf("delete expense: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
