package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"expenses/internal/core"
	"expenses/internal/store"
)

type Store struct {
	mu        sync.Mutex
	items     []core.Expense
	highWater int64
	now       func() time.Time
}

func New(seed ...core.Expense) *Store {
	items := append([]core.Expense(nil), seed...)
	return &Store{items: items, highWater: store.MaxID(items), now: time.Now}
}

// NewFromFile seeds the store from a JSON collection file. An empty path
// yields an empty store.
func NewFromFile(path string) (*Store, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	items, err := store.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load seed file: %w", err)
	}
	return New(items...), nil
}

func (s *Store) Close() error { return nil }

func (s *Store) List(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(make([]core.Expense, 0, len(s.items)), s.items...), nil
}

func (s *Store) Get(_ context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := store.IndexOf(s.items, id); i >= 0 {
		return s.items[i], nil
	}
	return core.Expense{}, core.ErrNotFound
}

func (s *Store) ListByCategory(_ context.Context, category string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.FilterByCategory(s.items, category), nil
}

func (s *Store) ListByDateRange(_ context.Context, start, end core.Date) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return store.FilterByDateRange(s.items, start, end), nil
}

// Create validates and stores the expense.
func (s *Store) Create(_ context.Context, in core.ExpenseInput) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := core.NewExpense(store.NextID(s.highWater, s.items), in, s.now())
	if err != nil {
		return core.Expense{}, err
	}
	s.items = append(s.items, e)
	s.highWater = e.ID
	return e, nil
}

func (s *Store) Update(_ context.Context, id int64, upd core.ExpenseUpdate) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := store.IndexOf(s.items, id)
	if i < 0 {
		return core.Expense{}, core.ErrNotFound
	}
	e, err := upd.Apply(s.items[i])
	if err != nil {
		return core.Expense{}, err
	}
	s.items[i] = e
	return e, nil
}

func (s *Store) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := store.IndexOf(s.items, id)
	if i < 0 {
		return false, nil
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true, nil
}
