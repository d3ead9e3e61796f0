package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"expenses/internal/amqp"
	"expenses/internal/cache"
	"expenses/internal/core"
	"expenses/internal/store"
)

// EventPublisher announces committed changes. Implemented by *amqp.Client.
type EventPublisher interface {
	PublishExpenseEvent(ctx context.Context, id int64, action amqp.Action) error
}

// Pinger is implemented by stores that can report connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ExpenseFilter narrows ListExpenses. Start and End must be set together.
type ExpenseFilter struct {
	Category string
	Start    core.Date
	End      core.Date
}

// ErrInvalidFilter is returned when only one date bound is supplied.
var ErrInvalidFilter = errors.New("start and end must be provided together")

// ExpenseService orchestrates expense operations across the store,
// the summary cache and change-event publishing.
type ExpenseService struct {
	store     store.Store
	publisher EventPublisher
	logger    *slog.Logger

	summaries  *cache.LRUCache[core.Summary]
	generation atomic.Uint64
	group      singleflight.Group
}

type Option func(*ExpenseService)

func WithPublisher(p EventPublisher) Option {
	return func(s *ExpenseService) { s.publisher = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ExpenseService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSummaryCache caches summaries for ttl. A zero ttl disables caching.
func WithSummaryCache(ttl time.Duration) Option {
	return func(s *ExpenseService) {
		if ttl > 0 {
			s.summaries = cache.NewLRUCache[core.Summary](8, ttl)
		}
	}
}

func NewExpenseService(st store.Store, opts ...Option) *ExpenseService {
	s := &ExpenseService{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SummaryCache exposes the cache for periodic cleanup; nil when disabled.
func (s *ExpenseService) SummaryCache() *cache.LRUCache[core.Summary] {
	return s.summaries
}

func (s *ExpenseService) ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, error) {
	hasStart, hasEnd := !f.Start.IsEmpty(), !f.End.IsEmpty()
	if hasStart != hasEnd {
		return nil, ErrInvalidFilter
	}

	var (
		items []core.Expense
		err   error
	)
	switch {
	case hasStart:
		items, err = s.store.ListByDateRange(ctx, f.Start, f.End)
		if err == nil && f.Category != "" {
			items = store.FilterByCategory(items, f.Category)
		}
	case f.Category != "":
		items, err = s.store.ListByCategory(ctx, f.Category)
	default:
		items, err = s.store.List(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return items, nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	return s.store.Get(ctx, id)
}

// CreateExpense stores the expense and publishes a created event.
func (s *ExpenseService) CreateExpense(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	e, err := s.store.Create(ctx, in)
	if err != nil {
		return core.Expense{}, err
	}
	s.changed(ctx, e.ID, amqp.ActionCreated)
	return e, nil
}

func (s *ExpenseService) UpdateExpense(ctx context.Context, id int64, upd core.ExpenseUpdate) (core.Expense, error) {
	e, err := s.store.Update(ctx, id, upd)
	if err != nil {
		return core.Expense{}, err
	}
	s.changed(ctx, id, amqp.ActionUpdated)
	return e, nil
}

// DeleteExpense reports whether a record was removed. No event is published for a no-op.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id int64) (bool, error) {
	removed, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if removed {
		s.changed(ctx, id, amqp.ActionDeleted)
	}
	return removed, nil
}

// Summary aggregates the current collection. Concurrent callers share one
// computation, and results are cached until the next mutation.
func (s *ExpenseService) Summary(ctx context.Context) (core.Summary, error) {
	key := "summary:" + strconv.FormatUint(s.generation.Load(), 10)
	if s.summaries != nil {
		if sum, ok := s.summaries.Get(key); ok {
			return detach(sum), nil
		}
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		items, err := s.store.List(ctx)
		if err != nil {
			return core.Summary{}, fmt.Errorf("list expenses: %w", err)
		}
		sum := core.Summarize(items)
		if s.summaries != nil {
			s.summaries.Set(key, sum)
		}
		return sum, nil
	})
	if err != nil {
		return core.Summary{}, err
	}
	return detach(v.(core.Summary)), nil
}

// detach gives the caller its own breakdown map so the cached summary stays intact.
func detach(sum core.Summary) core.Summary {
	sum.CategoryBreakdown = maps.Clone(sum.CategoryBreakdown)
	return sum
}

func (s *ExpenseService) Categories(ctx context.Context) ([]string, error) {
	items, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	return store.Categories(items), nil
}

// Ping checks the store when it supports connectivity checks.
func (s *ExpenseService) Ping(ctx context.Context) error {
	if p, ok := s.store.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// changed invalidates cached summaries and publishes an event. Publishing is
// best-effort: the mutation is already committed.
func (s *ExpenseService) changed(ctx context.Context, id int64, action amqp.Action) {
	s.generation.Add(1)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishExpenseEvent(ctx, id, action); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			"id", id, "action", action, "error", err)
	}
}

// Close closes the store.
func (s *ExpenseService) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close expense service: %w", err)
	}
	return nil
}
