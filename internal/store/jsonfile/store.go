// Package jsonfile persists the expense collection as a single JSON array on disk.
//
// Every mutation reads the whole file, applies the change and rewrites it
// through a temporary file that is fsynced and renamed over the target.
// A mutex per Store serializes mutations, so one Store must own a file.
package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"expenses/internal/core"
	"expenses/internal/store"
)

type Store struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu        sync.RWMutex
	highWater int64
	seeded    bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for degraded-read warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a store backed by path. The file is created on first write.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Close is a no-op; the store holds no open handles between calls.
func (s *Store) Close() error { return nil }

// snapshot is the result of reading the file. corrupt is set when the file
// existed but could not be decoded; readErr when it existed but could not be read.
type snapshot struct {
	items   []core.Expense
	corrupt bool
	readErr error
}

func (s *Store) read(ctx context.Context) snapshot {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.WarnContext(ctx, "Expenses file unreadable, treating as empty", "path", s.path, "error", err)
			return snapshot{items: []core.Expense{}, readErr: err}
		}
		return snapshot{items: []core.Expense{}}
	}
	items, err := store.Decode(data)
	if err != nil {
		s.logger.WarnContext(ctx, "Expenses file corrupt, treating as empty", "path", s.path, "error", err)
		return snapshot{items: []core.Expense{}, corrupt: true}
	}
	return snapshot{items: items}
}

// load reads the collection for a query.
func (s *Store) load(ctx context.Context) ([]core.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read(ctx).items, nil
}

// mutate runs fn over the current collection under the write lock and
// persists the result. fn returns the new collection and whether it changed.
func (s *Store) mutate(ctx context.Context, fn func(items []core.Expense) ([]core.Expense, bool, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.read(ctx)
	if snap.readErr != nil {
		// Writing now would replace records we could not see.
		return fmt.Errorf("read expenses file: %w", snap.readErr)
	}
	if !s.seeded {
		s.highWater = max(s.highWater, store.MaxID(snap.items))
		s.seeded = true
	}

	items, changed, err := fn(snap.items)
	if err != nil || !changed {
		return err
	}
	if snap.corrupt {
		s.quarantine(ctx)
	}
	if err := s.write(items); err != nil {
		return fmt.Errorf("write expenses file: %w", err)
	}
	s.highWater = max(s.highWater, store.MaxID(items))
	return nil
}

// quarantine moves a corrupt file aside so the next write does not destroy it.
func (s *Store) quarantine(ctx context.Context) {
	aside := s.asideName()
	if err := os.Rename(s.path, aside); err != nil {
		s.logger.WarnContext(ctx, "Failed to preserve corrupt expenses file", "path", s.path, "error", err)
		return
	}
	s.logger.WarnContext(ctx, "Preserved corrupt expenses file", "path", aside)
}

// asideName returns <file>.corrupt-<unix>, suffixed with a counter when an
// earlier quarantine already used that name.
func (s *Store) asideName() string {
	base := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
	name := base
	for n := 1; ; n++ {
		if _, err := os.Lstat(name); errors.Is(err, fs.ErrNotExist) {
			return name
		}
		name = fmt.Sprintf("%s-%d", base, n)
	}
}

func (s *Store) write(items []core.Expense) error {
	data, err := store.Encode(items)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return err
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]core.Expense, error) {
	return s.load(ctx)
}

func (s *Store) Get(ctx context.Context, id int64) (core.Expense, error) {
	items, err := s.load(ctx)
	if err != nil {
		return core.Expense{}, err
	}
	if i := store.IndexOf(items, id); i >= 0 {
		return items[i], nil
	}
	return core.Expense{}, core.ErrNotFound
}

func (s *Store) ListByCategory(ctx context.Context, category string) ([]core.Expense, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return store.FilterByCategory(items, category), nil
}

func (s *Store) ListByDateRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	items, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return store.FilterByDateRange(items, start, end), nil
}

func (s *Store) Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Expense{}, err
	}
	var created core.Expense
	err := s.mutate(ctx, func(items []core.Expense) ([]core.Expense, bool, error) {
		e, err := core.NewExpense(store.NextID(s.highWater, items), in, s.now())
		if err != nil {
			return nil, false, err
		}
		created = e
		return append(items, e), true, nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	return created, nil
}

func (s *Store) Update(ctx context.Context, id int64, upd core.ExpenseUpdate) (core.Expense, error) {
	var updated core.Expense
	err := s.mutate(ctx, func(items []core.Expense) ([]core.Expense, bool, error) {
		i := store.IndexOf(items, id)
		if i < 0 {
			return nil, false, core.ErrNotFound
		}
		if upd.IsEmpty() {
			updated = items[i]
			return items, false, nil
		}
		e, err := upd.Apply(items[i])
		if err != nil {
			return nil, false, err
		}
		updated = e
		items[i] = e
		return items, true, nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	return updated, nil
}

func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	removed := false
	err := s.mutate(ctx, func(items []core.Expense) ([]core.Expense, bool, error) {
		i := store.IndexOf(items, id)
		if i < 0 {
			return items, false, nil
		}
		removed = true
		return append(items[:i], items[i+1:]...), true, nil
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}
