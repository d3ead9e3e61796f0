package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/store"
)

// topCategories bounds how many categories a summary report logs.
const topCategories = 5

// SummaryWorker consumes expense change events and keeps a fresh summary
// of the collection, logging each recomputation.
type SummaryWorker struct {
	reader store.ExpenseReader
	logger *slog.Logger

	mu   sync.RWMutex
	last core.Summary
	seen int64
}

func NewSummaryWorker(reader store.ExpenseReader, logger *slog.Logger) *SummaryWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryWorker{
		reader: reader,
		logger: logger,
		last:   core.Summarize(nil),
	}
}

// HandleEvent processes one change event. Returning an error requeues it.
func (w *SummaryWorker) HandleEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error {
	w.logger.InfoContext(ctx, "Processing expense event",
		"id", msg.ID,
		"action", msg.Action)

	if msg.Action != amqp.ActionDeleted {
		e, err := w.reader.Get(ctx, msg.ID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			// Deleted after the event was published; a later event covers it.
			w.logger.WarnContext(ctx, "Expense from event no longer exists", "id", msg.ID)
		case err != nil:
			return fmt.Errorf("get expense: %w", err)
		default:
			w.logger.InfoContext(ctx, "Expense changed",
				"id", e.ID,
				"description", e.Description,
				"amount", e.Amount.String(),
				"category", e.Category,
				"date", e.Date.String())
		}
	}

	if _, err := w.ReportSummary(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	w.seen++
	w.mu.Unlock()
	return nil
}

// ReportSummary recomputes and logs the summary of the whole collection.
func (w *SummaryWorker) ReportSummary(ctx context.Context) (core.Summary, error) {
	items, err := w.reader.List(ctx)
	if err != nil {
		return core.Summary{}, fmt.Errorf("list expenses: %w", err)
	}
	sum := core.Summarize(items)

	w.mu.Lock()
	w.last = sum
	w.mu.Unlock()

	attrs := []any{
		"total_expenses", sum.TotalExpenses,
		"total_amount", sum.TotalAmount.String(),
		"average_amount", sum.AverageAmount.String(),
	}
	for i, c := range sum.SortedBreakdown() {
		if i == topCategories {
			break
		}
		attrs = append(attrs, "category_"+c.Name, c.Amount.String())
	}
	w.logger.InfoContext(ctx, "Expense summary", attrs...)

	return sum, nil
}

// LastSummary returns the most recently computed summary.
func (w *SummaryWorker) LastSummary() core.Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

// EventsHandled returns how many events were processed successfully.
func (w *SummaryWorker) EventsHandled() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.seen
}
