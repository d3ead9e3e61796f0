package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"expenses/internal/core"
)

func newBufferLogger(buf *bytes.Buffer, component string) *Logger {
	return New(Config{Level: slog.LevelDebug, Format: "json", Component: component, Output: buf})
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		records = append(records, rec)
	}
	return records
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG":   slog.LevelDebug,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"WARN":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler("json", slog.LevelInfo, &buf)).Info("hello", "k", 1)
	if !strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("json handler output = %q", buf.String())
	}

	buf.Reset()
	slog.New(NewHandler("text", slog.LevelInfo, &buf)).Info("hello", "k", 1)
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("text handler output = %q", buf.String())
	}

	buf.Reset()
	slog.New(NewHandler("text", slog.LevelWarn, &buf)).Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info record written at warn level: %q", buf.String())
	}
}

func TestWithComponentWritesSingleAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf, ComponentApp)

	child := logger.With("k", "v").WithComponent(ComponentHTTP)
	child.Info("msg")

	line := buf.String()
	if strings.Count(line, `"component"`) != 1 {
		t.Fatalf("expected exactly one component attribute: %s", line)
	}
	recs := decodeLines(t, &buf)
	if recs[0][FieldComponent] != ComponentHTTP || recs[0]["k"] != "v" {
		t.Fatalf("record = %v", recs[0])
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext without logger returned nil")
	}

	var buf bytes.Buffer
	logger := newBufferLogger(&buf, ComponentHTTP)
	ctx := NewContext(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Fatal("FromContext did not return the stored logger")
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf, ComponentHTTP))
	req := httptest.NewRequest(http.MethodPost, "/api/expenses?x=1", nil)

	sl.LogHTTPEnd(context.Background(), req, http.StatusCreated, 3, "1.2.3.4")
	sl.LogHTTPEnd(context.Background(), req, http.StatusNotFound, 3, "1.2.3.4")
	sl.LogHTTPEnd(context.Background(), req, http.StatusInternalServerError, 3, "1.2.3.4")

	recs := decodeLines(t, &buf)
	want := []string{"INFO", "WARN", "ERROR"}
	if len(recs) != len(want) {
		t.Fatalf("got %d records", len(recs))
	}
	for i, rec := range recs {
		if rec["level"] != want[i] {
			t.Errorf("record %d level = %v, want %s", i, rec["level"], want[i])
		}
	}
	if recs[0][FieldQuery] != "x=1" || recs[0][FieldSuccess] != true {
		t.Errorf("record = %v", recs[0])
	}
}

func TestStructuredLoggerExpenseAndError(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(newBufferLogger(&buf, ComponentExpense))
	e := core.Expense{
		ID:          7,
		Description: "Lunch",
		Amount:      core.Money{Cents: 1250},
		Category:    "Food",
		Date:        core.NewDate(2024, 1, 15),
	}

	sl.LogExpenseChanged(context.Background(), OpCreate, e)
	sl.LogError(context.Background(), "Failed to save expense", errors.New("disk full"), OpCreate, nil)

	recs := decodeLines(t, &buf)
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0]["msg"] != "Expense created" || recs[0][FieldExpenseID] != float64(7) || recs[0][FieldDate] != "2024-01-15" {
		t.Errorf("expense record = %v", recs[0])
	}
	if recs[1][FieldError] != "disk full" || recs[1][FieldOperation] != OpCreate {
		t.Errorf("error record = %v", recs[1])
	}
}
