package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"expenses/internal/core"
	"expenses/internal/services"
)

const maxBodyBytes = 1 << 20

var errMalformedBody = errors.New("malformed request body")

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Detail string `json:"detail"`
}

type messageResponse struct {
	Message string `json:"message"`
	Version string `json:"version,omitempty"`
}

// createExpenseRequest uses pointers so that missing required fields can be
// told apart from zero values.
type createExpenseRequest struct {
	Description *string     `json:"description"`
	Amount      *core.Money `json:"amount"`
	Category    string      `json:"category"`
	Date        core.Date   `json:"date"`
}

func (req createExpenseRequest) toInput() (core.ExpenseInput, error) {
	if req.Amount == nil {
		return core.ExpenseInput{}, fmt.Errorf("%w: amount is required", core.ErrInvalidAmount)
	}
	if req.Description == nil {
		return core.ExpenseInput{}, fmt.Errorf("%w: description is required", core.ErrEmptyDescription)
	}
	return core.ExpenseInput{
		Description: sanitizeInput(*req.Description),
		Amount:      *req.Amount,
		Category:    sanitizeInput(req.Category),
		Date:        req.Date,
	}, nil
}

type updateExpenseRequest struct {
	Description *string     `json:"description"`
	Amount      *core.Money `json:"amount"`
	Category    *string     `json:"category"`
	Date        *core.Date  `json:"date"`
}

func (req updateExpenseRequest) toUpdate() core.ExpenseUpdate {
	upd := core.ExpenseUpdate{Amount: req.Amount, Date: req.Date}
	if req.Description != nil {
		d := sanitizeInput(*req.Description)
		upd.Description = &d
	}
	if req.Category != nil {
		c := sanitizeInput(*req.Category)
		upd.Category = &c
	}
	return upd
}

// decodeJSON reads a single JSON object from the body. Field-level errors
// (bad amount or date, wrong JSON type) are returned as they are; syntax
// errors, empty or oversized bodies wrap errMalformedBody.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		switch {
		case core.IsValidation(err):
			return err
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return fmt.Errorf("invalid value for %s: expected %s", typeErr.Field, typeErr.Type)
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON object", errMalformedBody)
	}
	return nil
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// parseFilter reads category, start and end from the query string.
func parseFilter(r *http.Request) (services.ExpenseFilter, error) {
	q := r.URL.Query()
	f := services.ExpenseFilter{Category: strings.TrimSpace(q.Get("category"))}
	if v := strings.TrimSpace(q.Get("start")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.Start = d
	}
	if v := strings.TrimSpace(q.Get("end")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return f, err
		}
		f.End = d
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
