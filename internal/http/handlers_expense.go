package http

import (
	"errors"
	"net/http"

	"expenses/internal/core"
	"expenses/internal/log"
	"expenses/internal/services"
)

const (
	msgExpenseNotFound = "Expense not found"
	msgExpenseDeleted  = "Expense deleted successfully"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	items, err := s.service.ListExpenses(r.Context(), f)
	if err != nil {
		if errors.Is(err, services.ErrInvalidFilter) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.internalError(w, r, "Failed to list expenses", err, log.OpList)
		return
	}
	if items == nil {
		items = []core.Expense{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgExpenseNotFound)
		return
	}
	e, err := s.service.GetExpense(r.Context(), id)
	if err != nil {
		s.expenseError(w, r, "Failed to read expense", err, log.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req createExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.decodeError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	e, err := s.service.CreateExpense(r.Context(), in)
	if err != nil {
		s.expenseError(w, r, "Failed to save expense", err, log.OpCreate)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).LogExpenseChanged(r.Context(), log.OpCreate, e)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgExpenseNotFound)
		return
	}
	var req updateExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.decodeError(w, err)
		return
	}

	e, err := s.service.UpdateExpense(r.Context(), id, req.toUpdate())
	if err != nil {
		s.expenseError(w, r, "Failed to update expense", err, log.OpUpdate)
		return
	}
	log.NewStructuredLogger(log.FromContext(r.Context())).LogExpenseChanged(r.Context(), log.OpUpdate, e)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		writeError(w, http.StatusNotFound, msgExpenseNotFound)
		return
	}
	removed, err := s.service.DeleteExpense(r.Context(), id)
	if err != nil {
		s.internalError(w, r, "Failed to delete expense", err, log.OpDelete)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, msgExpenseNotFound)
		return
	}
	log.FromContext(r.Context()).InfoContext(r.Context(), "Expense deleted",
		log.FieldExpenseID, id, log.FieldOperation, log.OpDelete)
	writeJSON(w, http.StatusOK, messageResponse{Message: msgExpenseDeleted})
}

func (s *Server) decodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errMalformedBody) {
		writeError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	writeError(w, http.StatusUnprocessableEntity, err.Error())
}

// expenseError maps store and validation errors to status codes.
func (s *Server) expenseError(w http.ResponseWriter, r *http.Request, msg string, err error, op string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, msgExpenseNotFound)
	case core.IsValidation(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.internalError(w, r, msg, err, op)
	}
}
