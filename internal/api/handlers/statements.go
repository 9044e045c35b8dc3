package handlers

import (
	"errors"
	"net/http"

	"github.com/splitbook/splitbook/internal/api/dto"
	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

// StatementsHandler serves statement periods and their reconciliation
// outcomes.
type StatementsHandler struct {
	*Base
}

// NewStatementsHandler creates a statements handler.
func NewStatementsHandler(repo storage.Repository) *StatementsHandler {
	return &StatementsHandler{Base: NewBase(repo)}
}

// List returns the statement periods of one account in a book, with
// the computed balance and discrepancy of the last reconciliation run.
func (h *StatementsHandler) List(w http.ResponseWriter, r *http.Request) {
	book := h.ResolveBook(w, r)
	if book == nil {
		return
	}

	accountName := r.URL.Query().Get("account")
	if accountName == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("missing account parameter"))
		return
	}

	account, err := h.repo.AccountByFullName(book.ID, accountName)
	if errors.Is(err, ledger.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("account"))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	periods, err := h.repo.ListStatementPeriods(book.ID, account.ID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	out := make([]dto.StatementPeriodResponse, len(periods))
	for i, p := range periods {
		out[i] = dto.StatementFromLedger(p)
	}
	h.WriteJSON(w, http.StatusOK, out)
}
