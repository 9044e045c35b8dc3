package handlers

import (
	"net/http"

	"github.com/splitbook/splitbook/internal/api/dto"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

// AccountsHandler serves the account hierarchy.
type AccountsHandler struct {
	*Base
}

// NewAccountsHandler creates an accounts handler.
func NewAccountsHandler(repo storage.Repository) *AccountsHandler {
	return &AccountsHandler{Base: NewBase(repo)}
}

// List returns a book's account tree, parents before children.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	book := h.ResolveBook(w, r)
	if book == nil {
		return
	}

	nodes, err := h.repo.AccountHierarchy(book.ID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.AccountsFromHierarchy(nodes))
}
