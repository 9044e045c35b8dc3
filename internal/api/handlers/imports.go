package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/splitbook/splitbook/internal/api/dto"
	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

// ImportsHandler serves the import batch audit trail.
type ImportsHandler struct {
	*Base
}

// NewImportsHandler creates an imports handler.
func NewImportsHandler(repo storage.Repository) *ImportsHandler {
	return &ImportsHandler{Base: NewBase(repo)}
}

// List returns a book's import batches, newest first.
func (h *ImportsHandler) List(w http.ResponseWriter, r *http.Request) {
	book := h.ResolveBook(w, r)
	if book == nil {
		return
	}

	batches, err := h.repo.ListImportBatches(book.ID)
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	out := make([]dto.ImportBatchResponse, len(batches))
	for i, b := range batches {
		out[i] = dto.ImportBatchFromLedger(b)
	}
	h.WriteJSON(w, http.StatusOK, out)
}

// Get returns one import batch by id.
func (h *ImportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid batch id"))
		return
	}

	batch, err := h.repo.ImportBatchByID(id)
	if errors.Is(err, ledger.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("import batch"))
		return
	}
	if err != nil {
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}
	h.WriteJSON(w, http.StatusOK, dto.ImportBatchFromLedger(batch))
}
