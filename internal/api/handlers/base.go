package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/splitbook/splitbook/internal/api/dto"
	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

// Base provides shared functionality for all handlers.
type Base struct {
	repo storage.Repository
}

// NewBase creates a new base handler with the given repository.
func NewBase(repo storage.Repository) *Base {
	return &Base{repo: repo}
}

// WriteJSON writes a JSON response with the given status code.
func (b *Base) WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response with the given status code.
func (b *Base) WriteError(w http.ResponseWriter, status int, err dto.APIError) {
	b.WriteJSON(w, status, err)
}

// ResolveBook resolves the "book" query parameter to a book record.
// Writes the error response itself and returns nil when it cannot.
func (b *Base) ResolveBook(w http.ResponseWriter, r *http.Request) *ledger.Book {
	name := r.URL.Query().Get("book")
	if name == "" {
		b.WriteError(w, http.StatusBadRequest, dto.BadRequestError("missing book parameter"))
		return nil
	}
	book, err := b.repo.BookByName(name)
	if errors.Is(err, ledger.ErrNotFound) {
		b.WriteError(w, http.StatusNotFound, dto.NotFoundError("book"))
		return nil
	}
	if err != nil {
		b.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return nil
	}
	return book
}

// ParseIntParam parses an integer query parameter with a default value.
func ParseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
