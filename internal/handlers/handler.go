package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tikki/Chit/internal/broker"
	"github.com/tikki/Chit/internal/chaterr"
	"github.com/tikki/Chit/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	broker *broker.Broker
	store  *store.ChatStore
	logger zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(b *broker.Broker, s *store.ChatStore, logger zerolog.Logger) *Handler {
	return &Handler{broker: b, store: s, logger: logger.With().Str("component", "rest").Logger()}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error reply. Every reply carries either the expected
// success payload or an error field; there is no partial-success shape.
func (h *Handler) Error(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch chaterr.KindOf(err) {
	case chaterr.Auth:
		status = http.StatusForbidden
	case chaterr.Storage:
		status = http.StatusInternalServerError
		h.logger.Error().Err(err).Msg("storage failure")
	}
	h.JSON(w, status, map[string]string{"error": chaterr.Public(err)})
}
