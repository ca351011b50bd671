package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// CreateChatRequest is the chat creation request.
type CreateChatRequest struct {
	Key string `json:"key,omitempty"` // server key gating read/append; omit for a public chat
}

// ReadChatResponse is the history read response.
type ReadChatResponse struct {
	Messages []string `json:"messages"`
}

// UpdateChatRequest carries one envelope to append.
type UpdateChatRequest struct {
	Key string `json:"key,omitempty"`
	Msg string `json:"msg"` // raw envelope JSON string
}

// UpdateChatResponse reports the new modified timestamp.
type UpdateChatResponse struct {
	Time int64 `json:"time"`
}

// DeleteChatRequest carries the admin secret.
type DeleteChatRequest struct {
	Secret string `json:"secret"`
}

// CreateChat handles POST /api/1/chat.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	result, err := h.broker.Create(r.Context(), req.Key)
	if err != nil {
		h.Error(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, result)
}

// ReadChat handles GET /api/1/chat/{id}?key=.
func (h *Handler) ReadChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key := r.URL.Query().Get("key")

	messages, err := h.broker.Read(r.Context(), id, key)
	if err != nil {
		h.Error(w, err)
		return
	}
	if messages == nil {
		messages = []string{}
	}
	h.JSON(w, http.StatusOK, ReadChatResponse{Messages: messages})
}

// UpdateChat handles PUT /api/1/chat/{id}.
func (h *Handler) UpdateChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	modified, err := h.broker.Update(r.Context(), id, req.Key, req.Msg)
	if err != nil {
		h.Error(w, err)
		return
	}
	h.JSON(w, http.StatusOK, UpdateChatResponse{Time: modified})
}

// DeleteChat handles DELETE /api/1/chat/{id}.
func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DeleteChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.JSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if err := h.broker.Delete(r.Context(), id, req.Secret); err != nil {
		h.Error(w, err)
		return
	}
	h.JSON(w, http.StatusOK, struct{}{})
}
