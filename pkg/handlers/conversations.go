package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/d4l-data4life/go-image-studio/pkg/conversation"
	"github.com/d4l-data4life/go-image-studio/pkg/history"

	"github.com/d4l-data4life/go-svc/pkg/instrumented"
	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// ConversationsHandler handles conversation endpoints
type ConversationsHandler struct {
	*instrumented.Handler
	service *conversation.Service
}

// NewConversationsHandler creates a new conversations handler
func NewConversationsHandler(service *conversation.Service) *ConversationsHandler {
	return &ConversationsHandler{
		Handler: GetHandlerFactory().NewHandler("ConversationsHandler"),
		service: service,
	}
}

// Routes returns conversation routes
func (h *ConversationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get(h.InstrumentChi("/", h.ListConversations))
	r.Post(h.InstrumentChi("/", h.CreateConversation))
	r.Get(h.InstrumentChi("/{id}", h.GetConversation))
	r.Delete(h.InstrumentChi("/{id}", h.DeleteConversation))
	r.Get(h.InstrumentChi("/{id}/history", h.LoadHistory))
	r.Put(h.InstrumentChi("/{id}/history", h.SaveHistory))

	return r
}

// SaveHistoryRequest is the body of POST /conversations and PUT /conversations/{id}/history
type SaveHistoryRequest struct {
	History []history.Item `json:"history"`
	Title   string         `json:"title,omitempty"`
}

// SaveHistoryResponse carries the id the history was saved under
type SaveHistoryResponse struct {
	ID uuid.UUID `json:"id"`
}

// HistoryResponse is a stored conversation rebuilt as history
type HistoryResponse struct {
	ID      uuid.UUID      `json:"id"`
	History []history.Item `json:"history"`
}

// ListConversations returns all conversations of the current user, most recent first
func (h *ConversationsHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	conversations, err := h.service.List(r.Context(), userID)
	if err != nil {
		logging.LogErrorf(err, "Failed to list conversations")
		renderError(w, r, http.StatusInternalServerError, "Failed to list conversations")
		return
	}

	render.JSON(w, r, conversations)
}

// CreateConversation saves a history as a new conversation
func (h *ConversationsHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())

	req, ok := decodeSaveHistory(w, r)
	if !ok {
		return
	}

	id, err := h.service.SaveHistory(r.Context(), req.History, req.Title, uuid.Nil, userID)
	if err != nil {
		renderSaveError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SaveHistoryResponse{ID: id})
}

// GetConversation returns a conversation with its message count
func (h *ConversationsHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	convID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	summary, err := h.service.Get(r.Context(), convID, userID)
	if err != nil {
		renderLookupError(w, r, err, "Failed to get conversation")
		return
	}

	render.JSON(w, r, summary)
}

// LoadHistory returns the conversation as history with images as storage URLs
func (h *ConversationsHandler) LoadHistory(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	convID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	items, err := h.service.LoadHistory(r.Context(), convID, userID)
	if err != nil {
		renderLookupError(w, r, err, "Failed to load conversation")
		return
	}

	render.JSON(w, r, HistoryResponse{ID: convID, History: items})
}

// SaveHistory replaces the messages of an existing conversation
func (h *ConversationsHandler) SaveHistory(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	convID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}
	req, ok := decodeSaveHistory(w, r)
	if !ok {
		return
	}

	id, err := h.service.SaveHistory(r.Context(), req.History, req.Title, convID, userID)
	if err != nil {
		renderSaveError(w, r, err)
		return
	}

	render.JSON(w, r, SaveHistoryResponse{ID: id})
}

// DeleteConversation removes a conversation with its messages, images and blobs
func (h *ConversationsHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	userID := GetUserIDFromContext(r.Context())
	convID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	deleted, err := h.service.Delete(r.Context(), convID, userID)
	if err != nil || !deleted {
		renderLookupError(w, r, err, "Failed to delete conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func conversationIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	convID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		renderError(w, r, http.StatusBadRequest, "Invalid conversation ID")
		return uuid.Nil, false
	}
	return convID, true
}

func decodeSaveHistory(w http.ResponseWriter, r *http.Request) (SaveHistoryRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageRequestBytes)
	var req SaveHistoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, r, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	return req, true
}

func renderLookupError(w http.ResponseWriter, r *http.Request, err error, message string) {
	if err == nil || errors.Is(err, conversation.ErrNotFound) {
		renderError(w, r, http.StatusNotFound, "Conversation not found")
		return
	}
	logging.LogErrorf(err, "%s", message)
	renderError(w, r, http.StatusInternalServerError, message)
}

func renderSaveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, conversation.ErrNotFound):
		renderError(w, r, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, conversation.ErrInvalidRole):
		renderError(w, r, http.StatusBadRequest, "Invalid history")
	default:
		renderError(w, r, http.StatusInternalServerError, shortenUserError(err))
	}
}
