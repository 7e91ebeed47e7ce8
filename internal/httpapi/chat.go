package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/archestra-ai/gateway/internal/domain"
)

// Chat CRUD is not part of the orchestrator hot path; it rides directly on
// domain.ChatStore's primitives.

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.ListChats()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Provider string `json:"llm_provider"`
	}
	if err := decodeJSONBody(r, &body); err != nil && !errors.Is(err, io.EOF) {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	chat, err := s.chats.CreateChat(body.Provider)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	id, err := chatIDParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	chat, err := s.chats.GetChat(id)
	if errors.Is(err, domain.ErrChatNotFound) {
		writeJSONError(w, http.StatusNotFound, "chat not found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if chat == nil {
		writeJSONError(w, http.StatusNotFound, "chat not found")
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id, err := chatIDParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	if err := s.chats.DeleteChat(id); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	id, err := chatIDParam(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	var body struct {
		Title string `json:"title"`
	}
	if err := decodeJSONBody(r, &body); err != nil || body.Title == "" {
		writeJSONError(w, http.StatusBadRequest, "title is required")
		return
	}
	if err := s.chats.SetTitle(id, body.Title); err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func chatIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
