package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestServer() (*Server, *fakeChatStore) {
	chats := newFakeChatStore()
	s := NewServer(Config{
		Chats:       chats,
		RequestLogs: newFakeRequestLogStore(),
		Hub:         NewWSHub(),
	})
	return s, chats
}

func TestHandleCreateChat(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"llm_provider":"ollama"}`))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
}

func TestHandleCreateChat_EmptyBody(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (empty body tolerated): %s", w.Code, w.Body.String())
	}
}

func TestHandleCreateChat_MalformedBody(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`not json`))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleGetChat(t *testing.T) {
	s, chats := newTestServer()
	chat, _ := chats.CreateChat("")

	req := httptest.NewRequest(http.MethodGet, "/chat/"+strconv.FormatInt(chat.ID, 10), nil)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestHandleGetChat_NotFound(t *testing.T) {
	s, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/chat/999", nil)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestHandleDeleteChat(t *testing.T) {
	s, chats := newTestServer()
	chat, _ := chats.CreateChat("")

	req := httptest.NewRequest(http.MethodDelete, "/chat/"+strconv.FormatInt(chat.ID, 10), nil)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestHandleRenameChat(t *testing.T) {
	s, chats := newTestServer()
	chat, _ := chats.CreateChat("")

	req := httptest.NewRequest(http.MethodPatch, "/chat/"+strconv.FormatInt(chat.ID, 10), strings.NewReader(`{"title":"New Title"}`))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", w.Code, w.Body.String())
	}

	got, _ := chats.GetChat(chat.ID)
	if got.Title == nil || *got.Title != "New Title" {
		t.Errorf("Title = %v, want New Title", got.Title)
	}
}

func TestHandleRenameChat_MissingTitle(t *testing.T) {
	s, chats := newTestServer()
	chat, _ := chats.CreateChat("")

	req := httptest.NewRequest(http.MethodPatch, "/chat/"+strconv.FormatInt(chat.ID, 10), strings.NewReader(`{}`))
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleListChats(t *testing.T) {
	s, chats := newTestServer()
	chats.CreateChat("a")
	chats.CreateChat("b")

	req := httptest.NewRequest(http.MethodGet, "/chat/", nil)
	w := httptest.NewRecorder()

	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestChatIDParam_Invalid(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/chat/not-a-number", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", "not-a-number")
	r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))

	if _, err := chatIDParam(r); err == nil {
		t.Error("expected error for non-numeric id")
	}
}
