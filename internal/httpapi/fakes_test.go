package httpapi

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archestra-ai/gateway/internal/domain"
)

// fakeChatStore is an in-memory domain.ChatStore for handler tests.
type fakeChatStore struct {
	mu           sync.Mutex
	chats        map[int64]*domain.Chat
	bySession    map[string]int64
	interactions map[int64][]domain.Interaction
	nextChatID   int64
	nextIntID    int64
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		chats:        make(map[int64]*domain.Chat),
		bySession:    make(map[string]int64),
		interactions: make(map[int64][]domain.Interaction),
	}
}

func (f *fakeChatStore) FindChatBySession(sessionID string) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.bySession[sessionID]
	if !ok {
		return nil, nil
	}
	c := *f.chats[id]
	return &c, nil
}

func (f *fakeChatStore) CreateChat(provider string) (*domain.Chat, error) {
	return f.CreateChatWithSession(uuid.New().String(), provider)
}

func (f *fakeChatStore) CreateChatWithSession(sessionID, provider string) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextChatID++
	c := &domain.Chat{ID: f.nextChatID, SessionID: sessionID, Provider: provider, CreatedAt: time.Now()}
	f.chats[c.ID] = c
	f.bySession[sessionID] = c.ID
	return c, nil
}

func (f *fakeChatStore) AppendInteraction(sessionID string, payload domain.InteractionPayload) (*domain.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.bySession[sessionID]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	raw, _ := json.Marshal(payload)
	f.nextIntID++
	in := domain.Interaction{ID: f.nextIntID, ChatID: id, Payload: raw, CreatedAt: time.Now()}
	f.interactions[id] = append(f.interactions[id], in)
	return &in, nil
}

func (f *fakeChatStore) CountInteractions(sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.bySession[sessionID]
	if !ok {
		return 0, domain.ErrChatNotFound
	}
	return int64(len(f.interactions[id])), nil
}

func (f *fakeChatStore) FirstNInteractions(sessionID string, n int) ([]domain.Interaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.bySession[sessionID]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	all := f.interactions[id]
	if n < len(all) {
		all = all[:n]
	}
	return append([]domain.Interaction(nil), all...), nil
}

func (f *fakeChatStore) SetTitle(chatID int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[chatID]
	if !ok {
		return domain.ErrChatNotFound
	}
	c.Title = &title
	return nil
}

func (f *fakeChatStore) SetGeneratedTitle(chatID int64, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[chatID]
	if !ok {
		return domain.ErrChatNotFound
	}
	if c.Title != nil {
		return nil
	}
	c.Title = &title
	return nil
}

func (f *fakeChatStore) ListChats() ([]domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Chat, 0, len(f.chats))
	for _, c := range f.chats {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeChatStore) GetChat(id int64) (*domain.Chat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeChatStore) DeleteChat(id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chats[id]
	if !ok {
		return domain.ErrChatNotFound
	}
	delete(f.chats, id)
	delete(f.bySession, c.SessionID)
	delete(f.interactions, id)
	return nil
}

// fakeLLMClient is a scriptable domain.LLMClient.
type fakeLLMClient struct {
	mu          sync.Mutex
	streamFunc  func(ctx context.Context, req domain.ChatStreamRequest) (<-chan domain.ChatDelta, error)
	titleFunc   func(ctx context.Context, model, context string) (string, error)
	streamCalls int
}

func (f *fakeLLMClient) ChatStream(ctx context.Context, req domain.ChatStreamRequest) (<-chan domain.ChatDelta, error) {
	f.mu.Lock()
	f.streamCalls++
	f.mu.Unlock()
	return f.streamFunc(ctx, req)
}

func (f *fakeLLMClient) GenerateTitle(ctx context.Context, model, context string) (string, error) {
	if f.titleFunc == nil {
		return "", nil
	}
	return f.titleFunc(ctx, model, context)
}

// fakeToolInvoker is a scriptable domain.ToolInvoker.
type fakeToolInvoker struct {
	forwardFunc func(ctx context.Context, serverName string, body []byte) ([]byte, error)
}

func (f *fakeToolInvoker) Forward(ctx context.Context, serverName string, body []byte) ([]byte, error) {
	return f.forwardFunc(ctx, serverName, body)
}

// fakeRequestLogStore is an in-memory domain.RequestLogStore.
type fakeRequestLogStore struct {
	mu      sync.Mutex
	logs    map[string]domain.RequestLogRecord
	clients map[string]domain.ExternalClient
}

func newFakeRequestLogStore() *fakeRequestLogStore {
	return &fakeRequestLogStore{
		logs:    make(map[string]domain.RequestLogRecord),
		clients: make(map[string]domain.ExternalClient),
	}
}

func (f *fakeRequestLogStore) WriteLog(record domain.RequestLogRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[record.ID] = record
	return nil
}

func (f *fakeRequestLogStore) GetLog(id string) (*domain.RequestLogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.logs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (f *fakeRequestLogStore) ListLogs(limit int) ([]domain.RequestLogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.RequestLogRecord, 0, len(f.logs))
	for _, r := range f.logs {
		out = append(out, r)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRequestLogStore) Stats() (domain.RequestLogStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.RequestLogStats{
		TotalRequests: int64(len(f.logs)),
		ByServer:      map[string]int64{},
		ByStatus:      map[int]int64{},
	}, nil
}

func (f *fakeRequestLogStore) ClearLogs() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = make(map[string]domain.RequestLogRecord)
	return nil
}

func (f *fakeRequestLogStore) UpsertExternalClient(name string, seenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[name] = domain.ExternalClient{Name: name, LastSeenAt: seenAt, Enabled: true}
	return nil
}

func (f *fakeRequestLogStore) ListExternalClients() ([]domain.ExternalClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ExternalClient, 0, len(f.clients))
	for _, c := range f.clients {
		out = append(out, c)
	}
	return out, nil
}
