// Package sqlite provides the embedded persistence layer: chats and their
// interactions, the registered MCP server roster, external client sightings,
// and the proxy request log. WAL mode keeps reads off the single writer.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go driver, no CGO

	"github.com/archestra-ai/gateway/internal/domain"
)

// DB wraps a SQLite connection opened in WAL mode with the gateway's schema
// already migrated.
type DB struct {
	db *sql.DB
}

// Open creates or opens the database at dir/gateway.db, enabling WAL mode,
// foreign keys, and a 5-second busy timeout before running migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "gateway.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // sqlite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error { return d.db.Close() }

// Ping checks database connectivity.
func (d *DB) Ping() error { return d.db.Ping() }

func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT NOT NULL UNIQUE,
			title       TEXT,
			llm_provider TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id    INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			payload    TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_chat ON chat_messages(chat_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS mcp_servers (
			name       TEXT PRIMARY KEY,
			command    TEXT NOT NULL DEFAULT '',
			args       TEXT NOT NULL DEFAULT '[]',
			env        TEXT NOT NULL DEFAULT '{}',
			transport  TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS external_mcp_clients (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT NOT NULL UNIQUE,
			registered_at INTEGER NOT NULL,
			last_seen_at  INTEGER NOT NULL,
			enabled       BOOLEAN NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS mcp_request_logs (
			id               TEXT PRIMARY KEY,
			session_id       TEXT NOT NULL DEFAULT '',
			mcp_session_id   TEXT NOT NULL DEFAULT '',
			server_name      TEXT NOT NULL,
			client_info      TEXT,
			method           TEXT NOT NULL DEFAULT '',
			request_headers  TEXT NOT NULL DEFAULT '{}',
			response_headers TEXT NOT NULL DEFAULT '{}',
			request_body     TEXT NOT NULL DEFAULT '',
			response_body    TEXT NOT NULL DEFAULT '',
			status_code      INTEGER NOT NULL DEFAULT 0,
			error            TEXT NOT NULL DEFAULT '',
			duration_ms      INTEGER NOT NULL DEFAULT 0,
			created_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_logs_server ON mcp_request_logs(server_name, created_at)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Chat persistence (domain.ChatStore) ───────────────────────────────────

// FindChatBySession looks a chat up by its public session id.
func (d *DB) FindChatBySession(sessionID string) (*domain.Chat, error) {
	row := d.db.QueryRow(
		`SELECT id, session_id, title, llm_provider, created_at FROM chats WHERE session_id = ?`,
		sessionID,
	)
	return scanChat(row)
}

// CreateChat inserts a new chat with a freshly generated session id and
// returns the created record.
func (d *DB) CreateChat(provider string) (*domain.Chat, error) {
	return d.CreateChatWithSession(uuid.New().String(), provider)
}

// CreateChatWithSession inserts a new chat under a caller-supplied session
// id, used by the orchestrator to create a chat the first time a client's
// session_id is seen so later turns still resolve via FindChatBySession.
func (d *DB) CreateChatWithSession(sessionID, provider string) (*domain.Chat, error) {
	now := time.Now()
	res, err := d.db.Exec(
		`INSERT INTO chats (session_id, llm_provider, created_at) VALUES (?, ?, ?)`,
		sessionID, provider, now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.Chat{ID: id, SessionID: sessionID, Provider: provider, CreatedAt: now}, nil
}

// AppendInteraction records one turn against the chat identified by
// sessionID. It returns domain.ErrChatNotFound if no chat has that session.
func (d *DB) AppendInteraction(sessionID string, payload domain.InteractionPayload) (*domain.Interaction, error) {
	chat, err := d.FindChatBySession(sessionID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, domain.ErrChatNotFound
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal interaction payload: %w", err)
	}

	now := time.Now()
	res, err := d.db.Exec(
		`INSERT INTO chat_messages (chat_id, payload, created_at) VALUES (?, ?, ?)`,
		chat.ID, string(raw), now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &domain.Interaction{ID: id, ChatID: chat.ID, Payload: raw, CreatedAt: now}, nil
}

// CountInteractions returns how many turns a chat has recorded, used to
// decide when to trigger title generation.
func (d *DB) CountInteractions(sessionID string) (int64, error) {
	chat, err := d.FindChatBySession(sessionID)
	if err != nil {
		return 0, err
	}
	if chat == nil {
		return 0, domain.ErrChatNotFound
	}
	var n int64
	err = d.db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE chat_id = ?`, chat.ID).Scan(&n)
	return n, err
}

// FirstNInteractions returns the earliest n turns of a chat, oldest first,
// used to build the context passed to title generation.
func (d *DB) FirstNInteractions(sessionID string, n int) ([]domain.Interaction, error) {
	chat, err := d.FindChatBySession(sessionID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, domain.ErrChatNotFound
	}

	rows, err := d.db.Query(
		`SELECT id, chat_id, payload, created_at FROM chat_messages
		 WHERE chat_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`,
		chat.ID, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Interaction
	for rows.Next() {
		var in domain.Interaction
		var payload string
		var createdAt int64
		if err := rows.Scan(&in.ID, &in.ChatID, &payload, &createdAt); err != nil {
			return nil, err
		}
		in.Payload = json.RawMessage(payload)
		in.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, in)
	}
	return out, rows.Err()
}

// SetTitle overwrites a chat's title unconditionally, for an explicit
// caller-initiated rename.
func (d *DB) SetTitle(chatID int64, title string) error {
	_, err := d.db.Exec(`UPDATE chats SET title = ? WHERE id = ?`, title, chatID)
	return err
}

// SetGeneratedTitle stamps a chat's auto-generated title, but only the
// first time: the WHERE clause makes the write a one-shot no-op once a
// title already exists, so a second generation round (or a race between
// two) never clobbers a title the caller already renamed.
func (d *DB) SetGeneratedTitle(chatID int64, title string) error {
	_, err := d.db.Exec(`UPDATE chats SET title = ? WHERE id = ? AND title IS NULL`, title, chatID)
	return err
}

// ListChats returns every chat, most recent first.
func (d *DB) ListChats() ([]domain.Chat, error) {
	rows, err := d.db.Query(`SELECT id, session_id, title, llm_provider, created_at FROM chats ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Chat
	for rows.Next() {
		c, err := scanChatRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetChat looks a chat up by numeric id.
func (d *DB) GetChat(id int64) (*domain.Chat, error) {
	row := d.db.QueryRow(`SELECT id, session_id, title, llm_provider, created_at FROM chats WHERE id = ?`, id)
	c, err := scanChat(row)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, domain.ErrChatNotFound
	}
	return c, nil
}

// DeleteChat removes a chat and, via ON DELETE CASCADE, its interactions.
func (d *DB) DeleteChat(id int64) error {
	res, err := d.db.Exec(`DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return domain.ErrChatNotFound
	}
	return nil
}

func scanChat(s scanner) (*domain.Chat, error) {
	var c domain.Chat
	var title sql.NullString
	var createdAt int64
	err := s.Scan(&c.ID, &c.SessionID, &title, &c.Provider, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if title.Valid {
		c.Title = &title.String
	}
	c.CreatedAt = time.Unix(createdAt, 0)
	return &c, nil
}

func scanChatRows(rows *sql.Rows) (*domain.Chat, error) { return scanChat(rows) }

// ─── MCP server roster ──────────────────────────────────────────────────────

// PersistServer upserts a server's spawn configuration into mcp_servers.
// It is informational only: nothing reads the row back to re-create the
// server, and the gateway does not durably queue in-flight requests across
// restarts.
func (d *DB) PersistServer(inst domain.ServerInstance) error {
	args, err := json.Marshal(inst.Args)
	if err != nil {
		return err
	}
	env, err := json.Marshal(inst.Env)
	if err != nil {
		return err
	}
	transport, err := json.Marshal(inst.Transport)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(
		`INSERT INTO mcp_servers (name, command, args, env, transport, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			command=excluded.command, args=excluded.args, env=excluded.env, transport=excluded.transport`,
		inst.Name, inst.Command, string(args), string(env), string(transport), time.Now().Unix(),
	)
	return err
}

// RemoveServer deletes a server's persisted spawn configuration.
func (d *DB) RemoveServer(name string) error {
	_, err := d.db.Exec(`DELETE FROM mcp_servers WHERE name = ?`, name)
	return err
}

// ─── Request log (domain.RequestLogStore) ──────────────────────────────────

// WriteLog appends one immutable proxy request record.
func (d *DB) WriteLog(r domain.RequestLogRecord) error {
	reqHeaders, err := json.Marshal(r.RequestHeaders)
	if err != nil {
		return err
	}
	respHeaders, err := json.Marshal(r.ResponseHeaders)
	if err != nil {
		return err
	}
	var clientInfo sql.NullString
	if r.ClientInfo != nil {
		raw, err := json.Marshal(r.ClientInfo)
		if err != nil {
			return err
		}
		clientInfo = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = d.db.Exec(
		`INSERT INTO mcp_request_logs (
			id, session_id, mcp_session_id, server_name, client_info, method,
			request_headers, response_headers, request_body, response_body,
			status_code, error, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SessionID, r.McpSessionID, r.ServerName, clientInfo, r.Method,
		string(reqHeaders), string(respHeaders), r.RequestBody, r.ResponseBody,
		r.StatusCode, r.Error, r.DurationMs, r.CreatedAt.Unix(),
	)
	return err
}

// GetLog retrieves a single request record by id.
func (d *DB) GetLog(id string) (*domain.RequestLogRecord, error) {
	row := d.db.QueryRow(
		`SELECT id, session_id, mcp_session_id, server_name, client_info, method,
			request_headers, response_headers, request_body, response_body,
			status_code, error, duration_ms, created_at
		 FROM mcp_request_logs WHERE id = ?`, id,
	)
	return scanLog(row)
}

// ListLogs returns the most recent request records, newest first, bounded
// by limit.
func (d *DB) ListLogs(limit int) ([]domain.RequestLogRecord, error) {
	rows, err := d.db.Query(
		`SELECT id, session_id, mcp_session_id, server_name, client_info, method,
			request_headers, response_headers, request_body, response_body,
			status_code, error, duration_ms, created_at
		 FROM mcp_request_logs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RequestLogRecord
	for rows.Next() {
		r, err := scanLogRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ClearLogs deletes every request record.
func (d *DB) ClearLogs() error {
	_, err := d.db.Exec(`DELETE FROM mcp_request_logs`)
	return err
}

// Stats computes the aggregate reported at GET /mcp_request_log/stats. It
// scans durations in Go rather than via SQL percentile functions, which
// modernc.org/sqlite does not provide.
func (d *DB) Stats() (domain.RequestLogStats, error) {
	stats := domain.RequestLogStats{
		ByServer: make(map[string]int64),
		ByStatus: make(map[int]int64),
	}

	rows, err := d.db.Query(`SELECT server_name, status_code, duration_ms FROM mcp_request_logs`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	var durations []int64
	for rows.Next() {
		var server string
		var status int
		var duration int64
		if err := rows.Scan(&server, &status, &duration); err != nil {
			return stats, err
		}
		stats.TotalRequests++
		stats.ByServer[server]++
		stats.ByStatus[status]++
		durations = append(durations, duration)
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	stats.P50DurationMs = percentile(durations, 0.50)
	stats.P99DurationMs = percentile(durations, 0.99)
	return stats, nil
}

func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// UpsertExternalClient records or refreshes a sighting of a caller
// identified via the x-client-name header.
func (d *DB) UpsertExternalClient(name string, seenAt time.Time) error {
	_, err := d.db.Exec(
		`INSERT INTO external_mcp_clients (name, registered_at, last_seen_at, enabled)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT(name) DO UPDATE SET last_seen_at=excluded.last_seen_at`,
		name, seenAt.Unix(), seenAt.Unix(),
	)
	return err
}

// ListExternalClients returns every known external client, most recently
// seen first.
func (d *DB) ListExternalClients() ([]domain.ExternalClient, error) {
	rows, err := d.db.Query(
		`SELECT id, name, registered_at, last_seen_at, enabled FROM external_mcp_clients ORDER BY last_seen_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExternalClient
	for rows.Next() {
		var c domain.ExternalClient
		var registeredAt, lastSeenAt int64
		if err := rows.Scan(&c.ID, &c.Name, &registeredAt, &lastSeenAt, &c.Enabled); err != nil {
			return nil, err
		}
		c.RegisteredAt = time.Unix(registeredAt, 0)
		c.LastSeenAt = time.Unix(lastSeenAt, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanLog(s scanner) (*domain.RequestLogRecord, error) {
	var r domain.RequestLogRecord
	var clientInfo sql.NullString
	var reqHeaders, respHeaders string
	var createdAt int64
	err := s.Scan(&r.ID, &r.SessionID, &r.McpSessionID, &r.ServerName, &clientInfo, &r.Method,
		&reqHeaders, &respHeaders, &r.RequestBody, &r.ResponseBody,
		&r.StatusCode, &r.Error, &r.DurationMs, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(reqHeaders), &r.RequestHeaders)
	_ = json.Unmarshal([]byte(respHeaders), &r.ResponseHeaders)
	if clientInfo.Valid {
		var ci domain.ClientInfo
		if err := json.Unmarshal([]byte(clientInfo.String), &ci); err == nil {
			r.ClientInfo = &ci
		}
	}
	r.CreatedAt = time.Unix(createdAt, 0)
	return &r, nil
}

func scanLogRows(rows *sql.Rows) (*domain.RequestLogRecord, error) { return scanLog(rows) }

// ─── Helpers ────────────────────────────────────────────────────────────────

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
