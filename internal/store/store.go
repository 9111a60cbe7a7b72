// Package store implements the persistence layer for the embedded backend.
//
// It uses SQLite with FTS5 full-text search to store chat sessions,
// messages, agent memory, and configuration for an in-process clawft
// module running without a gateway.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SessionRow is a stored chat session.
type SessionRow struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// MessageRow is one stored chat message.
type MessageRow struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

// MemoryRow is one stored memory entry.
type MemoryRow struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Tags      string `json:"tags"`
	CreatedAt string `json:"created_at"`
}

// MemorySearchRow embeds a MemoryRow with its FTS5 rank score.
// Rank is bm25-based: more negative means a better match.
type MemorySearchRow struct {
	MemoryRow
	Rank float64 `json:"rank"`
}

// Store wraps the embedded SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database under dataDir and runs migrations.
// SQLite is opened with WAL mode and a busy timeout.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "clawft.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			agent_id   TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE INDEX IF NOT EXISTS idx_msg_session ON messages(session_id, created_at);

		CREATE TABLE IF NOT EXISTS memory (
			id         TEXT PRIMARY KEY,
			content    TEXT NOT NULL,
			tags       TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
			content,
			tags,
			content='memory'
		);

		CREATE TABLE IF NOT EXISTS config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS sync triggers, created once.
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='memory_fts_insert'",
	).Scan(&name)
	if err == sql.ErrNoRows {
		_, err = s.db.Exec(`
			CREATE TRIGGER memory_fts_insert AFTER INSERT ON memory BEGIN
				INSERT INTO memory_fts(rowid, content, tags)
				VALUES (new.rowid, new.content, new.tags);
			END;
			CREATE TRIGGER memory_fts_delete AFTER DELETE ON memory BEGIN
				INSERT INTO memory_fts(memory_fts, rowid, content, tags)
				VALUES ('delete', old.rowid, old.content, old.tags);
			END;
		`)
	}
	return err
}

// ─── Sessions ────────────────────────────────────────────────────────────────

// CreateSession inserts a new session and returns it.
func (s *Store) CreateSession(agentID, title string) (SessionRow, error) {
	return s.CreateSessionWithID(uuid.NewString(), agentID, title)
}

// CreateSessionWithID inserts a session under a caller-chosen ID.
func (s *Store) CreateSessionWithID(id, agentID, title string) (SessionRow, error) {
	if _, err := s.db.Exec(
		"INSERT INTO sessions (id, agent_id, title) VALUES (?, ?, ?)",
		id, agentID, title,
	); err != nil {
		return SessionRow{}, fmt.Errorf("create session: %w", err)
	}
	return s.GetSession(id)
}

// GetSession fetches one session by ID.
func (s *Store) GetSession(id string) (SessionRow, error) {
	var row SessionRow
	err := s.db.QueryRow(
		"SELECT id, agent_id, title, created_at, updated_at FROM sessions WHERE id = ?", id,
	).Scan(&row.ID, &row.AgentID, &row.Title, &row.CreatedAt, &row.UpdatedAt)
	if err != nil {
		return SessionRow{}, fmt.Errorf("get session %s: %w", id, err)
	}
	return row, nil
}

// ListSessions returns the most recently updated sessions.
func (s *Store) ListSessions(limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, agent_id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var row SessionRow
		if err := rows.Scan(&row.ID, &row.AgentID, &row.Title, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ─── Messages ────────────────────────────────────────────────────────────────

// AppendMessage appends one message to a session's transcript and bumps the
// session's updated_at.
func (s *Store) AppendMessage(sessionID, role, content string) (MessageRow, error) {
	id := uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return MessageRow{}, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO messages (id, session_id, role, content) VALUES (?, ?, ?, ?)",
		id, sessionID, role, content,
	); err != nil {
		return MessageRow{}, fmt.Errorf("append message: %w", err)
	}
	if _, err := tx.Exec(
		"UPDATE sessions SET updated_at = datetime('now') WHERE id = ?", sessionID,
	); err != nil {
		return MessageRow{}, fmt.Errorf("touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return MessageRow{}, err
	}

	var row MessageRow
	err = s.db.QueryRow(
		"SELECT id, session_id, role, content, created_at FROM messages WHERE id = ?", id,
	).Scan(&row.ID, &row.SessionID, &row.Role, &row.Content, &row.CreatedAt)
	if err != nil {
		return MessageRow{}, fmt.Errorf("read back message: %w", err)
	}
	return row, nil
}

// Messages returns a session's transcript in chronological order.
func (s *Store) Messages(sessionID string, limit int) ([]MessageRow, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.Query(
		"SELECT id, session_id, role, content, created_at FROM messages WHERE session_id = ? ORDER BY created_at, rowid LIMIT ?",
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var row MessageRow
		if err := rows.Scan(&row.ID, &row.SessionID, &row.Role, &row.Content, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ─── Memory ──────────────────────────────────────────────────────────────────

// WriteMemory stores a memory entry.
func (s *Store) WriteMemory(content, tags string) (MemoryRow, error) {
	id := uuid.NewString()
	if _, err := s.db.Exec(
		"INSERT INTO memory (id, content, tags) VALUES (?, ?, ?)",
		id, content, tags,
	); err != nil {
		return MemoryRow{}, fmt.Errorf("write memory: %w", err)
	}

	var row MemoryRow
	err := s.db.QueryRow(
		"SELECT id, content, tags, created_at FROM memory WHERE id = ?", id,
	).Scan(&row.ID, &row.Content, &row.Tags, &row.CreatedAt)
	if err != nil {
		return MemoryRow{}, fmt.Errorf("read back memory: %w", err)
	}
	return row, nil
}

// ListMemory returns the most recent memory entries. No rank is computed:
// listing carries no similarity.
func (s *Store) ListMemory(limit int) ([]MemoryRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		"SELECT id, content, tags, created_at FROM memory ORDER BY created_at DESC LIMIT ?", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list memory: %w", err)
	}
	defer rows.Close()

	var out []MemoryRow
	for rows.Next() {
		var row MemoryRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Tags, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SearchMemory runs an FTS5 search and returns ranked results.
func (s *Store) SearchMemory(query string, limit int) ([]MemorySearchRow, error) {
	if limit <= 0 {
		limit = 10
	}
	match := sanitizeFTS(query)
	if match == "" {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT m.id, m.content, m.tags, m.created_at, fts.rank
		FROM memory_fts fts
		JOIN memory m ON m.rowid = fts.rowid
		WHERE memory_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ?`,
		match, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search memory: %w", err)
	}
	defer rows.Close()

	var out []MemorySearchRow
	for rows.Next() {
		var row MemorySearchRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Tags, &row.CreatedAt, &row.Rank); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ─── Config ──────────────────────────────────────────────────────────────────

// SetConfigValue upserts one configuration key.
func (s *Store) SetConfigValue(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO config (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

// ConfigValues returns all configuration keys.
func (s *Store) ConfigValues() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM config")
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// sanitizeFTS quotes each term so user input cannot inject FTS5 syntax.
// Interior quotes are doubled per the FTS5 string grammar; an all-whitespace
// query yields "".
func sanitizeFTS(query string) string {
	var words []string
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, `"`)
		if w == "" {
			continue
		}
		w = strings.ReplaceAll(w, `"`, `""`)
		words = append(words, `"`+w+`"`)
	}
	return strings.Join(words, " ")
}
