package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tuxqa/tuxqa/internal/conversation"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id                TEXT PRIMARY KEY,
    profile           TEXT NOT NULL DEFAULT '',
    user_id           TEXT NOT NULL DEFAULT '',
    title             TEXT NOT NULL DEFAULT '',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    tokens_used       INTEGER DEFAULT 0,
    prompt_tokens     INTEGER DEFAULT 0,
    completion_tokens INTEGER DEFAULT 0,
    total_cost        REAL DEFAULT 0,
    turn_count        INTEGER DEFAULT 0,
    turns             TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(sess *Session) error {
	sess.UpdatedAt = time.Now()

	turnsJSON, err := json.Marshal(sess.History)
	if err != nil {
		return fmt.Errorf("marshal turns: %w", err)
	}
	if sess.History == nil {
		turnsJSON = []byte("[]")
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO sessions
			(id, profile, user_id, title, created_at, updated_at, tokens_used,
			 prompt_tokens, completion_tokens, total_cost, turn_count, turns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID,
		sess.Profile,
		sess.User,
		sess.Title(),
		sess.CreatedAt.Format(time.RFC3339Nano),
		sess.UpdatedAt.Format(time.RFC3339Nano),
		sess.TokensUsed,
		sess.PromptTokens,
		sess.CompletionTokens,
		sess.TotalCost,
		len(sess.History),
		string(turnsJSON),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Load reads a session by full ID or by a unique ID prefix (as printed by
// `tuxqa sessions list`).
func (s *SQLiteStore) Load(id string) (*Session, error) {
	fullID, err := s.resolveID(id)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(`
		SELECT id, profile, user_id, created_at, updated_at, tokens_used,
		       prompt_tokens, completion_tokens, total_cost, turns
		FROM sessions WHERE id = ?`, fullID)

	var sess Session
	var createdAt, updatedAt, turnsJSON string
	err = row.Scan(
		&sess.ID, &sess.Profile, &sess.User, &createdAt, &updatedAt,
		&sess.TokensUsed, &sess.PromptTokens, &sess.CompletionTokens,
		&sess.TotalCost, &turnsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	var turns conversation.History
	if err := json.Unmarshal([]byte(turnsJSON), &turns); err != nil {
		return nil, fmt.Errorf("unmarshal turns: %w", err)
	}
	if err := turns.Validate(); err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	if len(turns) > 0 {
		sess.History = turns
	}

	return &sess, nil
}

func (s *SQLiteStore) resolveID(id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("empty session id: %w", ErrNotFound)
	}
	rows, err := s.db.Query(`SELECT id FROM sessions WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return "", fmt.Errorf("resolve session id: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("resolve session id: %w", err)
		}
		if m == id {
			return m, nil
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolve session id: %w", err)
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("session %s: %w", id, ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("session id prefix %q is ambiguous", id)
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *SQLiteStore) List() ([]SessionInfo, error) {
	rows, err := s.db.Query(`
		SELECT id, profile, user_id, title, created_at, updated_at, turn_count, tokens_used, total_cost
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var createdAt, updatedAt string
		if err := rows.Scan(&info.ID, &info.Profile, &info.User, &info.Title,
			&createdAt, &updatedAt, &info.Turns, &info.Tokens, &info.Cost); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		info.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) Delete(id string) error {
	fullID, err := s.resolveID(id)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", fullID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
