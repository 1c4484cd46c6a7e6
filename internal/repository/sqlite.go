package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/rica/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn and applies migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to an in-memory database is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			stopped_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			turn_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			mode TEXT NOT NULL,
			input_text TEXT NOT NULL,
			raw_audio_ref TEXT,
			agent_id TEXT,
			response_text TEXT NOT NULL,
			outcome TEXT NOT NULL,
			spoken INTEGER NOT NULL DEFAULT 0,
			speech_interrupted INTEGER NOT NULL DEFAULT 0,
			received_at DATETIME NOT NULL,
			routed_at DATETIME,
			responded_at DATETIME,
			error TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, seq)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a session record. Recreating a known session id
// reopens the existing record and keeps its turns.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, mode, created_at) VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET mode = excluded.mode, stopped_at = NULL`,
		session.ID, string(session.Mode), session.CreatedAt)
	return err
}

// LastSeq returns the highest turn sequence stored for a session, zero
// when it has none.
func (s *SQLiteStore) LastSeq(ctx context.Context, sessionID string) (int, error) {
	var seq int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM turns WHERE session_id = ?`, sessionID).Scan(&seq)
	return seq, err
}

// MarkSessionStopped records the time a session stopped.
func (s *SQLiteStore) MarkSessionStopped(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET stopped_at = ? WHERE session_id = ?`, time.Now(), sessionID)
	return err
}

// GetSession returns nil when the session does not exist.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, mode, created_at, stopped_at FROM sessions WHERE session_id = ?`, sessionID)
	rec, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListSessions returns the most recent sessions first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, mode, created_at, stopped_at FROM sessions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*domain.SessionRecord, error) {
	var rec domain.SessionRecord
	var mode string
	var stopped sql.NullTime
	if err := row.Scan(&rec.ID, &mode, &rec.CreatedAt, &stopped); err != nil {
		return nil, err
	}
	rec.Mode = domain.Mode(mode)
	if stopped.Valid {
		t := stopped.Time
		rec.StoppedAt = &t
	}
	return &rec, nil
}

// AppendTurn stores a finalized turn.
func (s *SQLiteStore) AppendTurn(ctx context.Context, turn *domain.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (turn_id, session_id, seq, mode, input_text, raw_audio_ref, agent_id,
			response_text, outcome, spoken, speech_interrupted, received_at, routed_at, responded_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.SessionID, turn.Seq, string(turn.Mode), turn.InputText,
		nullString(turn.RawAudioRef), nullString(turn.SelectedAgentID),
		turn.ResponseText, string(turn.Outcome), turn.Spoken, turn.SpeechInterrupted,
		turn.Timestamps.Received, nullTime(turn.Timestamps.Routed), nullTime(turn.Timestamps.Responded),
		nullString(turn.Error))
	return err
}

// ListTurns returns the last limit turns of a session in order. A limit
// of zero or less returns all turns.
func (s *SQLiteStore) ListTurns(ctx context.Context, sessionID string, limit int) ([]domain.Turn, error) {
	query := `SELECT turn_id, session_id, seq, mode, input_text, raw_audio_ref, agent_id, response_text,
			outcome, spoken, speech_interrupted, received_at, routed_at, responded_at, error
		FROM turns WHERE session_id = ? ORDER BY seq DESC`
	args := []any{sessionID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []domain.Turn
	for rows.Next() {
		var t domain.Turn
		var mode, outcome string
		var audioRef, agentID, errText sql.NullString
		var routed, responded sql.NullTime
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Seq, &mode, &t.InputText, &audioRef, &agentID,
			&t.ResponseText, &outcome, &t.Spoken, &t.SpeechInterrupted, &t.Timestamps.Received,
			&routed, &responded, &errText); err != nil {
			return nil, err
		}
		t.Mode = domain.Mode(mode)
		t.Outcome = domain.Outcome(outcome)
		t.RawAudioRef = audioRef.String
		t.SelectedAgentID = agentID.String
		t.Error = errText.String
		if routed.Valid {
			v := routed.Time
			t.Timestamps.Routed = &v
		}
		if responded.Valid {
			v := responded.Time
			t.Timestamps.Responded = &v
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
