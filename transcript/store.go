// Package transcript persists the messages of orchestrator runs so a finished
// conversation can be inspected or replayed.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/aschepis/backscratcher/skillloop/llm"
	"github.com/aschepis/backscratcher/skillloop/migrations"
	"github.com/rs/zerolog"

	_ "github.com/mattn/go-sqlite3"
)

// Run summarises a recorded run.
type Run struct {
	ID        string
	CreatedAt time.Time
	Messages  int
}

// Store is an append-only transcript store backed by sqlite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the sqlite database at path and applies migrations.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript database: %w", err)
	}
	if err := migrations.RunMigrations(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewStore(db, logger), nil
}

// NewStore wraps an already migrated database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "transcriptStore").Logger(),
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores msg as message seq of runID. Re-recording an existing
// (runID, seq) pair is ignored so a retried write cannot duplicate a turn.
func (s *Store) Record(ctx context.Context, runID string, seq int, msg llm.Message) error {
	content, err := json.Marshal(msg.Content)
	if err != nil {
		return fmt.Errorf("marshal message content: %w", err)
	}

	now := time.Now().Unix()
	runQuery := sq.Insert("transcript_runs").
		Columns("run_id", "created_at").
		Values(runID, now)
	if err := s.execInsertOrIgnore(ctx, runQuery); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	var toolCallID any
	isError := false
	if result := msg.ToolResult(); result != nil {
		toolCallID = result.ToolCallID
		isError = result.IsError
	}

	msgQuery := sq.Insert("transcript_messages").
		Columns("run_id", "seq", "role", "content", "tool_call_id", "is_error", "created_at").
		Values(runID, seq, string(msg.Role), string(content), toolCallID, isError, now)
	if err := s.execInsertOrIgnore(ctx, msgQuery); err != nil {
		return fmt.Errorf("record message %d: %w", seq, err)
	}

	s.logger.Debug().Str("run_id", runID).Int("seq", seq).Str("role", string(msg.Role)).Msg("Recorded message")
	return nil
}

func (s *Store) execInsertOrIgnore(ctx context.Context, query sq.InsertBuilder) error {
	queryStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	// SQLite requires "OR IGNORE" to come after "INSERT".
	queryStr = strings.Replace(queryStr, "INSERT INTO", "INSERT OR IGNORE INTO", 1)
	_, err = s.db.ExecContext(ctx, queryStr, args...)
	return err
}

// Load returns the messages of runID in recorded order.
func (s *Store) Load(ctx context.Context, runID string) ([]llm.Message, error) {
	query := sq.Select("role", "content").
		From("transcript_messages").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("seq ASC")

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []llm.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg := llm.Message{Role: llm.MessageRole(role)}
		if err := json.Unmarshal([]byte(content), &msg.Content); err != nil {
			return nil, fmt.Errorf("decode message %d of run %s: %w", len(msgs), runID, err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("run %s not found", runID)
	}
	return msgs, nil
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(ctx context.Context, limit uint64) ([]Run, error) {
	query := sq.Select("r.run_id", "r.created_at", "COUNT(m.seq)").
		From("transcript_runs r").
		LeftJoin("transcript_messages m ON m.run_id = r.run_id").
		GroupBy("r.run_id", "r.created_at").
		OrderBy("r.created_at DESC", "r.rowid DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	queryStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, queryStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r         Run
			createdAt int64
		)
		if err := rows.Scan(&r.ID, &createdAt, &r.Messages); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt = time.Unix(createdAt, 0)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
