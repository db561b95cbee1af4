package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/history"
	"github.com/soyeahso/zueira/internal/logging"
)

// SQLiteHistory keeps each conversation's history as one JSON document per
// row, in the same format and window as history.FileStore.
type SQLiteHistory struct {
	db      *DB
	limit   int
	log     *logging.Logger
	onError history.ErrorHook
}

// NewSQLiteHistory creates a history store over db.
func NewSQLiteHistory(db *DB, limit int, log *logging.Logger) *SQLiteHistory {
	if limit <= 0 {
		limit = history.DefaultLimit
	}
	return &SQLiteHistory{db: db, limit: limit, log: log.Sub("history.sqlite")}
}

// OnError registers a hook for swallowed errors.
func (s *SQLiteHistory) OnError(h history.ErrorHook) {
	s.onError = h
}

// Load returns the most recent messages for the conversation.
func (s *SQLiteHistory) Load(ctx context.Context, conversationID string) []domain.Message {
	var doc string
	err := s.db.sql.QueryRowContext(ctx,
		"SELECT document FROM conversations WHERE id = ?", conversationID,
	).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		s.fail("load", err, conversationID)
		return nil
	}

	msgs, err := history.DecodeDocument([]byte(doc), s.limit, s.log.With("conversation", conversationID))
	if err != nil {
		s.fail("load", err, conversationID)
		return nil
	}
	return msgs
}

// Save replaces the conversation document.
func (s *SQLiteHistory) Save(ctx context.Context, conversationID string, msgs []domain.Message) {
	if conversationID == "" {
		s.fail("save", errors.New("empty conversation id"), conversationID)
		return
	}
	data, err := history.EncodeDocument(msgs, s.limit, s.log.With("conversation", conversationID))
	if err != nil {
		s.fail("save", err, conversationID)
		return
	}

	_, err = s.db.sql.ExecContext(ctx, `
		INSERT INTO conversations (id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at
	`, conversationID, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		s.fail("save", err, conversationID)
	}
}

// Delete removes the conversation. Deleting an unknown id is not an error.
func (s *SQLiteHistory) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.db.sql.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", conversationID); err != nil {
		if s.onError != nil {
			s.onError("delete")
		}
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

// List returns the ids of all stored conversations, sorted.
func (s *SQLiteHistory) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx, "SELECT id FROM conversations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list history: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteHistory) fail(op string, err error, conversationID string) {
	s.log.Error().Err(err).Str("op", op).Str("conversation", conversationID).Msg("history store error")
	if s.onError != nil {
		s.onError(op)
	}
}
