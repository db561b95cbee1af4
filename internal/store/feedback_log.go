package store

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/zueira/internal/domain"
)

// FeedbackLog is a local ledger of the feedback users gave on replies.
type FeedbackLog struct {
	db *DB
}

// NewFeedbackLog creates a feedback ledger over db.
func NewFeedbackLog(db *DB) *FeedbackLog {
	return &FeedbackLog{db: db}
}

// RecordFeedback appends one entry.
func (f *FeedbackLog) RecordFeedback(ctx context.Context, fb domain.Feedback) error {
	created := fb.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := f.db.sql.ExecContext(ctx, `
		INSERT INTO feedback (conversation_id, run_id, item_id, polarity, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, fb.ConversationID, fb.RunID, fb.ItemID, string(fb.Polarity), fb.Comment, created.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	return nil
}

// List returns the feedback for a conversation, oldest first. An empty id
// lists everything.
func (f *FeedbackLog) List(ctx context.Context, conversationID string, limit int) ([]domain.Feedback, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT conversation_id, run_id, item_id, polarity, comment, created_at FROM feedback"
	args := []any{}
	if conversationID != "" {
		query += " WHERE conversation_id = ?"
		args = append(args, conversationID)
	}
	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	rows, err := f.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []domain.Feedback
	for rows.Next() {
		var (
			fb       domain.Feedback
			polarity string
			created  string
		)
		if err := rows.Scan(&fb.ConversationID, &fb.RunID, &fb.ItemID, &polarity, &fb.Comment, &created); err != nil {
			return nil, fmt.Errorf("list feedback: %w", err)
		}
		fb.Polarity = domain.Polarity(polarity)
		fb.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, fb)
	}
	return out, rows.Err()
}

// Summary counts feedback by polarity.
func (f *FeedbackLog) Summary(ctx context.Context) (map[domain.Polarity]int, error) {
	rows, err := f.db.sql.QueryContext(ctx, "SELECT polarity, COUNT(*) FROM feedback GROUP BY polarity")
	if err != nil {
		return nil, fmt.Errorf("summarize feedback: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Polarity]int)
	for rows.Next() {
		var (
			p string
			n int
		)
		if err := rows.Scan(&p, &n); err != nil {
			return nil, fmt.Errorf("summarize feedback: %w", err)
		}
		out[domain.Polarity(p)] = n
	}
	return out, rows.Err()
}
