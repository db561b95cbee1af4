package history

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/logging"
)

// Store persists conversation histories. Load and Save never fail: errors
// are logged and degrade to "no history" or a best-effort write.
type Store interface {
	Load(ctx context.Context, conversationID string) []domain.Message
	Save(ctx context.Context, conversationID string, msgs []domain.Message)
}

// Manager adds the operational methods used by the CLI and gateway.
type Manager interface {
	Store
	Delete(ctx context.Context, conversationID string) error
	List(ctx context.Context) ([]string, error)
}

// ErrorHook is called with the failing operation ("load", "save", "delete")
// whenever a store swallows an error.
type ErrorHook func(op string)

const fileExt = ".json"

// FileStore keeps one JSON document per conversation in a directory.
type FileStore struct {
	dir     string
	limit   int
	log     *logging.Logger
	onError ErrorHook
}

// NewFileStore creates a store rooted at dir keeping limit messages per
// conversation. A non-positive limit falls back to DefaultLimit. The
// directory is created on first write.
func NewFileStore(dir string, limit int, log *logging.Logger) *FileStore {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &FileStore{
		dir:   dir,
		limit: limit,
		log:   log.Sub("history"),
	}
}

// OnError registers a hook for swallowed errors.
func (s *FileStore) OnError(h ErrorHook) {
	s.onError = h
}

// Limit returns the history window size.
func (s *FileStore) Limit() int { return s.limit }

// Dir returns the storage directory.
func (s *FileStore) Dir() string { return s.dir }

// Load returns the most recent messages for the conversation.
func (s *FileStore) Load(_ context.Context, conversationID string) []domain.Message {
	path, err := s.pathFor(conversationID)
	if err != nil {
		s.fail("load", err, conversationID)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.log.Debug().Str("conversation", conversationID).Msg("no history file")
			return nil
		}
		s.fail("load", err, conversationID)
		return nil
	}

	msgs, err := DecodeDocument(data, s.limit, s.log.With("conversation", conversationID))
	if err != nil {
		s.fail("load", err, conversationID)
		return nil
	}
	s.log.Debug().Str("conversation", conversationID).Int("messages", len(msgs)).Msg("history loaded")
	return msgs
}

// Save writes the most recent messages for the conversation. The document is
// written to a temporary file and renamed into place, so readers never see a
// partial document.
func (s *FileStore) Save(_ context.Context, conversationID string, msgs []domain.Message) {
	path, err := s.pathFor(conversationID)
	if err != nil {
		s.fail("save", err, conversationID)
		return
	}

	data, err := EncodeDocument(msgs, s.limit, s.log.With("conversation", conversationID))
	if err != nil {
		s.fail("save", err, conversationID)
		return
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		s.fail("save", err, conversationID)
		return
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		s.fail("save", err, conversationID)
		return
	}
	s.log.Debug().Str("conversation", conversationID).Int("messages", len(msgs)).Msg("history saved")
}

// Delete removes the conversation document. Deleting an unknown id is not an error.
func (s *FileStore) Delete(_ context.Context, conversationID string) error {
	path, err := s.pathFor(conversationID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		if s.onError != nil {
			s.onError("delete")
		}
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

// List returns the ids of all stored conversations, sorted.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list history: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// pathFor maps a conversation id to a file inside the store directory.
// Path separators and other unsafe characters are percent-escaped.
func (s *FileStore) pathFor(conversationID string) (string, error) {
	if conversationID == "" {
		return "", errors.New("empty conversation id")
	}
	return filepath.Join(s.dir, url.PathEscape(conversationID)+fileExt), nil
}

func (s *FileStore) fail(op string, err error, conversationID string) {
	s.log.Error().Err(err).Str("op", op).Str("conversation", conversationID).Msg("history store error")
	if s.onError != nil {
		s.onError(op)
	}
}
