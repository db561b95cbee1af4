package history

import (
	"encoding/json"
	"fmt"

	"github.com/soyeahso/zueira/internal/domain"
	"github.com/soyeahso/zueira/internal/logging"
)

// DefaultLimit is the number of most recent messages kept per conversation.
const DefaultLimit = 20

// Tail returns the last n messages of msgs. It never copies.
func Tail(msgs []domain.Message, n int) []domain.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// DecodeDocument parses a persisted conversation document and returns its
// most recent limit messages. Entries that fail to parse or carry an unknown
// tag are dropped and logged. A document that is not a JSON array is an error.
func DecodeDocument(data []byte, limit int, log *logging.Logger) ([]domain.Message, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse history document: %w", err)
	}

	msgs := make([]domain.Message, 0, len(entries))
	for i, raw := range entries {
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			log.Warn().Err(err).Int("index", i).Msg("dropping unreadable history entry")
			continue
		}
		msg := Decode(rec)
		if msg.Role == domain.RoleUnknown {
			log.Warn().Int("index", i).Str("tag", rec.Role+rec.Type).Msg("dropping history entry with unknown type")
			continue
		}
		msgs = append(msgs, msg)
	}
	return Tail(msgs, limit), nil
}

// EncodeDocument serializes msgs as a pretty-printed JSON array holding at
// most the limit most recent encodable messages.
func EncodeDocument(msgs []domain.Message, limit int, log *logging.Logger) ([]byte, error) {
	recs := make([]Record, 0, len(msgs))
	for i, m := range msgs {
		rec, ok := Encode(m)
		if !ok {
			log.Warn().Int("index", i).Str("role", string(m.Role)).Msg("dropping message that cannot be serialized")
			continue
		}
		recs = append(recs, rec)
	}
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode history document: %w", err)
	}
	return data, nil
}
