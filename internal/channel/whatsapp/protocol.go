package whatsapp

import (
	"time"

	"github.com/soyeahso/zueira/internal/domain"
)

const eventMessage = "message"

// event is one frame of the bridge event stream.
type event struct {
	Type      string `json:"type,omitempty"`
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	From      string `json:"from"`
	Body      string `json:"body"`
	HasMedia  bool   `json:"hasMedia"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"timestamp"` // unix seconds
}

func (e event) inbound() domain.InboundMessage {
	ts := time.Now()
	if e.Timestamp > 0 {
		ts = time.Unix(e.Timestamp, 0)
	}
	return domain.InboundMessage{
		ID:             e.ID,
		ChannelID:      ChannelID,
		ConversationID: e.ChatID,
		From:           e.From,
		Text:           e.Body,
		HasAttachment:  e.HasMedia,
		FromMe:         e.FromMe,
		Timestamp:      ts,
	}
}

type sendRequest struct {
	ChatID   string `json:"chatId"`
	Text     string `json:"text"`
	QuotedID string `json:"quotedId,omitempty"`
}

type typingRequest struct {
	ChatID string `json:"chatId"`
}

// HealthStatus is the bridge's /health response.
type HealthStatus struct {
	Status string `json:"status"`
	Ready  bool   `json:"ready"`
	Phone  string `json:"phone,omitempty"`
}
