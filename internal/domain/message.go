package domain

import "time"

// InboundMessage is a message received from a messaging channel.
type InboundMessage struct {
	ID             string    `json:"id"`
	ChannelID      string    `json:"channelId"`
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from,omitempty"`
	Text           string    `json:"text"`
	HasAttachment  bool      `json:"hasAttachment,omitempty"`
	FromMe         bool      `json:"fromMe,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// OutboundMessage is a message to be sent via a channel.
type OutboundMessage struct {
	ChannelID      string `json:"channelId"`
	ConversationID string `json:"conversationId"`
	Text           string `json:"text"`
	ReplyToID      string `json:"replyToId,omitempty"`
}
