package domain

import "time"

// Polarity is the sentiment of a feedback message.
type Polarity string

const (
	PolarityPositive Polarity = "positive"
	PolarityNegative Polarity = "negative"
	PolarityNone     Polarity = "none"
)

// Score maps a polarity to the numeric rating stored by trace backends:
// 1 for positive, 0 otherwise.
func (p Polarity) Score() int {
	if p == PolarityPositive {
		return 1
	}
	return 0
}

// Feedback is a user reaction attributed to a traced run.
type Feedback struct {
	RunID          string    `json:"runId"`
	ConversationID string    `json:"conversationId"`
	ItemID         string    `json:"itemId,omitempty"`
	Polarity       Polarity  `json:"polarity"`
	Comment        string    `json:"comment"`
	CreatedAt      time.Time `json:"createdAt"`
}
