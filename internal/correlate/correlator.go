// Package correlate remembers, per conversation, the last traced run and the
// last item a tool produced, so later feedback can be attributed to them.
package correlate

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultMaxEntries = 10000
	DefaultTTL        = 24 * time.Hour
)

// Correlator maps conversation ids to their most recent run id and item id.
// Writes are last-write-wins. It is safe for concurrent use.
type Correlator struct {
	runs  *expirable.LRU[string, string]
	items *expirable.LRU[string, string]
}

// New creates a correlator keeping at most maxEntries conversations per map,
// each for at most ttl after its last write. Zero values select the defaults.
func New(maxEntries int, ttl time.Duration) *Correlator {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Correlator{
		runs:  expirable.NewLRU[string, string](maxEntries, nil, ttl),
		items: expirable.NewLRU[string, string](maxEntries, nil, ttl),
	}
}

// RecordRun sets the last run id for the conversation.
func (c *Correlator) RecordRun(conversationID, runID string) {
	c.runs.Add(conversationID, runID)
}

// Run returns the last run id recorded for the conversation.
func (c *Correlator) Run(conversationID string) (string, bool) {
	return c.runs.Get(conversationID)
}

// RecordItem sets the last produced item id for the conversation.
func (c *Correlator) RecordItem(conversationID, itemID string) {
	c.items.Add(conversationID, itemID)
}

// Item returns the last item id recorded for the conversation.
func (c *Correlator) Item(conversationID string) (string, bool) {
	return c.items.Get(conversationID)
}

// Forget drops both records for the conversation.
func (c *Correlator) Forget(conversationID string) {
	c.runs.Remove(conversationID)
	c.items.Remove(conversationID)
}

// Len returns the number of conversations with a recorded run.
func (c *Correlator) Len() int {
	return c.runs.Len()
}
