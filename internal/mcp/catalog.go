package mcp

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/soyeahso/zueira/internal/domain"
)

//go:embed jokes.yaml
var defaultJokes []byte

// Joke is one catalog entry.
type Joke struct {
	ID        string `yaml:"id" json:"id"`
	Topic     string `yaml:"topic" json:"topic"`
	Setup     string `yaml:"setup" json:"setup"`
	Punchline string `yaml:"punchline" json:"punchline"`
}

// Tally counts the feedback received by one joke.
type Tally struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

// Catalog holds the jokes served by the joke server and the feedback they
// received. Safe for concurrent use.
type Catalog struct {
	jokes   []Joke
	byTopic map[string][]int
	byID    map[string]int
	pick    func(n int) int

	mu     sync.Mutex
	tally  map[string]*Tally
	served map[string]int
}

// LoadCatalog parses a YAML document of the form {jokes: [...]}.
func LoadCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Jokes []Joke `yaml:"jokes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse jokes: %w", err)
	}
	if len(doc.Jokes) == 0 {
		return nil, fmt.Errorf("parse jokes: catalog is empty")
	}

	c := &Catalog{
		byTopic: make(map[string][]int),
		byID:    make(map[string]int),
		pick:    rand.IntN,
		tally:   make(map[string]*Tally),
		served:  make(map[string]int),
	}
	for _, j := range doc.Jokes {
		if j.ID == "" {
			return nil, fmt.Errorf("parse jokes: joke %q has no id", j.Setup)
		}
		if _, dup := c.byID[j.ID]; dup {
			return nil, fmt.Errorf("parse jokes: duplicate id %q", j.ID)
		}
		j.Topic = strings.ToLower(strings.TrimSpace(j.Topic))
		c.byID[j.ID] = len(c.jokes)
		c.byTopic[j.Topic] = append(c.byTopic[j.Topic], len(c.jokes))
		c.jokes = append(c.jokes, j)
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := LoadCatalog(defaultJokes)
	if err != nil {
		panic(err)
	}
	return c
}

// Topics returns the known topics, sorted.
func (c *Catalog) Topics() []string {
	topics := make([]string, 0, len(c.byTopic))
	for t := range c.byTopic {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

// Random returns a joke about topic, or about anything when topic is empty
// or unknown.
func (c *Catalog) Random(topic string) Joke {
	idx := c.byTopic[strings.ToLower(strings.TrimSpace(topic))]

	c.mu.Lock()
	defer c.mu.Unlock()

	var j Joke
	if len(idx) > 0 {
		j = c.jokes[idx[c.pick(len(idx))]]
	} else {
		j = c.jokes[c.pick(len(c.jokes))]
	}
	c.served[j.ID]++
	return j
}

// Get returns a joke by id.
func (c *Catalog) Get(id string) (Joke, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Joke{}, false
	}
	return c.jokes[i], true
}

// RecordFeedback adds one vote for a joke.
func (c *Catalog) RecordFeedback(id string, p domain.Polarity) error {
	if _, ok := c.byID[id]; !ok {
		return fmt.Errorf("unknown joke %q", id)
	}
	if p != domain.PolarityPositive && p != domain.PolarityNegative {
		return fmt.Errorf("invalid polarity %q", p)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tally[id]
	if !ok {
		t = &Tally{}
		c.tally[id] = t
	}
	if p == domain.PolarityPositive {
		t.Positive++
	} else {
		t.Negative++
	}
	return nil
}

// Stats returns a copy of the per-joke tallies and serve counts.
func (c *Catalog) Stats() (map[string]Tally, map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tally := make(map[string]Tally, len(c.tally))
	for id, t := range c.tally {
		tally[id] = *t
	}
	served := make(map[string]int, len(c.served))
	for id, n := range c.served {
		served[id] = n
	}
	return tally, served
}
