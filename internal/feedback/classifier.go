// Package feedback detects free-text reactions to the bot's replies and
// attributes them to the run that produced the reply.
package feedback

import (
	"cmp"
	"slices"
	"strings"

	"github.com/soyeahso/zueira/internal/domain"
)

// Result is the outcome of classifying a message.
type Result struct {
	IsFeedback bool
	Polarity   domain.Polarity
}

var positivePatterns = []string{
	"gostei", "adorei", "amei", "boa", "legal", "massa", "show",
	"engraçada", "engraçado", "ótima", "ótimo", "excelente", "top",
	"curtir", "curti", "curtiu", "curtido", "kkk", "haha", "rs", "kkkk",
	"sim", "muito boa", "muito bom",
	"😂", "🤣", "😍", "😄", "👍",
}

var negativePatterns = []string{
	"não gostei", "ruim", "péssima", "péssimo", "horrível", "sem graça",
	"fraca", "fraco", "não curti", "não curtiu", "não curtido", "não deu",
	"não", "não gostou", "não achei", "não foi", "não é", "não está",
	"não tá", "não tem", "não teve",
	"👎", "😞", "😕", "😒",
}

// Classifier matches lowercase substrings against ordered keyword lists.
// Positive patterns are checked before negative ones and, within each list,
// longer patterns before shorter ones.
type Classifier struct {
	positive []string
	negative []string
}

// NewClassifier returns a classifier over the built-in Portuguese keyword
// and emoji lists.
func NewClassifier() *Classifier {
	return NewClassifierWith(positivePatterns, negativePatterns)
}

// NewClassifierWith builds a classifier over custom pattern lists.
func NewClassifierWith(positive, negative []string) *Classifier {
	return &Classifier{
		positive: longestFirst(positive),
		negative: longestFirst(negative),
	}
}

// Classify reports whether text is feedback and its polarity. The first
// matching pattern wins.
func (c *Classifier) Classify(text string) Result {
	lower := strings.ToLower(text)
	if matchAny(lower, c.positive) {
		return Result{IsFeedback: true, Polarity: domain.PolarityPositive}
	}
	if matchAny(lower, c.negative) {
		return Result{IsFeedback: true, Polarity: domain.PolarityNegative}
	}
	return Result{Polarity: domain.PolarityNone}
}

// Patterns returns the ordered positive and negative lists in match order.
func (c *Classifier) Patterns() (positive, negative []string) {
	return slices.Clone(c.positive), slices.Clone(c.negative)
}

func matchAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// longestFirst sorts by descending length in runes, keeping the original
// order for patterns of equal length. Duplicates are dropped.
func longestFirst(patterns []string) []string {
	seen := make(map[string]bool, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return cmp.Compare(len([]rune(b)), len([]rune(a)))
	})
	return out
}
