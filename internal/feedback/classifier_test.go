package feedback

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/soyeahso/zueira/internal/domain"
)

func TestClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		text string
		want Result
	}{
		{"adorei essa piada!", Result{IsFeedback: true, Polarity: domain.PolarityPositive}},
		{"essa piada foi sem graça", Result{IsFeedback: true, Polarity: domain.PolarityNegative}},
		{"qual é a capital da França?", Result{Polarity: domain.PolarityNone}},
		{"KKKKKKK", Result{IsFeedback: true, Polarity: domain.PolarityPositive}},
		{"Muito Bom", Result{IsFeedback: true, Polarity: domain.PolarityPositive}},
		{"😂😂😂", Result{IsFeedback: true, Polarity: domain.PolarityPositive}},
		{"👎", Result{IsFeedback: true, Polarity: domain.PolarityNegative}},
		{"RUIM DEMAIS", Result{IsFeedback: true, Polarity: domain.PolarityNegative}},
		{"horrível", Result{IsFeedback: true, Polarity: domain.PolarityNegative}},
		{"", Result{Polarity: domain.PolarityNone}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassify_PositiveCheckedFirst(t *testing.T) {
	// "não gostei" contains "gostei" and the positive list is checked first.
	c := NewClassifier()
	assert.Equal(t, domain.PolarityPositive, c.Classify("não gostei").Polarity)
}

func TestClassifier_LongestFirst(t *testing.T) {
	_, negative := NewClassifier().Patterns()
	for i := 1; i < len(negative); i++ {
		assert.GreaterOrEqual(t, len([]rune(negative[i-1])), len([]rune(negative[i])), "%q before %q", negative[i-1], negative[i])
	}
	assert.Equal(t, "não", negative[len(negative)-5])
}

func TestClassifier_StableForEqualLength(t *testing.T) {
	c := NewClassifierWith([]string{"bb", "aa", "c"}, nil)
	pos, _ := c.Patterns()
	assert.Equal(t, []string{"bb", "aa", "c"}, pos)
}

func TestClassifier_DedupesAndLowercases(t *testing.T) {
	c := NewClassifierWith([]string{"Top", "top", ""}, []string{"RUIM"})
	pos, neg := c.Patterns()
	assert.Equal(t, []string{"top"}, pos)
	assert.Equal(t, []string{"ruim"}, neg)
	assert.Equal(t, domain.PolarityNegative, c.Classify("ruim demais").Polarity)
}

func TestClassifier_PatternsReturnsCopy(t *testing.T) {
	c := NewClassifier()
	pos, _ := c.Patterns()
	pos[0] = "mutated"
	again, _ := c.Patterns()
	assert.NotEqual(t, "mutated", again[0])
}
