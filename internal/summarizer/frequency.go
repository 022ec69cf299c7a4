// Package summarizer produces short extractive summaries of paper abstracts
// for display next to a conversation.
package summarizer

import (
	"math"
	"sort"
	"strings"

	"paperqa/internal/textproc"
)

const DefaultMaxSentences = 2

// Frequency ranks sentences by the normalised frequency of their content
// words and keeps the best ones in their original order.
type Frequency struct {
	maxSentences int
}

func NewFrequency(maxSentences int) *Frequency {
	if maxSentences <= 0 {
		maxSentences = DefaultMaxSentences
	}
	return &Frequency{maxSentences: maxSentences}
}

// Summarize returns at most maxSentences sentences of text.
func (f *Frequency) Summarize(text string) string {
	sentences := textproc.Sentences(text)
	if len(sentences) <= f.maxSentences {
		return strings.Join(sentences, " ")
	}

	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = textproc.Tokens(sent)
		for _, tok := range tokens[i] {
			if !textproc.IsStopword(tok) {
				freq[tok]++
			}
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i := range sentences {
		s := 0.0
		for _, tok := range tokens[i] {
			s += freq[tok]
		}
		// long sentences would win on raw sums
		if l := float64(len(tokens[i])); l > 0 {
			s /= math.Sqrt(l)
		}
		scores[i] = scored{i, s}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, f.maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}
