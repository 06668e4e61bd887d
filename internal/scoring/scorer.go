// Package scoring compares a spoken sentence with its reference word by word at phoneme level.
package scoring

import (
	"strings"

	"github.com/satriahrh/lafal/domain/entities"
	"github.com/satriahrh/lafal/domain/repositories"
)

// Scorer pairs words by position and rates each pair by phoneme overlap
type Scorer struct {
	dict repositories.PhonemeDictionary
}

// NewScorer creates a scorer backed by the given dictionary
func NewScorer(dict repositories.PhonemeDictionary) *Scorer {
	return &Scorer{dict: dict}
}

// Tokenize lowercases s and splits it on whitespace. Punctuation is kept.
func Tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// PhonemeRatio returns the share of equal phonemes at equal positions, over
// the longer of the two first pronunciations. Unknown words score 0.
func (s *Scorer) PhonemeRatio(reference, spoken string) float64 {
	ref := s.first(reference)
	said := s.first(spoken)
	if len(ref) == 0 || len(said) == 0 {
		return 0
	}

	matches := 0
	for i := 0; i < len(ref) && i < len(said); i++ {
		if ref[i] == said[i] {
			matches++
		}
	}
	return float64(matches) / float64(max(len(ref), len(said)))
}

// Evaluate scores spoken against reference. Words past the shorter sentence are ignored;
// with no pairs the score is 0 and there is no feedback.
func (s *Scorer) Evaluate(reference, spoken string) entities.EvaluationResult {
	refWords := Tokenize(reference)
	spokenWords := Tokenize(spoken)

	n := min(len(refWords), len(spokenWords))
	words := make([]entities.WordScore, 0, n)
	total := 0.0
	for i := 0; i < n; i++ {
		ratio := s.PhonemeRatio(refWords[i], spokenWords[i])
		total += ratio
		words = append(words, entities.WordScore{
			Index:    i,
			Spoken:   spokenWords[i],
			Expected: refWords[i],
			Ratio:    ratio,
			Correct:  ratio == 1.0,
		})
	}

	result := entities.EvaluationResult{Words: words}
	if n > 0 {
		result.Score = total / float64(n)
	}
	return result
}

func (s *Scorer) first(word string) entities.PhonemeSequence {
	seqs := s.dict.Lookup(word)
	if len(seqs) == 0 {
		return nil
	}
	return seqs[0]
}
