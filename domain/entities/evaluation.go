package entities

import "fmt"

// PhonemeSequence is one pronunciation of a word as ARPAbet symbols, stress digits included
type PhonemeSequence []string

// WordScore is the comparison of one spoken word against the reference word at the same position
type WordScore struct {
	Index    int     `json:"index" bson:"index"`
	Spoken   string  `json:"spoken" bson:"spoken"`
	Expected string  `json:"expected" bson:"expected"`
	Ratio    float64 `json:"ratio" bson:"ratio"`
	Correct  bool    `json:"correct" bson:"correct"`
}

// Feedback renders the learner-facing line for this word
func (w WordScore) Feedback() string {
	if w.Correct {
		return fmt.Sprintf("Correct: %s", w.Spoken)
	}
	return fmt.Sprintf("Incorrect: %s (expected: %s)", w.Spoken, w.Expected)
}

// EvaluationResult holds per-word scores and their mean
type EvaluationResult struct {
	Words []WordScore `json:"words"`
	Score float64     `json:"score"`
}

// Feedback returns one line per compared word, in order
func (e EvaluationResult) Feedback() []string {
	lines := make([]string, 0, len(e.Words))
	for _, w := range e.Words {
		lines = append(lines, w.Feedback())
	}
	return lines
}

// Percent formats the aggregate score as a percentage with two decimals
func (e EvaluationResult) Percent() string {
	return fmt.Sprintf("%.2f%%", e.Score*100)
}
