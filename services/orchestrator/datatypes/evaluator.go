package datatypes

import "fmt"

// EvalScores holds the judge scores for one answered question. Scores are
// on a 0-1 scale.
type EvalScores struct {
	ContextRelevance float64 `json:"context_relevance"`
	Groundedness     float64 `json:"groundedness"`
	AnswerRelevance  float64 `json:"answer_relevance"`
}

// String renders the scores in the [EVAL] event wire format.
func (s EvalScores) String() string {
	return fmt.Sprintf("Context Relevance: %.2f, Groundedness: %.2f, Answer Relevance: %.2f",
		s.ContextRelevance, s.Groundedness, s.AnswerRelevance)
}

// AnswerResult is a finished answer split into its display body and the
// trailing cited-source list. Body never contains the SOURCES: delimiter
// or anything after it.
type AnswerResult struct {
	Body         string
	CitedSources string
	HasSources   bool
}
