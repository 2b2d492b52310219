package domain

// EvaluationResult is the outcome of scoring one token against thresholds.
// Produced and consumed within one cycle.
type EvaluationResult struct {
	TokenID  string
	Accepted bool
	Score    float64  // fraction of active thresholds satisfied, [0,1]
	Failing  []string // violated threshold names in evaluation order
}
