// Package risk estimates the success probability of a token entry.
package risk

import (
	"math"

	"solana-trade-agent/internal/domain"
)

// Scorer returns a success-probability estimate in [0,1].
// ok is false when no estimate can be produced for the token; that is not an error.
type Scorer interface {
	Score(token *domain.TokenRecord) (score float64, ok bool)
}

// Weights of the heuristic logistic model.
type Weights struct {
	Bias       float64
	Safety     float64 // per safety-score point above 5
	Liquidity  float64 // per log10(liquidity_usd) above 4
	Turnover   float64 // per unit of volume_24h / liquidity_usd, capped at 5
	Holders    float64 // per log10(holder_count) above 2
	Momentum1h float64 // per 10% of 1h price change, capped at ±5
}

// DefaultWeights favours safe, liquid tokens with moderate momentum.
var DefaultWeights = Weights{
	Bias:       -0.2,
	Safety:     0.45,
	Liquidity:  0.8,
	Turnover:   0.25,
	Holders:    0.35,
	Momentum1h: 0.15,
}

// HeuristicScorer is a logistic blend of market attributes.
// It needs safety score and liquidity; the other inputs contribute when present.
type HeuristicScorer struct {
	Weights Weights
}

// NewHeuristicScorer creates a scorer with DefaultWeights.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{Weights: DefaultWeights}
}

// Score implements Scorer.
func (s *HeuristicScorer) Score(token *domain.TokenRecord) (float64, bool) {
	safety, ok := domain.Value(token.SafetyScore)
	if !ok {
		return 0, false
	}
	liquidity, ok := domain.Value(token.LiquidityUSD)
	if !ok || liquidity <= 0 {
		return 0, false
	}

	w := s.Weights
	z := w.Bias
	z += w.Safety * (safety - 5)
	z += w.Liquidity * (math.Log10(liquidity) - 4)

	if volume, ok := domain.Value(token.Volume24h); ok && volume >= 0 {
		z += w.Turnover * math.Min(volume/liquidity, 5)
	}
	if holders, ok := token.Holders(); ok && holders > 0 {
		z += w.Holders * (math.Log10(holders) - 2)
	}
	if change, ok := domain.Value(token.PriceChange1h); ok {
		z += w.Momentum1h * clamp(change/10, -5, 5)
	}

	return 1 / (1 + math.Exp(-z)), true
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

var _ Scorer = (*HeuristicScorer)(nil)
