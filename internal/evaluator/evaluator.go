// Package evaluator scores token records against operator thresholds.
// Evaluation is pure: no I/O, and identical inputs give identical results.
package evaluator

import (
	"math"

	"solana-trade-agent/internal/domain"
)

type check struct {
	name      string
	threshold Threshold
	bound     Bound
	value     func(t *domain.TokenRecord) (float64, bool)
}

func pointer(get func(t *domain.TokenRecord) *float64) func(t *domain.TokenRecord) (float64, bool) {
	return func(t *domain.TokenRecord) (float64, bool) {
		return domain.Value(get(t))
	}
}

// checks lists the heuristic thresholds in evaluation order.
func checks(th Thresholds) []check {
	return []check{
		{FieldSafetyScore, th.MinSafetyScore, BoundMin, pointer(func(t *domain.TokenRecord) *float64 { return t.SafetyScore })},
		{FieldVolume24h, th.MinVolume24h, BoundMin, pointer(func(t *domain.TokenRecord) *float64 { return t.Volume24h })},
		{FieldLiquidityUSD, th.MinLiquidityUSD, BoundMin, pointer(func(t *domain.TokenRecord) *float64 { return t.LiquidityUSD })},
		{FieldMarketCap, th.MinMarketCap, BoundMin, pointer(func(t *domain.TokenRecord) *float64 { return t.MarketCap })},
		{FieldMarketCap, th.MaxMarketCap, BoundMax, pointer(func(t *domain.TokenRecord) *float64 { return t.MarketCap })},
		{FieldHolderCount, th.MinHolderCount, BoundMin, (*domain.TokenRecord).Holders},
		{FieldPriceChange1h, th.MinPriceChange1h, BoundMin, pointer(func(t *domain.TokenRecord) *float64 { return t.PriceChange1h })},
		{FieldPriceChange1h, th.MaxPriceChange1h, BoundMax, pointer(func(t *domain.TokenRecord) *float64 { return t.PriceChange1h })},
		{FieldPriceChange6h, th.MinPriceChange6h, BoundMin, pointer(func(t *domain.TokenRecord) *float64 { return t.PriceChange6h })},
		{FieldPriceChange6h, th.MaxPriceChange6h, BoundMax, pointer(func(t *domain.TokenRecord) *float64 { return t.PriceChange6h })},
		{FieldPriceChange24h, th.MinPriceChange24h, BoundMin, pointer(func(t *domain.TokenRecord) *float64 { return t.PriceChange24h })},
		{FieldPriceChange24h, th.MaxPriceChange24h, BoundMax, pointer(func(t *domain.TokenRecord) *float64 { return t.PriceChange24h })},
	}
}

// Criteria evaluates every active threshold without short-circuiting.
// A nil riskScore means the scorer was unavailable and the risk threshold is skipped.
func Criteria(token *domain.TokenRecord, th Thresholds, riskScore *float64) []CriterionResult {
	var results []CriterionResult

	for _, c := range checks(th) {
		if !c.threshold.Active {
			continue
		}
		v, ok := c.value(token)
		results = append(results, criterion(c.name, c.bound, c.threshold.Value, v, ok))
	}

	if th.MinRiskConfidence.Active && riskScore != nil {
		v := *riskScore
		ok := !math.IsNaN(v) && !math.IsInf(v, 0)
		results = append(results, criterion(FieldRiskScore, BoundMin, th.MinRiskConfidence.Value, v, ok))
	}

	return results
}

func criterion(name string, bound Bound, threshold, actual float64, ok bool) CriterionResult {
	r := CriterionResult{Name: name, Bound: bound, Value: threshold}
	if !ok {
		// fail closed on malformed data
		r.Missing = true
		return r
	}
	r.Actual = actual
	switch bound {
	case BoundMin:
		r.Pass = actual >= threshold
	case BoundMax:
		r.Pass = actual <= threshold
	}
	return r
}

// Evaluate scores token against th. The token is accepted iff every active
// threshold is satisfied. Failing lists each violated field once, in evaluation order.
// Score is the fraction of active thresholds satisfied (1 when none is active).
func Evaluate(token *domain.TokenRecord, th Thresholds, riskScore *float64) domain.EvaluationResult {
	result := domain.EvaluationResult{TokenID: token.TokenID}

	criteria := Criteria(token, th, riskScore)
	passed := 0
	seen := make(map[string]struct{})
	for _, c := range criteria {
		if c.Pass {
			passed++
			continue
		}
		if _, dup := seen[c.Name]; dup {
			continue
		}
		seen[c.Name] = struct{}{}
		result.Failing = append(result.Failing, c.Name)
	}

	result.Accepted = len(result.Failing) == 0
	result.Score = 1
	if len(criteria) > 0 {
		result.Score = float64(passed) / float64(len(criteria))
	}
	return result
}
