package evaluator

// Threshold is one bound of the closed threshold set. Inactive thresholds are ignored.
type Threshold struct {
	Active bool    `mapstructure:"active" json:"active"`
	Value  float64 `mapstructure:"value" json:"value"`
}

// On returns an active threshold with value v.
func On(v float64) Threshold {
	return Threshold{Active: true, Value: v}
}

// Thresholds is the closed set of named minimums and maximums a token is scored against.
type Thresholds struct {
	MinSafetyScore    Threshold `mapstructure:"min_safety_score" json:"min_safety_score"`
	MinVolume24h      Threshold `mapstructure:"min_volume_24h" json:"min_volume_24h"`
	MinLiquidityUSD   Threshold `mapstructure:"min_liquidity_usd" json:"min_liquidity_usd"`
	MinMarketCap      Threshold `mapstructure:"min_market_cap" json:"min_market_cap"`
	MaxMarketCap      Threshold `mapstructure:"max_market_cap" json:"max_market_cap"`
	MinHolderCount    Threshold `mapstructure:"min_holder_count" json:"min_holder_count"`
	MinPriceChange1h  Threshold `mapstructure:"min_price_change_1h" json:"min_price_change_1h"`
	MaxPriceChange1h  Threshold `mapstructure:"max_price_change_1h" json:"max_price_change_1h"`
	MinPriceChange6h  Threshold `mapstructure:"min_price_change_6h" json:"min_price_change_6h"`
	MaxPriceChange6h  Threshold `mapstructure:"max_price_change_6h" json:"max_price_change_6h"`
	MinPriceChange24h Threshold `mapstructure:"min_price_change_24h" json:"min_price_change_24h"`
	MaxPriceChange24h Threshold `mapstructure:"max_price_change_24h" json:"max_price_change_24h"`

	// MinRiskConfidence applies only when a risk score was produced for the token.
	MinRiskConfidence Threshold `mapstructure:"min_risk_confidence" json:"min_risk_confidence"`
}

// Field names reported in EvaluationResult.Failing.
const (
	FieldSafetyScore    = "safety_score"
	FieldVolume24h      = "volume_24h"
	FieldLiquidityUSD   = "liquidity_usd"
	FieldMarketCap      = "market_cap"
	FieldHolderCount    = "holder_count"
	FieldPriceChange1h  = "price_change_1h"
	FieldPriceChange6h  = "price_change_6h"
	FieldPriceChange24h = "price_change_24h"
	FieldRiskScore      = "risk_score"
)

// Bound is the comparison a criterion applies.
type Bound string

const (
	BoundMin Bound = ">="
	BoundMax Bound = "<="
)

// CriterionResult represents pass/fail for one active threshold.
type CriterionResult struct {
	Name    string  // token field the threshold references
	Bound   Bound   // >= or <=
	Value   float64 // configured threshold value
	Actual  float64 // token value, zero when Missing
	Missing bool    // field absent, NaN or infinite
	Pass    bool
}
