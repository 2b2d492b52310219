package evaluator

import (
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"solana-trade-agent/internal/domain"
)

func f(v float64) *float64 { return &v }
func n(v int64) *int64     { return &v }

func healthyToken() *domain.TokenRecord {
	return &domain.TokenRecord{
		TokenID:        "X",
		PriceUSD:       f(2),
		Volume24h:      f(50_000),
		LiquidityUSD:   f(20_000),
		MarketCap:      f(1_000_000),
		HolderCount:    n(500),
		PriceChange1h:  f(5),
		PriceChange6h:  f(10),
		PriceChange24h: f(20),
		SafetyScore:    f(8),
	}
}

func strictThresholds() Thresholds {
	return Thresholds{
		MinSafetyScore:    On(7),
		MinVolume24h:      On(10_000),
		MinLiquidityUSD:   On(10_000),
		MinMarketCap:      On(100_000),
		MaxMarketCap:      On(10_000_000),
		MinHolderCount:    On(100),
		MinPriceChange1h:  On(0),
		MaxPriceChange1h:  On(50),
		MinPriceChange24h: On(-10),
	}
}

func TestEvaluate_Accepts(t *testing.T) {
	result := Evaluate(healthyToken(), strictThresholds(), nil)

	if !result.Accepted {
		t.Fatalf("expected accept, failing=%v", result.Failing)
	}
	if result.Score != 1 {
		t.Errorf("Score: got %f, want 1", result.Score)
	}
}

func TestEvaluate_MissingLiquidityFailsClosed(t *testing.T) {
	token := healthyToken()
	token.LiquidityUSD = nil

	result := Evaluate(token, strictThresholds(), nil)

	if result.Accepted {
		t.Fatal("expected reject for missing liquidity")
	}
	if !reflect.DeepEqual(result.Failing, []string{FieldLiquidityUSD}) {
		t.Errorf("Failing: got %v, want [liquidity_usd]", result.Failing)
	}
}

func TestEvaluate_NaNFailsClosed(t *testing.T) {
	token := healthyToken()
	token.Volume24h = f(math.NaN())
	token.SafetyScore = f(math.Inf(1))

	result := Evaluate(token, strictThresholds(), nil)

	want := []string{FieldSafetyScore, FieldVolume24h}
	if !reflect.DeepEqual(result.Failing, want) {
		t.Errorf("Failing: got %v, want %v", result.Failing, want)
	}
}

func TestEvaluate_ReportsEveryFailure(t *testing.T) {
	token := healthyToken()
	token.SafetyScore = f(1)
	token.HolderCount = n(3)
	token.PriceChange1h = f(400)
	token.MarketCap = nil

	result := Evaluate(token, strictThresholds(), nil)

	want := []string{FieldSafetyScore, FieldMarketCap, FieldHolderCount, FieldPriceChange1h}
	if !reflect.DeepEqual(result.Failing, want) {
		t.Errorf("Failing: got %v, want %v", result.Failing, want)
	}
	// 9 active criteria, market cap min+max, safety, holders, 1h max fail
	if got, want := result.Score, 4.0/9.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("Score: got %f, want %f", got, want)
	}
}

func TestEvaluate_InactiveThresholdsIgnored(t *testing.T) {
	token := &domain.TokenRecord{TokenID: "bare"}

	result := Evaluate(token, Thresholds{}, nil)
	if !result.Accepted {
		t.Errorf("no active thresholds should accept, failing=%v", result.Failing)
	}
}

func TestEvaluate_RiskScore(t *testing.T) {
	th := strictThresholds()
	th.MinRiskConfidence = On(0.6)

	if r := Evaluate(healthyToken(), th, nil); !r.Accepted {
		t.Errorf("absent risk score must not reject, failing=%v", r.Failing)
	}
	if r := Evaluate(healthyToken(), th, f(0.7)); !r.Accepted {
		t.Errorf("risk 0.7 >= 0.6 should accept, failing=%v", r.Failing)
	}

	r := Evaluate(healthyToken(), th, f(0.4))
	if r.Accepted || !reflect.DeepEqual(r.Failing, []string{FieldRiskScore}) {
		t.Errorf("risk 0.4 should fail risk_score, got %+v", r)
	}

	r = Evaluate(healthyToken(), th, f(math.NaN()))
	if r.Accepted {
		t.Error("NaN risk score should fail closed")
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	token := healthyToken()
	token.HolderCount = nil

	a := Evaluate(token, strictThresholds(), f(0.5))
	b := Evaluate(token, strictThresholds(), f(0.5))
	if !reflect.DeepEqual(a, b) {
		t.Errorf("results differ: %+v vs %+v", a, b)
	}
}

// A ⊆ B with B at least as strict: accept(B) implies accept(A).
func TestEvaluate_ThresholdMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	maybe := func(v float64) *float64 {
		if rng.Intn(8) == 0 {
			return nil
		}
		return f(v)
	}

	for i := 0; i < 2000; i++ {
		token := &domain.TokenRecord{
			TokenID:        "T",
			Volume24h:      maybe(rng.Float64() * 100_000),
			LiquidityUSD:   maybe(rng.Float64() * 50_000),
			MarketCap:      maybe(rng.Float64() * 5_000_000),
			PriceChange1h:  maybe(rng.Float64()*200 - 100),
			PriceChange24h: maybe(rng.Float64()*200 - 100),
			SafetyScore:    maybe(rng.Float64() * 10),
		}

		loose := Thresholds{}
		strict := Thresholds{}

		pick := func(looseT, strictT *Threshold, looseV, tighten float64) {
			strictActive := rng.Intn(2) == 0
			looseActive := strictActive && rng.Intn(2) == 0
			*looseT = Threshold{Active: looseActive, Value: looseV}
			*strictT = Threshold{Active: strictActive, Value: looseV + tighten}
		}
		pick(&loose.MinSafetyScore, &strict.MinSafetyScore, rng.Float64()*10, rng.Float64()*2)
		pick(&loose.MinVolume24h, &strict.MinVolume24h, rng.Float64()*50_000, rng.Float64()*10_000)
		pick(&loose.MinLiquidityUSD, &strict.MinLiquidityUSD, rng.Float64()*20_000, rng.Float64()*5_000)
		pick(&loose.MaxMarketCap, &strict.MaxMarketCap, rng.Float64()*5_000_000, -rng.Float64()*1_000_000)
		pick(&loose.MinPriceChange1h, &strict.MinPriceChange1h, rng.Float64()*100-50, rng.Float64()*10)
		pick(&loose.MaxPriceChange24h, &strict.MaxPriceChange24h, rng.Float64()*100, -rng.Float64()*20)

		if Evaluate(token, strict, nil).Accepted && !Evaluate(token, loose, nil).Accepted {
			t.Fatalf("monotonicity violated for token %+v\nloose=%+v\nstrict=%+v", token, loose, strict)
		}
	}
}

func TestRenderMarkdown(t *testing.T) {
	token := healthyToken()
	token.LiquidityUSD = nil
	th := strictThresholds()

	md := RenderMarkdown(Evaluate(token, th, nil), Criteria(token, th, nil))

	for _, want := range []string{"# Evaluation: X", "REJECTED", "| liquidity_usd | >= 10000.0000 | missing | FAIL |", "Failing: liquidity_usd"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
}
