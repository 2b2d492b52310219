package market

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"solana-trade-agent/internal/domain"
)

// Accepted spellings for each token field, first match wins.
var (
	idKeys          = []string{"token_id", "address", "mint", "id", "baseToken.address"}
	symbolKeys      = []string{"symbol", "baseToken.symbol"}
	priceKeys       = []string{"price_usd", "priceUsd", "price"}
	volumeKeys      = []string{"volume_24h", "volume24h", "volume.h24"}
	liquidityKeys   = []string{"liquidity_usd", "liquidityUsd", "liquidity.usd"}
	marketCapKeys   = []string{"market_cap", "marketCap", "fdv"}
	holderKeys      = []string{"holder_count", "holders"}
	change1hKeys    = []string{"price_change_1h", "priceChange.h1"}
	change6hKeys    = []string{"price_change_6h", "priceChange.h6"}
	change24hKeys   = []string{"price_change_24h", "priceChange.h24"}
	safetyScoreKeys = []string{"safety_score", "safetyScore"}
)

// decodeCandidates parses a candidate list. The body is either an array of
// token objects or an object holding one under "tokens", "data" or "pairs".
func decodeCandidates(body []byte, fetchedAtMs int64) ([]*domain.TokenRecord, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	root := gjson.ParseBytes(body)
	list := root
	if root.IsObject() {
		list = gjson.Result{}
		for _, k := range []string{"tokens", "data", "pairs"} {
			if v := root.Get(k); v.IsArray() {
				list = v
				break
			}
		}
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: no candidate array", ErrMalformedResponse)
	}

	var out []*domain.TokenRecord
	for _, item := range list.Array() {
		rec, ok := decodeToken(item, fetchedAtMs)
		if !ok {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// decodeToken maps one token object. Absent or non-numeric fields stay nil.
// Records without an id are dropped.
func decodeToken(item gjson.Result, fetchedAtMs int64) (*domain.TokenRecord, bool) {
	if !item.IsObject() {
		return nil, false
	}
	id := strings.TrimSpace(first(item, idKeys).String())
	if id == "" {
		return nil, false
	}

	rec := &domain.TokenRecord{
		TokenID:        id,
		Symbol:         first(item, symbolKeys).String(),
		PriceUSD:       number(first(item, priceKeys)),
		Volume24h:      number(first(item, volumeKeys)),
		LiquidityUSD:   number(first(item, liquidityKeys)),
		MarketCap:      number(first(item, marketCapKeys)),
		PriceChange1h:  number(first(item, change1hKeys)),
		PriceChange6h:  number(first(item, change6hKeys)),
		PriceChange24h: number(first(item, change24hKeys)),
		SafetyScore:    number(first(item, safetyScoreKeys)),
		FetchedAt:      fetchedAtMs,
	}
	if h := number(first(item, holderKeys)); h != nil && *h >= 0 && *h < math.MaxInt64 {
		n := int64(*h)
		rec.HolderCount = &n
	}
	return rec, true
}

func first(item gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if v := item.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}

// number accepts JSON numbers and numeric strings; anything else is nil.
func number(v gjson.Result) *float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Float()
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

// decodePrice parses a quote: a bare number, or an object with "price".
// A null or missing price means no quote.
func decodePrice(body []byte) (float64, bool, error) {
	if !gjson.ValidBytes(body) {
		return 0, false, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}
	root := gjson.ParseBytes(body)
	v := root
	if root.IsObject() {
		v = first(root, priceKeys)
	}
	p := number(v)
	if p == nil {
		return 0, false, nil
	}
	if math.IsNaN(*p) || math.IsInf(*p, 0) || *p <= 0 {
		return 0, false, nil
	}
	return *p, true, nil
}
