package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *HTTPProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPProvider(HTTPProviderOptions{
		BaseURL:        srv.URL,
		APIKey:         "k",
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Now:            func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	})
}

func TestHTTPProvider_ListCandidates(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("X-API-Key"))
		w.Write([]byte(`{"tokens":[
			{"token_id":"A","symbol":"AAA","price_usd":1.5,"volume_24h":"25000","liquidity_usd":90000,
			 "market_cap":1e6,"holder_count":420,"price_change_1h":3.2,"safety_score":7},
			{"address":"B","price":2,"liquidity_usd":null},
			{"symbol":"no-id"},
			"garbage"
		]}`))
	})

	recs, err := p.ListCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)

	a := recs[0]
	assert.Equal(t, "A", a.TokenID)
	assert.Equal(t, "AAA", a.Symbol)
	require.NotNil(t, a.PriceUSD)
	assert.Equal(t, 1.5, *a.PriceUSD)
	require.NotNil(t, a.Volume24h)
	assert.Equal(t, 25000.0, *a.Volume24h)
	require.NotNil(t, a.HolderCount)
	assert.Equal(t, int64(420), *a.HolderCount)
	assert.Nil(t, a.PriceChange6h)
	assert.Equal(t, int64(1_700_000_000_000), a.FetchedAt)

	b := recs[1]
	assert.Equal(t, "B", b.TokenID)
	require.NotNil(t, b.PriceUSD)
	assert.Equal(t, 2.0, *b.PriceUSD)
	assert.Nil(t, b.LiquidityUSD, "null must decode as missing")
	assert.Nil(t, b.SafetyScore)
}

func TestHTTPProvider_ListCandidates_BareArrayAndNested(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"baseToken":{"address":"C","symbol":"CCC"},"priceUsd":"0.01",
			"liquidity":{"usd":5000},"volume":{"h24":100},"priceChange":{"h1":-4,"h6":1,"h24":12}}]`))
	})

	recs, err := p.ListCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 1)
	c := recs[0]
	assert.Equal(t, "C", c.TokenID)
	assert.Equal(t, "CCC", c.Symbol)
	assert.Equal(t, 0.01, *c.PriceUSD)
	assert.Equal(t, 5000.0, *c.LiquidityUSD)
	assert.Equal(t, 100.0, *c.Volume24h)
	assert.Equal(t, -4.0, *c.PriceChange1h)
	assert.Equal(t, 12.0, *c.PriceChange24h)
}

func TestDecodeCandidates_HolderCountRange(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want *int64
	}{
		{name: "in range", raw: `9000000000000000000`, want: ptrInt64(9_000_000_000_000_000_000)},
		{name: "two to the 63rd", raw: `9223372036854775808`},
		{name: "above int64", raw: `1e19`},
		{name: "string above int64", raw: `"9.3e18"`},
		{name: "negative", raw: `-1`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := decodeCandidates([]byte(`[{"token_id":"A","holder_count":`+tt.raw+`}]`), 0)
			require.NoError(t, err)
			require.Len(t, recs, 1)
			assert.Equal(t, tt.want, recs[0].HolderCount)
		})
	}
}

func ptrInt64(v int64) *int64 { return &v }

func TestHTTPProvider_ListCandidates_Malformed(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"tokens": 5}`))
	})
	_, err := p.ListCandidates(context.Background())
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestHTTPProvider_GetCurrentPrice(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tokens/A/price":
			w.Write([]byte(`{"price": 3.25}`))
		case "/tokens/B/price":
			w.Write([]byte(`1.1`))
		case "/tokens/N/price":
			w.Write([]byte(`{"price": null}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	price, ok, err := p.GetCurrentPrice(ctx, "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3.25, price)

	price, ok, err = p.GetCurrentPrice(ctx, "B")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.1, price)

	_, ok, err = p.GetCurrentPrice(ctx, "N")
	require.NoError(t, err)
	assert.False(t, ok, "null price is unavailable, not zero")

	_, ok, err = p.GetCurrentPrice(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPProvider_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"price": 2}`))
	})

	price, ok, err := p.GetCurrentPrice(context.Background(), "A")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2.0, price)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPProvider_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, _, err := p.GetCurrentPrice(context.Background(), "A")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
