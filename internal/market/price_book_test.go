package market

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-agent/internal/domain"
)

type fakeQuoter struct {
	price float64
	ok    bool
	err   error
	calls int
}

func (f *fakeQuoter) GetCurrentPrice(context.Context, string) (float64, bool, error) {
	f.calls++
	return f.price, f.ok, f.err
}

type recordingCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (c *recordingCache) SetPrice(_ context.Context, id string, price float64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prices == nil {
		c.prices = map[string]float64{}
	}
	c.prices[id] = price
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestPriceBook_Staleness(t *testing.T) {
	clk := &clock{t: time.Unix(1000, 0)}
	b := NewPriceBook(PriceBookOptions{MaxAge: time.Minute, Now: clk.now})
	ctx := context.Background()

	b.Observe(ctx, "X", 2.0, clk.t)
	q, ok := b.Latest("X")
	require.True(t, ok)
	assert.Equal(t, 2.0, q.Price)

	clk.t = clk.t.Add(61 * time.Second)
	_, ok = b.Latest("X")
	assert.False(t, ok, "quote older than MaxAge must not be served")

	_, ok, err := b.GetCurrentPrice(ctx, "X")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPriceBook_IgnoresInvalidAndOlderQuotes(t *testing.T) {
	clk := &clock{t: time.Unix(1000, 0)}
	b := NewPriceBook(PriceBookOptions{Now: clk.now})
	ctx := context.Background()

	b.Observe(ctx, "X", 0, clk.t)
	b.Observe(ctx, "X", math.NaN(), clk.t)
	_, ok := b.Latest("X")
	assert.False(t, ok)

	b.Observe(ctx, "X", 3.0, clk.t)
	b.Observe(ctx, "X", 1.0, clk.t.Add(-time.Second))
	q, ok := b.Latest("X")
	require.True(t, ok)
	assert.Equal(t, 3.0, q.Price)
}

func TestPriceBook_UpstreamFirstThenFallback(t *testing.T) {
	clk := &clock{t: time.Unix(1000, 0)}
	up := &fakeQuoter{price: 5, ok: true}
	cache := &recordingCache{}
	b := NewPriceBook(PriceBookOptions{Upstream: up, Cache: cache, MaxAge: time.Minute, Now: clk.now})
	ctx := context.Background()

	price, ok, err := b.GetCurrentPrice(ctx, "X")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5.0, price)
	assert.Equal(t, 5.0, cache.prices["X"])

	up.ok, up.err = false, errors.New("feed down")
	clk.t = clk.t.Add(10 * time.Second)
	price, ok, err = b.GetCurrentPrice(ctx, "X")
	require.NoError(t, err)
	require.True(t, ok, "recent cached quote covers an upstream failure")
	assert.Equal(t, 5.0, price)

	clk.t = clk.t.Add(time.Hour)
	_, ok, err = b.GetCurrentPrice(ctx, "X")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestPriceBook_ObserveRecords(t *testing.T) {
	clk := &clock{t: time.UnixMilli(5_000)}
	b := NewPriceBook(PriceBookOptions{Now: clk.now})
	p := 1.25
	b.ObserveRecords(context.Background(), []*domain.TokenRecord{
		{TokenID: "A", PriceUSD: &p, FetchedAt: 4_000},
		{TokenID: "B"},
	})

	q, ok := b.Latest("A")
	require.True(t, ok)
	assert.Equal(t, 1.25, q.Price)
	assert.Equal(t, time.UnixMilli(4_000), q.ObservedAt)
	_, ok = b.Latest("B")
	assert.False(t, ok)
}
