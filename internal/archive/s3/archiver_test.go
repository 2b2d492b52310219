package s3archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-trade-agent/internal/domain"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func sampleTrades() []*domain.Trade {
	pnl, pct := 1.0, 50.0
	sig := "5sig"
	return []*domain.Trade{
		{Seq: 1, TradeID: "a", TokenID: "X", Side: domain.SideBuy, Mode: domain.ModeReal,
			RequestedAmount: 1, FilledAmount: 1, FillPrice: 2, Notional: 2, TxRef: &sig, Timestamp: 1_000},
		{Seq: 2, TradeID: "b", TokenID: "X", Side: domain.SideSell, Mode: domain.ModeReal,
			FilledAmount: 1, FillPrice: 3, Notional: 3, Timestamp: 2_000,
			ExitReason: domain.ExitReasonTakeProfit, RealizedPnL: &pnl, PercentageChange: &pct},
	}
}

func TestArchiveTrades(t *testing.T) {
	put := &fakePutter{}
	fixed := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	a := NewArchiver(put, "bucket", "/ledger/").WithClock(func() time.Time { return fixed })

	key, err := a.ArchiveTrades(context.Background(), domain.ModeReal, sampleTrades())
	require.NoError(t, err)
	assert.Equal(t, "ledger/real/2026/03/04/trades-1772600767000.jsonl", key)
	assert.Equal(t, "bucket", aws.ToString(put.in.Bucket))
	assert.Equal(t, key, aws.ToString(put.in.Key))
	assert.Equal(t, "*", aws.ToString(put.in.IfNoneMatch))

	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(put.body))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "5sig", lines[0]["tx_ref"])
	assert.NotContains(t, lines[0], "realized_pnl")
	assert.Equal(t, "TAKE_PROFIT", lines[1]["exit_reason"])
	assert.Equal(t, 50.0, lines[1]["percentage_change"])
	assert.Nil(t, lines[1]["tx_ref"])
}

func TestArchiveTrades_EmptyUploadsNothing(t *testing.T) {
	put := &fakePutter{}
	key, err := NewArchiver(put, "bucket", "").ArchiveTrades(context.Background(), domain.ModeSimulated, nil)
	require.NoError(t, err)
	assert.Empty(t, key)
	assert.Nil(t, put.in)
}

func TestArchiveTrades_PutError(t *testing.T) {
	put := &fakePutter{err: errors.New("access denied")}
	_, err := NewArchiver(put, "bucket", "p").ArchiveTrades(context.Background(), domain.ModeReal, sampleTrades())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

// TestArchiveTrades_S3Compatible drives the real SDK client against a
// path-style endpoint.
func TestArchiveTrades_S3Compatible(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []string
		body []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r.Method+" "+r.URL.Path)
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewClient(context.Background(), ClientConfig{
		Endpoint:  srv.URL,
		Region:    "us-east-1",
		Bucket:    "archive",
		AccessKey: "key",
		SecretKey: "secret",
	})
	require.NoError(t, err)

	fixed := time.UnixMilli(1_700_000_000_000).UTC()
	key, err := NewArchiver(client, "archive", "ledger").
		WithClock(func() time.Time { return fixed }).
		ArchiveTrades(context.Background(), domain.ModeReal, sampleTrades())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, "PUT /archive/"+key, got[0])
	assert.Contains(t, string(body), `"trade_id":"a"`)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(context.Background(), ClientConfig{Region: "us-east-1"})
	assert.Error(t, err)
	_, err = NewClient(context.Background(), ClientConfig{Bucket: "b"})
	assert.Error(t, err)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://storage.example.com", normaliseEndpoint("storage.example.com"))
	assert.Equal(t, "http://127.0.0.1:9000", normaliseEndpoint("http://127.0.0.1:9000"))
}
