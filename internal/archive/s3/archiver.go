package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"solana-trade-agent/internal/domain"
)

// Putter is the subset of the S3 API the archiver uses.
type Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver writes trade log snapshots. Objects are never overwritten: every
// snapshot gets a key of the form <prefix>/<mode>/YYYY/MM/DD/trades-<unix_ms>.jsonl.
type Archiver struct {
	client Putter
	bucket string
	prefix string
	now    func() time.Time
}

// NewArchiver creates an Archiver.
func NewArchiver(client Putter, bucket, prefix string) *Archiver {
	return &Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic keys.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// tradeLine is the archived JSON form of a trade.
type tradeLine struct {
	Seq              int64    `json:"seq"`
	TradeID          string   `json:"trade_id"`
	TokenID          string   `json:"token_id"`
	Side             string   `json:"side"`
	Mode             string   `json:"mode"`
	RequestedAmount  float64  `json:"requested_amount"`
	FilledAmount     float64  `json:"filled_amount"`
	FillPrice        float64  `json:"fill_price"`
	Notional         float64  `json:"notional"`
	TxRef            *string  `json:"tx_ref"`
	TimestampMs      int64    `json:"timestamp_ms"`
	ExitReason       string   `json:"exit_reason,omitempty"`
	CostBasis        *float64 `json:"cost_basis,omitempty"`
	RealizedPnL      *float64 `json:"realized_pnl,omitempty"`
	ProfitRatio      *float64 `json:"profit_ratio,omitempty"`
	PercentageChange *float64 `json:"percentage_change,omitempty"`
}

// ArchiveTrades uploads trades of mode as one JSONL object and returns its key.
// An empty trade list uploads nothing and returns an empty key.
func (a *Archiver) ArchiveTrades(ctx context.Context, mode domain.Mode, trades []*domain.Trade) (string, error) {
	if len(trades) == 0 {
		return "", nil
	}

	body, err := EncodeJSONL(trades)
	if err != nil {
		return "", err
	}

	now := a.now()
	key := path.Join(a.prefix, strings.ToLower(mode.String()), now.Format("2006/01/02"),
		fmt.Sprintf("trades-%d.jsonl", now.UnixMilli()))

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		return "", fmt.Errorf("s3archive: put object %s: %w", key, err)
	}
	return key, nil
}

// EncodeJSONL serializes trades one JSON object per line.
func EncodeJSONL(trades []*domain.Trade) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, t := range trades {
		line := tradeLine{
			Seq:              t.Seq,
			TradeID:          t.TradeID,
			TokenID:          t.TokenID,
			Side:             t.Side.String(),
			Mode:             t.Mode.String(),
			RequestedAmount:  t.RequestedAmount,
			FilledAmount:     t.FilledAmount,
			FillPrice:        t.FillPrice,
			Notional:         t.Notional,
			TxRef:            t.TxRef,
			TimestampMs:      t.Timestamp,
			ExitReason:       t.ExitReason,
			CostBasis:        t.CostBasis,
			RealizedPnL:      t.RealizedPnL,
			ProfitRatio:      t.ProfitRatio,
			PercentageChange: t.PercentageChange,
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("s3archive: encode trade %s: %w", t.TradeID, err)
		}
	}
	return buf.Bytes(), nil
}
