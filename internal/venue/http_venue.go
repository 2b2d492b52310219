// Package venue submits orders to a live execution venue.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/solana"
)

// Confirmer blocks until a transaction signature is confirmed on chain.
// Implemented by the Solana WebSocket client and the polling confirmer.
type Confirmer interface {
	WaitConfirmed(ctx context.Context, signature string) error
}

// Options configures HTTPVenue.
type Options struct {
	BaseURL    string
	OrderPath  string // default "/orders"
	APIKey     string // sent as Authorization: Bearer
	Timeout    time.Duration
	HTTPClient *http.Client

	// Confirmer, when set, is awaited for every result that carries a signature.
	Confirmer      Confirmer
	ConfirmTimeout time.Duration

	Logger *slog.Logger
}

// HTTPVenue posts orders as JSON and decodes whatever shape the venue returns.
// It does not retry: a repeated order is a repeated trade.
type HTTPVenue struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// New creates an HTTPVenue.
func New(opts Options) *HTTPVenue {
	if opts.OrderPath == "" {
		opts.OrderPath = "/orders"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = 60 * time.Second
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPVenue{opts: opts, client: client, logger: logger.With("component", "venue_http")}
}

type orderRequest struct {
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Amount  float64 `json:"amount"`
}

// SubmitBuy places a buy order for amount tokens.
func (v *HTTPVenue) SubmitBuy(ctx context.Context, tokenID string, amount float64) (*domain.VenueResult, error) {
	return v.submit(ctx, tokenID, domain.SideBuy, amount)
}

// SubmitSell places a sell order for amount tokens.
func (v *HTTPVenue) SubmitSell(ctx context.Context, tokenID string, amount float64) (*domain.VenueResult, error) {
	return v.submit(ctx, tokenID, domain.SideSell, amount)
}

func (v *HTTPVenue) submit(ctx context.Context, tokenID string, side domain.Side, amount float64) (*domain.VenueResult, error) {
	payload, err := json.Marshal(orderRequest{TokenID: tokenID, Side: strings.ToLower(side.String()), Amount: amount})
	if err != nil {
		return nil, fmt.Errorf("marshal order: %w", err)
	}

	target := strings.TrimRight(v.opts.BaseURL, "/") + v.opts.OrderPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.opts.APIKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("venue status %d: %s", resp.StatusCode, truncate(body))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrVenueRejected, resp.StatusCode, truncate(body))
	}

	res, err := decodeResult(body)
	if err != nil {
		return nil, err
	}

	if v.opts.Confirmer != nil && res.TxRef != nil && !isRejected(res.Status) {
		if err := v.confirm(ctx, *res.TxRef); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (v *HTTPVenue) confirm(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, v.opts.ConfirmTimeout)
	defer cancel()

	err := v.opts.Confirmer.WaitConfirmed(ctx, signature)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, solana.ErrTransactionFailed):
		return fmt.Errorf("%w: %v", domain.ErrVenueRejected, err)
	default:
		v.logger.Error("transaction unconfirmed", "signature", signature, "error", err)
		return fmt.Errorf("%w: %s: %v", domain.ErrUnconfirmed, signature, err)
	}
}

func isRejected(status string) bool {
	switch status {
	case "rejected", "failed", "error", "cancelled", "canceled", "expired":
		return true
	}
	return false
}

func truncate(b []byte) string {
	const limit = 256
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
