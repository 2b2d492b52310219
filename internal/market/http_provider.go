package market

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"solana-trade-agent/internal/domain"
)

// ErrMalformedResponse is returned when a feed body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed market response")

// HTTPProviderOptions configures HTTPProvider.
type HTTPProviderOptions struct {
	BaseURL        string
	CandidatesPath string // default "/tokens"
	PricePath      string // default "/tokens/%s/price"
	APIKey         string // sent as X-API-Key when set
	Timeout        time.Duration
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	HTTPClient     *http.Client
	Logger         *slog.Logger
	Now            func() time.Time
}

// HTTPProvider reads candidates and quotes from a JSON HTTP feed.
// Transport failures and 429/5xx responses are retried with exponential backoff.
type HTTPProvider struct {
	opts   HTTPProviderOptions
	client *http.Client
	logger *slog.Logger
}

// NewHTTPProvider creates a provider for the given feed.
func NewHTTPProvider(opts HTTPProviderOptions) *HTTPProvider {
	if opts.CandidatesPath == "" {
		opts.CandidatesPath = "/tokens"
	}
	if opts.PricePath == "" {
		opts.PricePath = "/tokens/%s/price"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPProvider{
		opts:   opts,
		client: client,
		logger: logger.With("component", "market_http"),
	}
}

// ListCandidates fetches the candidate list.
func (p *HTTPProvider) ListCandidates(ctx context.Context) ([]*domain.TokenRecord, error) {
	body, status, err := p.get(ctx, p.opts.CandidatesPath)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list candidates: unexpected status %d", status)
	}
	recs, err := decodeCandidates(body, p.opts.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return recs, nil
}

// GetCurrentPrice fetches a spot quote. 404 and null prices report ok=false.
func (p *HTTPProvider) GetCurrentPrice(ctx context.Context, tokenID string) (float64, bool, error) {
	path := fmt.Sprintf(p.opts.PricePath, url.PathEscape(tokenID))
	body, status, err := p.get(ctx, path)
	if err != nil {
		return 0, false, fmt.Errorf("price %s: %w", tokenID, err)
	}
	if status == http.StatusNotFound {
		return 0, false, nil
	}
	if status != http.StatusOK {
		return 0, false, fmt.Errorf("price %s: unexpected status %d", tokenID, status)
	}
	price, ok, err := decodePrice(body)
	if err != nil {
		return 0, false, fmt.Errorf("price %s: %w", tokenID, err)
	}
	return price, ok, nil
}

// get performs a GET with retries. It returns the final body and status;
// 4xx responses other than 429 are returned without retry.
func (p *HTTPProvider) get(ctx context.Context, path string) ([]byte, int, error) {
	target := strings.TrimRight(p.opts.BaseURL, "/") + path

	var (
		body   []byte
		status int
	)
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if p.opts.APIKey != "" {
			req.Header.Set("X-API-Key", p.opts.APIKey)
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("retryable status %d", resp.StatusCode)
		}
		body, status = b, resp.StatusCode
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.opts.InitialBackoff
	eb.MaxInterval = p.opts.MaxBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, p.opts.MaxRetries), ctx)

	notify := func(err error, wait time.Duration) {
		p.logger.Debug("market request retry", "path", path, "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, 0, err
	}
	return body, status, nil
}

var _ Provider = (*HTTPProvider)(nil)
