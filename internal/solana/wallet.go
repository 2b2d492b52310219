package solana

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrTransactionFailed is returned when a signature landed with an on-chain error.
var ErrTransactionFailed = errors.New("transaction failed")

// WalletBalance reads a wallet's SOL balance over RPC.
// It satisfies the ledger's balance source for REAL mode synchronization.
type WalletBalance struct {
	client RPCClient
	pubkey string
}

// NewWalletBalance creates a balance source for the given address.
func NewWalletBalance(client RPCClient, pubkey string) *WalletBalance {
	return &WalletBalance{client: client, pubkey: pubkey}
}

// Balance returns the wallet balance in SOL.
func (w *WalletBalance) Balance(ctx context.Context) (float64, error) {
	lamports, err := w.client.GetBalance(ctx, w.pubkey)
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", w.pubkey, err)
	}
	return LamportsToSOL(lamports), nil
}

// LamportsToSOL converts lamports to SOL without float accumulation error.
func LamportsToSOL(lamports uint64) float64 {
	f, _ := decimal.NewFromInt(int64(lamports)).Shift(-9).Float64()
	return f
}

// PollingConfirmer waits for signatures by polling getSignatureStatuses.
// It is the fallback when no WebSocket endpoint is configured.
type PollingConfirmer struct {
	client   RPCClient
	interval time.Duration
}

// NewPollingConfirmer creates a confirmer polling at the given interval.
func NewPollingConfirmer(client RPCClient, interval time.Duration) *PollingConfirmer {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &PollingConfirmer{client: client, interval: interval}
}

// WaitConfirmed blocks until the signature reaches confirmed commitment,
// fails on chain, or ctx is done.
func (p *PollingConfirmer) WaitConfirmed(ctx context.Context, signature string) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		statuses, err := p.client.GetSignatureStatuses(ctx, []string{signature})
		if err != nil {
			return fmt.Errorf("signature status %s: %w", signature, err)
		}
		if len(statuses) == 1 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %s: %v", ErrTransactionFailed, signature, st.Err)
			}
			if st.Landed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
