package solana

import "context"

// WSClient defines the Solana WebSocket subscriptions the agent uses.
type WSClient interface {
	// SubscribeSignature waits for a transaction signature to reach confirmed
	// commitment. The channel yields exactly one notification and is then closed.
	SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification is the single message of a signature subscription.
type SignatureNotification struct {
	Signature string
	Slot      int64
	Err       interface{} // non-nil when the transaction failed on chain
}

// Failed reports whether the transaction landed with an error.
func (n SignatureNotification) Failed() bool {
	return n.Err != nil
}
