package stub

import (
	"context"
	"errors"
	"sync"

	"solana-trade-agent/internal/solana"
)

// ErrNotFound is returned when an account is not found.
var ErrNotFound = errors.New("not found")

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu       sync.Mutex
	Balances map[string]uint64
	Statuses map[string]*solana.SignatureStatus
	// Err, when set, is returned by every call.
	Err error
	// Calls counts RPC invocations.
	Calls int
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances: make(map[string]uint64),
		Statuses: make(map[string]*solana.SignatureStatus),
	}
}

// SetStatus records the status returned for a signature.
func (c *RPCClient) SetStatus(signature string, st *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = st
}

// GetBalance returns the stored lamport balance.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.Err != nil {
		return 0, c.Err
	}
	bal, ok := c.Balances[pubkey]
	if !ok {
		return 0, ErrNotFound
	}
	return bal, nil
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

var _ solana.RPCClient = (*RPCClient)(nil)
