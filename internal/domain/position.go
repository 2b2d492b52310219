package domain

// Epsilon absorbs floating point noise when deciding whether a position is open.
const Epsilon = 1e-9

// Position is derived from the trade log; it is never persisted on its own.
type Position struct {
	TokenID     string
	Mode        Mode
	Held        float64 // sum(BUY.filled) - sum(SELL.filled)
	AvgCost     float64 // volume-weighted average BUY price of the open lot
	CostBasis   float64 // Held * AvgCost
	OpenedAt    int64   // timestamp of the BUY that opened the current lot (ms)
	LastTradeAt int64   // timestamp of the latest trade (ms)
	Buys        int     // BUY trades since the lot opened
	Sells       int     // SELL trades since the lot opened
}

// IsOpen reports whether the held amount exceeds Epsilon.
func (p *Position) IsOpen() bool {
	return p.Held > Epsilon
}

// PositionKey identifies a position.
type PositionKey struct {
	TokenID string
	Mode    Mode
}

// Key returns the position key.
func (p *Position) Key() PositionKey {
	return PositionKey{TokenID: p.TokenID, Mode: p.Mode}
}

// PositionState is the supervision state of an open position.
type PositionState string

const (
	PositionOpen    PositionState = "OPEN"
	PositionExiting PositionState = "EXITING"
	PositionClosed  PositionState = "CLOSED"
)
