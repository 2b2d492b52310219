package domain

// Fill is the confirmed result of a submitted buy or sell. Immutable once recorded.
type Fill struct {
	TokenID         string
	Side            Side
	RequestedAmount float64 // token quantity requested
	FilledAmount    float64 // token quantity filled
	FillPrice       float64 // capital units per token
	TxRef           *string // external transaction reference, nil for simulation
	Timestamp       int64   // Unix timestamp in milliseconds
	Mode            Mode
}

// Notional returns filled quantity times fill price.
func (f *Fill) Notional() float64 {
	return f.FilledAmount * f.FillPrice
}

// VenueResult is the raw outcome reported by an execution venue before normalization.
// Venues report heterogeneous shapes; any field may be absent.
type VenueResult struct {
	FilledAmount *float64
	Price        *float64
	InAmount     *float64 // capital spent (buy) or tokens sold (sell)
	OutAmount    *float64 // tokens received (buy) or capital received (sell)
	TxRef        *string
	Status       string // "filled", "partial", "rejected", ... (empty when not reported)
	Message      string // venue error or rejection message
}
