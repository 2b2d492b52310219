package domain

// BalanceState is the ledger-owned capital state for one mode.
type BalanceState struct {
	Mode            Mode
	Available       float64 // never negative
	StartingCapital float64 // simulation reset target
	// BaseSeq is the last trade seq already reflected in StartingCapital.
	// Replaying trades with a larger seq from StartingCapital yields Available.
	BaseSeq   int64
	UpdatedAt int64 // Unix timestamp in milliseconds
}
