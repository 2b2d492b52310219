package domain

// Mode is the execution mode carried by every fill, trade and position.
type Mode string

const (
	ModeSimulated Mode = "SIMULATED"
	ModeReal      Mode = "REAL"
)

// String returns the string representation of Mode.
func (m Mode) String() string {
	return string(m)
}

// IsValid checks if the mode is a valid value.
func (m Mode) IsValid() bool {
	return m == ModeSimulated || m == ModeReal
}

// Side is the direction of a fill.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// String returns the string representation of Side.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the side is a valid value.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}
