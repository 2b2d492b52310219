package domain

// Event kinds recorded for operators.
const (
	EventEvaluationAccepted = "evaluation.accepted"
	EventEvaluationRejected = "evaluation.rejected"
	EventFillRecorded       = "fill.recorded"
	EventFillFailed         = "fill.failed"
	EventExitFired          = "exit.fired"
	EventExitFailed         = "exit.failed"
	EventCycleCompleted     = "cycle.completed"
	EventCycleAborted       = "cycle.aborted"
)

// Event is a structured, append-only record of an engine decision or outcome.
// Corresponds to trade_events table in ClickHouse.
type Event struct {
	EventID     string  // uuid
	CycleID     string  // uuid of the cycle that produced the event
	Kind        string  // one of the Event* constants
	TokenID     string  // empty for cycle-level events
	Mode        Mode    // execution mode in effect
	Side        Side    // set for fill events
	Amount      float64 // quantity for fill events
	Price       float64 // price for fill/exit events
	Score       float64 // evaluation score
	Reason      string  // failing thresholds, exit reason or error text
	TimestampMs int64   // Unix timestamp in milliseconds
}
