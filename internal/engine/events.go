package engine

import (
	"time"

	"github.com/google/uuid"

	"solana-trade-agent/internal/domain"
	"solana-trade-agent/internal/executor"
)

// recorder buffers the events of one cycle for a single bulk insert.
type recorder struct {
	cycleID string
	mode    domain.Mode
	now     func() time.Time
	events  []*domain.Event
}

func (r *recorder) add(ev *domain.Event) {
	ev.EventID = uuid.NewString()
	ev.CycleID = r.cycleID
	if ev.Mode == "" {
		ev.Mode = r.mode
	}
	if ev.TimestampMs == 0 {
		ev.TimestampMs = r.now().UnixMilli()
	}
	r.events = append(r.events, ev)
}

func fillEvent(exec *executor.Execution, kind string) *domain.Event {
	f := exec.Fill
	return &domain.Event{
		Kind:        kind,
		TokenID:     f.TokenID,
		Mode:        f.Mode,
		Side:        f.Side,
		Amount:      f.FilledAmount,
		Price:       f.FillPrice,
		TimestampMs: f.Timestamp,
	}
}
