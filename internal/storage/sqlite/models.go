package sqlite

import "solana-trade-agent/internal/domain"

// tradeModel is the gorm row for domain.Trade.
type tradeModel struct {
	Seq              int64    `gorm:"column:seq;primaryKey;autoIncrement"`
	TradeID          string   `gorm:"column:trade_id;uniqueIndex;not null"`
	TokenID          string   `gorm:"column:token_id;index:idx_trades_mode_token;not null"`
	Side             string   `gorm:"column:side;not null"`
	Mode             string   `gorm:"column:mode;index:idx_trades_mode_token;not null"`
	RequestedAmount  float64  `gorm:"column:requested_amount"`
	FilledAmount     float64  `gorm:"column:filled_amount"`
	FillPrice        float64  `gorm:"column:fill_price"`
	Notional         float64  `gorm:"column:notional"`
	TxRef            *string  `gorm:"column:tx_ref"`
	TimestampMs      int64    `gorm:"column:timestamp_ms"`
	ExitReason       string   `gorm:"column:exit_reason"`
	CostBasis        *float64 `gorm:"column:cost_basis"`
	RealizedPnL      *float64 `gorm:"column:realized_pnl"`
	PercentageChange *float64 `gorm:"column:percentage_change"`
	ProfitRatio      *float64 `gorm:"column:profit_ratio"`
}

func (tradeModel) TableName() string { return "trades" }

// balanceModel is the gorm row for domain.BalanceState.
type balanceModel struct {
	Mode            string  `gorm:"column:mode;primaryKey"`
	Available       float64 `gorm:"column:available;check:available >= 0"`
	StartingCapital float64 `gorm:"column:starting_capital"`
	BaseSeq         int64   `gorm:"column:base_seq;not null;default:0"`
	UpdatedAtMs     int64   `gorm:"column:updated_at_ms"`
}

func (balanceModel) TableName() string { return "balances" }

func toTradeModel(t *domain.Trade) *tradeModel {
	return &tradeModel{
		TradeID:          t.TradeID,
		TokenID:          t.TokenID,
		Side:             string(t.Side),
		Mode:             string(t.Mode),
		RequestedAmount:  t.RequestedAmount,
		FilledAmount:     t.FilledAmount,
		FillPrice:        t.FillPrice,
		Notional:         t.Notional,
		TxRef:            t.TxRef,
		TimestampMs:      t.Timestamp,
		ExitReason:       t.ExitReason,
		CostBasis:        t.CostBasis,
		RealizedPnL:      t.RealizedPnL,
		PercentageChange: t.PercentageChange,
		ProfitRatio:      t.ProfitRatio,
	}
}

func (m *tradeModel) toDomain() *domain.Trade {
	return &domain.Trade{
		TradeID:          m.TradeID,
		Seq:              m.Seq,
		TokenID:          m.TokenID,
		Side:             domain.Side(m.Side),
		Mode:             domain.Mode(m.Mode),
		RequestedAmount:  m.RequestedAmount,
		FilledAmount:     m.FilledAmount,
		FillPrice:        m.FillPrice,
		Notional:         m.Notional,
		TxRef:            m.TxRef,
		Timestamp:        m.TimestampMs,
		ExitReason:       m.ExitReason,
		CostBasis:        m.CostBasis,
		RealizedPnL:      m.RealizedPnL,
		PercentageChange: m.PercentageChange,
		ProfitRatio:      m.ProfitRatio,
	}
}

func (m *balanceModel) toDomain() *domain.BalanceState {
	return &domain.BalanceState{
		Mode:            domain.Mode(m.Mode),
		Available:       m.Available,
		StartingCapital: m.StartingCapital,
		BaseSeq:         m.BaseSeq,
		UpdatedAt:       m.UpdatedAtMs,
	}
}
