package domain

import (
	"context"
	"time"
)

// State is the lifecycle state of a sniping session.
type State string

const (
	StateIdle       State = "IDLE"
	StateWatching   State = "WATCHING"
	StateLeg1Filled State = "LEG1_FILLED"
	StateComplete   State = "COMPLETE"
	StateExpired    State = "EXPIRED"
)

// Terminal reports whether no further trading can happen in this state.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateExpired
}

// StopReason explains why a session ended.
type StopReason string

const (
	StopComplete StopReason = "complete"
	StopExpired  StopReason = "expired"
	StopManual   StopReason = "manual"
	StopFailure  StopReason = "failure"
	StopStranded StopReason = "stranded" // round ended with leg1 unhedged
)

// SniperConfig holds the per-session trading parameters. A session keeps
// the copy it was started with; changes only reach the next round.
type SniperConfig struct {
	StakePerLeg   float64       `json:"stake_per_leg"`
	CostCeiling   float64       `json:"cost_ceiling"`
	DropThreshold float64       `json:"drop_threshold"`
	EntryWindow   time.Duration `json:"entry_window"`
	DumpHorizon   time.Duration `json:"dump_horizon"`
	AutoRepeat    bool          `json:"auto_repeat"`
	MinShares     int64         `json:"min_shares"`
	Timeframe     time.Duration `json:"timeframe"`
	TickInterval  time.Duration `json:"tick_interval"`
	OrderTimeout  time.Duration `json:"order_timeout"`
}

// ConfigPatch is a partial SniperConfig update; nil fields are left alone.
type ConfigPatch struct {
	StakePerLeg   *float64       `json:"stake_per_leg,omitempty"`
	CostCeiling   *float64       `json:"cost_ceiling,omitempty"`
	DropThreshold *float64       `json:"drop_threshold,omitempty"`
	EntryWindow   *time.Duration `json:"entry_window,omitempty"`
	DumpHorizon   *time.Duration `json:"dump_horizon,omitempty"`
	AutoRepeat    *bool          `json:"auto_repeat,omitempty"`
}

// Apply returns c with every non-nil field of p applied.
func (p ConfigPatch) Apply(c SniperConfig) SniperConfig {
	if p.StakePerLeg != nil {
		c.StakePerLeg = *p.StakePerLeg
	}
	if p.CostCeiling != nil {
		c.CostCeiling = *p.CostCeiling
	}
	if p.DropThreshold != nil {
		c.DropThreshold = *p.DropThreshold
	}
	if p.EntryWindow != nil {
		c.EntryWindow = *p.EntryWindow
	}
	if p.DumpHorizon != nil {
		c.DumpHorizon = *p.DumpHorizon
	}
	if p.AutoRepeat != nil {
		c.AutoRepeat = *p.AutoRepeat
	}
	return c
}

// PricePoint is one observed price of one side.
type PricePoint struct {
	Price      float64
	ObservedAt time.Time
}

// Leg is one filled buy. Immutable once created.
type Leg struct {
	SessionID string    `json:"session_id"`
	Number    int       `json:"number"`
	Side      string    `json:"side"` // instrument (token) id
	Price     float64   `json:"price"`
	Shares    int64     `json:"shares"`
	FilledAt  time.Time `json:"filled_at"`
	OrderID   string    `json:"order_id"`
}

// Cost is the USD spent on the leg.
func (l Leg) Cost() float64 {
	return l.Price * float64(l.Shares)
}

// Round identifies one instance of a recurring binary market.
type Round struct {
	Slug   string    `json:"slug,omitempty"`
	AssetA string    `json:"asset_a"`
	AssetB string    `json:"asset_b"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Snapshot is a read-only view of the engine, built on every tick.
type Snapshot struct {
	SessionID      string        `json:"session_id,omitempty"`
	State          State         `json:"state"`
	Slug           string        `json:"slug,omitempty"`
	AssetA         string        `json:"asset_a,omitempty"`
	AssetB         string        `json:"asset_b,omitempty"`
	PriceA         float64       `json:"price_a"`
	PriceB         float64       `json:"price_b"`
	PriceSum       float64       `json:"price_sum"`
	Leg1           *Leg          `json:"leg1,omitempty"`
	Leg2           *Leg          `json:"leg2,omitempty"`
	Profit         float64       `json:"profit"`
	ProfitRealized bool          `json:"profit_realized"`
	EntryRemaining time.Duration `json:"entry_remaining"`
	UntilStart     time.Duration `json:"until_start"`
	RoundStart     time.Time     `json:"round_start,omitempty"`
	RoundEnd       time.Time     `json:"round_end,omitempty"`
	NextRoundAt    *time.Time    `json:"next_round_at,omitempty"`
	Stranded       []Leg         `json:"stranded,omitempty"`
	Config         SniperConfig  `json:"config"`
	At             time.Time     `json:"at"`
}

// PriceUpdate is a normalized price event for one instrument.
type PriceUpdate struct {
	AssetID    string    `json:"asset_id"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"ts"`          // venue time
	ReceivedAt time.Time `json:"received_at"` // local time
}

// PriceFeed streams normalized updates for the given instruments until ctx
// is cancelled.
type PriceFeed interface {
	Run(ctx context.Context, assetIDs []string, onUpdate func(PriceUpdate)) error
}

// RoundResolver finds the instruments and boundaries of the round that
// starts at start.
type RoundResolver interface {
	Resolve(ctx context.Context, start time.Time) (Round, error)
}

// Listener receives engine output. Calls are made outside the engine's
// lock and in order.
type Listener interface {
	OnStatus(snap Snapshot)
	OnDumpDetected(side string, drop float64, price float64)
	OnLegFilled(n int, leg Leg)
	OnError(err error)
	OnStopped(sessionID string, reason StopReason)
}
