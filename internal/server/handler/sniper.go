package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
	"github.com/alanyoungcy/dumpsniper/internal/round"
)

// SniperControl is the part of the engine the HTTP surface drives.
type SniperControl interface {
	Start(ctx context.Context, r domain.Round) error
	Stop(reason domain.StopReason) error
	UpdateConfig(p domain.ConfigPatch) (domain.SniperConfig, error)
	Config() domain.SniperConfig
	Snapshot() domain.Snapshot
}

// SniperHandler serves the /api/sniper endpoints.
type SniperHandler struct {
	ctl      SniperControl
	resolver domain.RoundResolver
	prices   domain.PriceCache
	now      func() time.Time
	logger   *slog.Logger
}

// NewSniperHandler creates a handler. resolver and prices may be nil; without
// a resolver every start request must name its instruments.
func NewSniperHandler(ctl SniperControl, resolver domain.RoundResolver, prices domain.PriceCache, logger *slog.Logger) *SniperHandler {
	return &SniperHandler{
		ctl:      ctl,
		resolver: resolver,
		prices:   prices,
		now:      time.Now,
		logger:   logger.With(slog.String("handler", "sniper")),
	}
}

// Status returns the current snapshot.
// GET /api/sniper/status
func (h *SniperHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctl.Snapshot())
}

type startRequest struct {
	Slug   string    `json:"slug"`
	AssetA string    `json:"asset_a"`
	AssetB string    `json:"asset_b"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Start arms a session. With asset ids the round is taken as given (start
// defaults to now, end to start plus the timeframe); without them the
// round in progress is resolved.
// POST /api/sniper/start
func (h *SniperHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rd, err := h.roundFor(r.Context(), req)
	if err != nil {
		h.writeEngineError(w, "resolve round", err)
		return
	}
	if err := h.ctl.Start(r.Context(), rd); err != nil {
		h.writeEngineError(w, "start", err)
		return
	}
	h.logger.Info("session started over http",
		slog.String("asset_a", rd.AssetA),
		slog.String("asset_b", rd.AssetB),
		slog.Time("round_start", rd.Start),
	)
	writeJSON(w, http.StatusAccepted, h.ctl.Snapshot())
}

func (h *SniperHandler) roundFor(ctx context.Context, req startRequest) (domain.Round, error) {
	tf := h.ctl.Config().Timeframe
	if req.AssetA != "" || req.AssetB != "" {
		start := req.Start
		if start.IsZero() {
			start = h.now()
		}
		end := req.End
		if end.IsZero() {
			end = start.Add(tf)
		}
		return domain.Round{Slug: req.Slug, AssetA: req.AssetA, AssetB: req.AssetB, Start: start, End: end}, nil
	}
	if h.resolver == nil {
		return domain.Round{}, fmt.Errorf("asset_a and asset_b are required: %w", domain.ErrInvalidRound)
	}
	return h.resolver.Resolve(ctx, round.Floor(h.now(), tf))
}

type stopRequest struct {
	Reason domain.StopReason `json:"reason"`
}

// Stop ends the running session. Other stop reasons are the engine's own,
// so a client may only ask for a manual stop.
// POST /api/sniper/stop
func (h *SniperHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = domain.StopManual
	}
	if req.Reason != domain.StopManual {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("reason must be %q, got %q", domain.StopManual, req.Reason))
		return
	}
	if err := h.ctl.Stop(req.Reason); err != nil {
		h.writeEngineError(w, "stop", err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctl.Snapshot())
}

// GetConfig returns the configuration the next round will use.
// GET /api/sniper/config
func (h *SniperHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configView(h.ctl.Config()))
}

type configPatchRequest struct {
	StakePerLeg   *float64 `json:"stake_per_leg"`
	CostCeiling   *float64 `json:"cost_ceiling"`
	DropThreshold *float64 `json:"drop_threshold"`
	EntryWindow   *string  `json:"entry_window"`
	DumpHorizon   *string  `json:"dump_horizon"`
	AutoRepeat    *bool    `json:"auto_repeat"`
}

func (req configPatchRequest) patch() (domain.ConfigPatch, error) {
	p := domain.ConfigPatch{
		StakePerLeg:   req.StakePerLeg,
		CostCeiling:   req.CostCeiling,
		DropThreshold: req.DropThreshold,
		AutoRepeat:    req.AutoRepeat,
	}
	var err error
	if p.EntryWindow, err = parseDurationPtr(req.EntryWindow); err != nil {
		return p, err
	}
	if p.DumpHorizon, err = parseDurationPtr(req.DumpHorizon); err != nil {
		return p, err
	}
	return p, nil
}

func parseDurationPtr(s *string) (*time.Duration, error) {
	if s == nil {
		return nil, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpdateConfig applies a partial update for the next round.
// PUT /api/sniper/config
func (h *SniperHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, err := req.patch()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := h.ctl.UpdateConfig(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, configView(cfg))
}

// Price returns the last mirrored price of an instrument.
// GET /api/prices/{asset}
func (h *SniperHandler) Price(w http.ResponseWriter, r *http.Request) {
	if h.prices == nil {
		writeError(w, http.StatusNotFound, "price cache not configured")
		return
	}
	asset := r.PathValue("asset")
	price, ts, err := h.prices.GetPrice(r.Context(), asset)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no price for asset")
		return
	}
	if err != nil {
		h.logger.Error("get price failed", slog.String("asset", asset), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read price")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"asset_id": asset, "price": price, "ts": ts})
}

func (h *SniperHandler) writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionActive), errors.Is(err, domain.ErrLockHeld), errors.Is(err, domain.ErrNoSession):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidRound):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

// configView renders durations as Go duration strings.
func configView(c domain.SniperConfig) map[string]any {
	return map[string]any{
		"stake_per_leg":  c.StakePerLeg,
		"cost_ceiling":   c.CostCeiling,
		"drop_threshold": c.DropThreshold,
		"entry_window":   c.EntryWindow.String(),
		"dump_horizon":   c.DumpHorizon.String(),
		"auto_repeat":    c.AutoRepeat,
		"min_shares":     c.MinShares,
		"timeframe":      c.Timeframe.String(),
		"tick_interval":  c.TickInterval.String(),
		"order_timeout":  c.OrderTimeout.String(),
	}
}
