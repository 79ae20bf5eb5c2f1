package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// flexBool unmarshals from a JSON bool or a "true"/"false" string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexStrings unmarshals from a JSON array or from a string holding a
// JSON-encoded array, which is how Gamma returns outcomes and token ids.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return err
	}
	*f = arr
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket is the subset of a Gamma market the round resolver needs.
// Gamma has served both camelCase and snake_case keys over time.
type APIMarket struct {
	ID                string      `json:"id"`
	Question          string      `json:"question"`
	Slug              string      `json:"slug"`
	Active            flexBool    `json:"active"`
	Closed            bool        `json:"closed"`
	Outcomes          flexStrings `json:"outcomes"`
	ClobTokenIDs      flexStrings `json:"clobTokenIds"`
	ClobTokenIDsSnake flexStrings `json:"clob_token_ids"`
	EndDate           string      `json:"endDate"`
	EndDateISO        string      `json:"end_date_iso"`
}

// TokenIDs returns the two outcome tokens in outcome order.
func (m *APIMarket) TokenIDs() []string {
	if len(m.ClobTokenIDs) > 0 {
		return m.ClobTokenIDs
	}
	return m.ClobTokenIDsSnake
}

// End parses the market end time, if present.
func (m *APIMarket) End() (time.Time, bool) {
	for _, s := range []string{m.EndDate, m.EndDateISO} {
		if s == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIOrderResult is the response from POST /order.
type APIOrderResult struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg,omitempty"`
	OrderID      string `json:"orderID,omitempty"`
	Status       string `json:"status,omitempty"`
	MakingAmount string `json:"makingAmount,omitempty"`
	TakingAmount string `json:"takingAmount,omitempty"`
}

// --------------------------------------------------------------------------
// WebSocket DTOs
// --------------------------------------------------------------------------

// WSEvent is one event on the market channel. The venue sends book,
// price_change and last_trade_price events with overlapping fields, so a
// single struct decodes all of them.
type WSEvent struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Timestamp string `json:"timestamp"`

	// book
	Bids []WSPriceLevel `json:"bids"`
	Asks []WSPriceLevel `json:"asks"`

	// legacy price_change and last_trade_price
	Price   string          `json:"price"`
	Side    string          `json:"side"`
	Size    string          `json:"size"`
	Changes []WSPriceChange `json:"changes"`

	// price_change with top of book per asset
	PriceChanges []WSPriceChange `json:"price_changes"`
}

// WSPriceLevel is one bid/ask level.
type WSPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// WSPriceChange is one level update. AssetID is empty in the legacy
// shape, where it lives on the enclosing event.
type WSPriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Side    string `json:"side"`
	Size    string `json:"size"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// marketSubscription is the initial message on the market channel.
type marketSubscription struct {
	AssetIDs []string `json:"assets_ids"`
	Type     string   `json:"type"`
}

// ParseEvents decodes a frame holding one event object or an array of them.
func ParseEvents(raw []byte) ([]WSEvent, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var evs []WSEvent
		if err := json.Unmarshal(raw, &evs); err != nil {
			return nil, err
		}
		return evs, nil
	}
	var ev WSEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	return []WSEvent{ev}, nil
}

// --------------------------------------------------------------------------
// Conversion helpers for wire strings.
// --------------------------------------------------------------------------

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// parseTimestamp accepts unix milliseconds, unix seconds or RFC3339. The
// zero time means the frame carried none.
func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		return time.Unix(n, 0).UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// Quote is the top of book for one asset as carried by a market frame.
// Zero prices mean the side was absent.
type Quote struct {
	AssetID   string
	BestBid   float64
	BestAsk   float64
	Price     float64 // level or trade price, when the frame names one
	Size      float64
	Side      string
	Timestamp time.Time
}

// BookSnapshot reduces a book event to its best bid and ask.
func (e *WSEvent) BookSnapshot() Quote {
	q := Quote{AssetID: e.AssetID, Timestamp: parseTimestamp(e.Timestamp)}
	for _, lvl := range e.Bids {
		if p := parseFloat(lvl.Price); p > q.BestBid && parseFloat(lvl.Size) > 0 {
			q.BestBid = p
		}
	}
	for _, lvl := range e.Asks {
		if p := parseFloat(lvl.Price); p > 0 && parseFloat(lvl.Size) > 0 && (q.BestAsk == 0 || p < q.BestAsk) {
			q.BestAsk = p
		}
	}
	return q
}

// LevelUpdates flattens both price_change shapes (the batched
// "price_changes" and the older per-asset "changes") into quotes.
func (e *WSEvent) LevelUpdates() []Quote {
	ts := parseTimestamp(e.Timestamp)
	changes := append(append([]WSPriceChange(nil), e.PriceChanges...), e.Changes...)
	if len(changes) == 0 && e.Price != "" {
		changes = append(changes, WSPriceChange{Price: e.Price, Side: e.Side, Size: e.Size})
	}
	out := make([]Quote, 0, len(changes))
	for _, c := range changes {
		id := c.AssetID
		if id == "" {
			id = e.AssetID
		}
		out = append(out, Quote{
			AssetID:   id,
			BestBid:   parseFloat(c.BestBid),
			BestAsk:   parseFloat(c.BestAsk),
			Price:     parseFloat(c.Price),
			Size:      parseFloat(c.Size),
			Side:      c.Side,
			Timestamp: ts,
		})
	}
	return out
}

// LastTrade converts a last_trade_price event.
func (e *WSEvent) LastTrade() Quote {
	return Quote{
		AssetID:   e.AssetID,
		Price:     parseFloat(e.Price),
		Size:      parseFloat(e.Size),
		Side:      e.Side,
		Timestamp: parseTimestamp(e.Timestamp),
	}
}
