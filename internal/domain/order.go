package domain

import (
	"context"
	"math/big"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// OrderRequest is what the engine asks the venue to do for one leg.
type OrderRequest struct {
	AssetID string
	Price   float64
	Shares  int64
	Side    OrderSide
	Leg     int    // 1 or 2
	Session string // session id, for logs and journal
}

// OrderResult is the venue's answer to a placed order.
type OrderResult struct {
	OrderID     string
	Status      string
	FilledPrice float64
	PlacedAt    time.Time
}

// OrderPlacer submits a single order. Implementations are treated as
// at-most-once per call.
type OrderPlacer interface {
	Place(ctx context.Context, req OrderRequest) (OrderResult, error)
}

// Order is a signed CLOB order ready to post.
type Order struct {
	TokenID     string
	Wallet      string
	Side        OrderSide
	Type        OrderType
	MakerAmount *big.Int // USDC, 6 decimals
	TakerAmount *big.Int // shares, 6 decimals
	Salt        string
	Signature   string // EIP-712 hex
}
