package polymarket

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/dumpsniper/internal/crypto"
	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

var (
	usdcUnit  = decimal.New(1, 6)
	one       = decimal.NewFromInt(1)
	saltLimit = new(big.Int).Lsh(big.NewInt(1), 53)
)

// ClobClient places signed fill-or-kill orders on the Polymarket CLOB
// ("https://clob.polymarket.com") and implements domain.OrderPlacer.
type ClobClient struct {
	base   string
	http   *http.Client
	signer *crypto.Signer

	mu    sync.Mutex
	creds *crypto.APICreds
}

// NewClobClient creates a CLOB client. With nil creds the L2 API key is
// derived from the signer on the first order.
func NewClobClient(baseURL string, signer *crypto.Signer, creds *crypto.APICreds) *ClobClient {
	return &ClobClient{
		base:   strings.TrimRight(baseURL, "/"),
		http:   &http.Client{Timeout: 30 * time.Second},
		signer: signer,
		creds:  creds,
	}
}

// wireOrder is the JSON shape of a signed order in POST /order.
type wireOrder struct {
	Salt          int64  `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

type postOrder struct {
	Order     wireOrder `json:"order"`
	Owner     string    `json:"owner"`
	OrderType string    `json:"orderType"`
}

// Place signs and posts one FOK order for req. A venue-side refusal is
// domain.ErrOrderRejected.
func (c *ClobClient) Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return domain.OrderResult{}, err
	}
	o, err := c.BuildOrder(req, domain.OrderTypeFOK)
	if err != nil {
		return domain.OrderResult{}, err
	}
	salt, _ := strconv.ParseInt(o.Salt, 10, 64)
	payload, err := json.Marshal(postOrder{
		Order: wireOrder{
			Salt:        salt,
			Maker:       o.Wallet,
			Signer:      o.Wallet,
			Taker:       common.Address{}.Hex(),
			TokenID:     o.TokenID,
			MakerAmount: o.MakerAmount.String(),
			TakerAmount: o.TakerAmount.String(),
			Expiration:  "0",
			Nonce:       "0",
			FeeRateBps:  "0",
			Side:        string(o.Side),
			Signature:   o.Signature,
		},
		Owner:     creds.Key,
		OrderType: string(o.Type),
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: encode order: %w", err)
	}

	body, err := c.signed(ctx, creds, http.MethodPost, "/order", payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}
	var res APIOrderResult
	if err := json.Unmarshal(body, &res); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	if !res.Success {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: %w: %s", domain.ErrOrderRejected, res.ErrorMsg)
	}
	return domain.OrderResult{
		OrderID:     res.OrderID,
		Status:      res.Status,
		FilledPrice: fillPrice(res, req),
		PlacedAt:    time.Now(),
	}, nil
}

// fillPrice is making/taking when the venue reports matched amounts and
// the ratio is a valid price, else the requested limit.
func fillPrice(res APIOrderResult, req domain.OrderRequest) float64 {
	making, err1 := decimal.NewFromString(res.MakingAmount)
	taking, err2 := decimal.NewFromString(res.TakingAmount)
	if err1 != nil || err2 != nil || !taking.IsPositive() {
		return req.Price
	}
	if p, _ := making.Div(taking).Float64(); p > 0 && p < 1 {
		return p
	}
	return req.Price
}

// BuildOrder converts req into a signed order. A BUY pays price*shares
// USDC for shares outcome tokens, both in 6-decimal base units; a SELL
// swaps the two amounts.
func (c *ClobClient) BuildOrder(req domain.OrderRequest, kind domain.OrderType) (domain.Order, error) {
	price := decimal.NewFromFloat(req.Price)
	tokenID, validToken := new(big.Int).SetString(req.AssetID, 10)
	switch {
	case req.Shares <= 0:
		return domain.Order{}, fmt.Errorf("polymarket/clob: %d shares: %w", req.Shares, domain.ErrInvalidOrder)
	case !price.IsPositive() || price.GreaterThanOrEqual(one):
		return domain.Order{}, fmt.Errorf("polymarket/clob: price %v: %w", req.Price, domain.ErrInvalidOrder)
	case !validToken:
		return domain.Order{}, fmt.Errorf("polymarket/clob: token id %q: %w", req.AssetID, domain.ErrInvalidOrder)
	}

	size := decimal.NewFromInt(req.Shares).Mul(usdcUnit)
	cost := price.Mul(size).Truncate(0)
	side, sideCode := domain.OrderSideBuy, uint8(0)
	maker, taker := cost.BigInt(), size.BigInt()
	if req.Side == domain.OrderSideSell {
		side, sideCode = domain.OrderSideSell, 1
		maker, taker = taker, maker
	}

	salt, err := rand.Int(rand.Reader, saltLimit)
	if err != nil {
		return domain.Order{}, fmt.Errorf("polymarket/clob: salt: %w", err)
	}
	wallet := c.signer.Address()
	sig, err := c.signer.SignOrder(crypto.OrderPayload{
		Salt:        salt,
		Maker:       wallet,
		Signer:      wallet,
		TokenID:     tokenID,
		MakerAmount: maker,
		TakerAmount: taker,
		Side:        sideCode,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("polymarket/clob: %w: %v", domain.ErrSigningFailed, err)
	}
	return domain.Order{
		TokenID:     req.AssetID,
		Wallet:      wallet.Hex(),
		Side:        side,
		Type:        kind,
		MakerAmount: maker,
		TakerAmount: taker,
		Salt:        salt.String(),
		Signature:   sig,
	}, nil
}

func (c *ClobClient) credentials(ctx context.Context) (crypto.APICreds, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		creds, err := c.deriveAPIKey(ctx)
		if err != nil {
			return crypto.APICreds{}, err
		}
		c.creds = &creds
	}
	return *c.creds, nil
}

// deriveAPIKey runs the L1 flow: a ClobAuth EIP-712 signature presented
// in the POLY_* headers returns the wallet's L2 key.
func (c *ClobClient) deriveAPIKey(ctx context.Context) (crypto.APICreds, error) {
	ts := time.Now().Unix()
	const nonce = 0
	sig, err := c.signer.SignClobAuth(ts, nonce)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: sign auth: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/auth/derive-api-key", nil)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("POLY_NONCE", strconv.Itoa(nonce))

	body, err := roundTrip(c.http, req)
	if err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}
	var creds crypto.APICreds
	if err := json.Unmarshal(body, &creds); err != nil {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: decode api key: %w", err)
	}
	if creds.Key == "" {
		return crypto.APICreds{}, fmt.Errorf("polymarket/clob: derive api key: %w: empty key", domain.ErrUnauthorized)
	}
	return creds, nil
}

// signed sends an L2 request: payload is HMAC-signed together with the
// method, path and timestamp.
func (c *ClobClient) signed(ctx context.Context, creds crypto.APICreds, method, path string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range creds.Headers(c.signer.Address().Hex(), method, path, string(payload)) {
		req.Header.Set(k, v)
	}
	return roundTrip(c.http, req)
}

var _ domain.OrderPlacer = (*ClobClient)(nil)
