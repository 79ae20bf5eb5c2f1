package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// GammaClient reads market metadata from the public Gamma API
// ("https://gamma-api.polymarket.com"). It needs no credentials.
type GammaClient struct {
	base string
	http *http.Client
}

func NewGammaClient(baseURL string) *GammaClient {
	return &GammaClient{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

// MarketBySlug looks a market up by its URL slug. An unknown slug is
// domain.ErrNotFound.
func (g *GammaClient) MarketBySlug(ctx context.Context, slug string) (APIMarket, error) {
	var markets []APIMarket
	q := url.Values{"slug": {slug}}
	if err := g.getJSON(ctx, "/markets", q, &markets); err != nil {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: market %s: %w", slug, err)
	}
	if len(markets) == 0 {
		return APIMarket{}, fmt.Errorf("polymarket/gamma: market %s: %w", slug, domain.ErrNotFound)
	}
	return markets[0], nil
}

func (g *GammaClient) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := g.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	body, err := roundTrip(g.http, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
