package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

// PaperPlacer fills every valid order at its limit price after an
// optional simulated latency.
type PaperPlacer struct {
	latency time.Duration

	mu     sync.Mutex
	orders []domain.OrderRequest
}

// NewPaperPlacer creates a paper placer.
func NewPaperPlacer(latency time.Duration) *PaperPlacer {
	return &PaperPlacer{latency: latency}
}

func (p *PaperPlacer) Place(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Shares <= 0 || req.Price <= 0 || req.Price >= 1 {
		return domain.OrderResult{}, fmt.Errorf("executor/paper: %w", domain.ErrInvalidOrder)
	}
	if p.latency > 0 {
		t := time.NewTimer(p.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return domain.OrderResult{}, ctx.Err()
		case <-t.C:
		}
	}

	p.mu.Lock()
	p.orders = append(p.orders, req)
	p.mu.Unlock()

	return domain.OrderResult{
		OrderID:     "paper-" + uuid.NewString(),
		Status:      "matched",
		FilledPrice: req.Price,
		PlacedAt:    time.Now(),
	}, nil
}

// Orders returns every filled paper order.
func (p *PaperPlacer) Orders() []domain.OrderRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.OrderRequest(nil), p.orders...)
}

var _ domain.OrderPlacer = (*PaperPlacer)(nil)
