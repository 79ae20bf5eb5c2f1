package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

type published struct {
	channel string
	payload []byte
}

type memBus struct {
	mu      sync.Mutex
	pubs    []published
	streams map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pubs = append(b.pubs, published{channel, payload})
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streams == nil {
		b.streams = make(map[string][][]byte)
	}
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

type memCache struct {
	mu     sync.Mutex
	prices map[string]float64
}

func (c *memCache) SetPrice(_ context.Context, assetID string, price float64, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prices == nil {
		c.prices = make(map[string]float64)
	}
	c.prices[assetID] = price
	return nil
}

func (c *memCache) GetPrice(_ context.Context, assetID string) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[assetID]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return p, time.Time{}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPriceMirrorWritesAndPublishes(t *testing.T) {
	bus := &memBus{}
	cache := &memCache{}
	m := NewPriceMirror(cache, bus, "ch:prices", quietLogger())

	m.Record(domain.PriceUpdate{AssetID: "up", Price: 0.42, ReceivedAt: time.Now()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		if p, _, err := cache.GetPrice(context.Background(), "up"); err == nil && p == 0.42 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("price never mirrored")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.pubs) != 1 || bus.pubs[0].channel != "ch:prices" {
		t.Fatalf("unexpected publishes %+v", bus.pubs)
	}
}

func TestPriceMirrorDropsWhenFull(t *testing.T) {
	m := NewPriceMirror(&memCache{}, nil, "ch:prices", quietLogger())
	for i := 0; i < cap(m.queue)+3; i++ {
		m.Record(domain.PriceUpdate{AssetID: "up", Price: 0.5})
	}
	if m.Dropped() != 3 {
		t.Fatalf("dropped got=%d want=3", m.Dropped())
	}
}

func TestParsePriceHash(t *testing.T) {
	p, ts, err := parsePriceHash("up", map[string]string{"price": "0.37", "ts": "1772618400000000000"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p != 0.37 || ts.Unix() != 1772618400 {
		t.Fatalf("got=%v,%v", p, ts)
	}
	if _, _, err := parsePriceHash("up", map[string]string{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestRoundLockKey(t *testing.T) {
	start := time.Unix(1772619300, 0)
	if got := RoundLockKey(domain.Round{Slug: "btc-updown-15m-1772619300"}); got != "round:btc-updown-15m-1772619300" {
		t.Fatalf("got=%s", got)
	}
	if got := RoundLockKey(domain.Round{AssetA: "a", AssetB: "b", Start: start}); got != "round:a:b:1772619300" {
		t.Fatalf("got=%s", got)
	}
}
