package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

var recv = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

func TestNormalizeBookUsesBestAsk(t *testing.T) {
	ups, err := Normalize([]byte(`{"event_type":"book","asset_id":"a","asks":[{"price":"0.55","size":"1"},{"price":"0.53","size":"1"}],"bids":[{"price":"0.50","size":"1"}]}`), nil, recv)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(ups) != 1 || ups[0].Price != 0.53 || !ups[0].ReceivedAt.Equal(recv) {
		t.Fatalf("updates got=%+v", ups)
	}
}

func TestNormalizeBookFallsBackToBid(t *testing.T) {
	ups, err := Normalize([]byte(`{"event_type":"book","asset_id":"a","asks":[],"bids":[{"price":"0.31","size":"1"},{"price":"0.33","size":"1"}]}`), nil, recv)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(ups) != 1 || ups[0].Price != 0.33 {
		t.Fatalf("updates got=%+v", ups)
	}
}

func TestNormalizeFiltersAndSkips(t *testing.T) {
	want := map[string]struct{}{"a": {}, "b": {}}
	frame := `[
		{"event_type":"price_change","price_changes":[
			{"asset_id":"a","price":"0.40","best_ask":"0.42"},
			{"asset_id":"zzz","price":"0.40","best_ask":"0.41"},
			{"asset_id":"b","price":"0.58"}]},
		{"event_type":"last_trade_price","asset_id":"b","price":"0.57"},
		{"event_type":"last_trade_price","asset_id":"b","price":"1"},
		{"event_type":"tick_size_change","asset_id":"a"}
	]`
	ups, err := Normalize([]byte(frame), want, recv)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	got := make([]float64, 0, len(ups))
	for _, u := range ups {
		got = append(got, u.Price)
	}
	if len(got) != 3 || got[0] != 0.42 || got[1] != 0.58 || got[2] != 0.57 {
		t.Fatalf("prices got=%v want=[0.42 0.58 0.57]", got)
	}
}

type fakeStream struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeStream(frames ...string) *fakeStream {
	s := &fakeStream{frames: make(chan []byte, len(frames)), closed: make(chan struct{})}
	for _, f := range frames {
		s.frames <- []byte(f)
	}
	return s
}

func (s *fakeStream) Subscribe([]string) error { return nil }
func (s *fakeStream) Ping() error              { return nil }

func (s *fakeStream) Read() ([]byte, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-s.closed:
		return nil, io.ErrClosedPipe
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestConnectionReconnectsAndDeliversInOrder(t *testing.T) {
	first := newFakeStream(`{"event_type":"last_trade_price","asset_id":"a","price":"0.50"}`, `{bad`)
	close(first.frames)
	second := newFakeStream(`{"event_type":"last_trade_price","asset_id":"a","price":"0.40"}`)

	var dials atomic.Int32
	dial := func(ctx context.Context, url string) (Stream, error) {
		switch dials.Add(1) {
		case 1:
			return first, nil
		case 2:
			return second, nil
		}
		return nil, errors.New("no more streams")
	}

	conn := NewConnection("ws://test", quietLogger(), WithDialer(dial), WithBackoff(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []float64
	err := conn.Run(ctx, []string{"a", "b"}, func(u domain.PriceUpdate) {
		got = append(got, u.Price)
		if len(got) == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("run err=%v want context.Canceled", err)
	}
	if len(got) != 2 || got[0] != 0.50 || got[1] != 0.40 {
		t.Fatalf("prices got=%v", got)
	}
	if n := dials.Load(); n != 2 {
		t.Fatalf("dials got=%d want=2", n)
	}
	if conn.Malformed() != 1 {
		t.Fatalf("malformed got=%d want=1", conn.Malformed())
	}
}

func TestConnectionNoRedialAfterCancel(t *testing.T) {
	var dials atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	dial := func(context.Context, string) (Stream, error) {
		dials.Add(1)
		cancel()
		s := newFakeStream()
		close(s.frames)
		return s, nil
	}
	conn := NewConnection("ws://test", quietLogger(), WithDialer(dial), WithBackoff(time.Millisecond))
	if err := conn.Run(ctx, []string{"a"}, func(domain.PriceUpdate) {}); !errors.Is(err, context.Canceled) {
		t.Fatalf("run err=%v want context.Canceled", err)
	}
	if n := dials.Load(); n != 1 {
		t.Fatalf("dials got=%d want=1", n)
	}
}

func TestConnectionCancelledBeforeDial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	conn := NewConnection("ws://test", quietLogger(), WithDialer(func(context.Context, string) (Stream, error) {
		t.Fatalf("dialed after cancel")
		return nil, nil
	}))
	if err := conn.Run(ctx, []string{"a"}, func(domain.PriceUpdate) {}); !errors.Is(err, context.Canceled) {
		t.Fatalf("run err=%v", err)
	}
}

func TestConnectionTap(t *testing.T) {
	s := newFakeStream(`{"event_type":"last_trade_price","asset_id":"a","price":"0.45"}`)
	var tapped []domain.PriceUpdate
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	conn := NewConnection("ws://test", quietLogger(),
		WithDialer(func(context.Context, string) (Stream, error) { return s, nil }),
		WithTap(func(u domain.PriceUpdate) { tapped = append(tapped, u) }),
	)
	_ = conn.Run(ctx, []string{"a"}, func(domain.PriceUpdate) { cancel() })
	if len(tapped) != 1 || tapped[0].AssetID != "a" {
		t.Fatalf("tap got=%+v", tapped)
	}
}

type chanBus struct {
	mu    sync.Mutex
	subs  []chan []byte
	fails int
	calls int
}

func (b *chanBus) Publish(context.Context, string, []byte) error      { return nil }
func (b *chanBus) StreamAppend(context.Context, string, []byte) error { return nil }

// Subscribe fails the first b.fails calls, then hands out the queued
// channels in order.
func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.calls <= b.fails {
		return nil, errors.New("connection refused")
	}
	if len(b.subs) == 0 {
		return nil, errors.New("no subscription queued")
	}
	ch := b.subs[0]
	b.subs = b.subs[1:]
	return ch, nil
}

func (b *chanBus) subscribeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestBusFeedFiltersInstruments(t *testing.T) {
	ch := make(chan []byte, 4)
	ch <- []byte(`{"asset_id":"x","price":0.4}`)
	ch <- []byte(`not json`)
	ch <- []byte(`{"asset_id":"a","price":0.41}`)
	bus := &chanBus{subs: []chan []byte{ch}}

	f := NewBusFeed(bus, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got []domain.PriceUpdate
	err := f.Run(ctx, []string{"a", "b"}, func(u domain.PriceUpdate) {
		got = append(got, u)
		cancel()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("run err=%v want context.Canceled", err)
	}
	if len(got) != 1 || got[0].Price != 0.41 || got[0].ReceivedAt.IsZero() {
		t.Fatalf("updates got=%+v", got)
	}
}

func TestBusFeedResubscribes(t *testing.T) {
	first := make(chan []byte, 1)
	first <- []byte(`{"asset_id":"a","price":0.50}`)
	close(first)
	second := make(chan []byte, 1)
	second <- []byte(`{"asset_id":"a","price":0.40}`)
	bus := &chanBus{fails: 1, subs: []chan []byte{first, second}}

	f := NewBusFeed(bus, quietLogger())
	f.backoff = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []float64
	err := f.Run(ctx, []string{"a", "b"}, func(u domain.PriceUpdate) {
		got = append(got, u.Price)
		if len(got) == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("run err=%v want context.Canceled", err)
	}
	if len(got) != 2 || got[0] != 0.50 || got[1] != 0.40 {
		t.Fatalf("prices got=%v want=[0.5 0.4]", got)
	}
	// one refused, one closed by the broker, one live
	if n := bus.subscribeCalls(); n != 3 {
		t.Fatalf("subscribe calls got=%d want=3", n)
	}
}

func TestBusFeedStopsRetryingOnCancel(t *testing.T) {
	bus := &chanBus{fails: 1 << 30}
	f := NewBusFeed(bus, quietLogger())
	f.backoff = time.Millisecond
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := f.Run(ctx, []string{"a"}, func(domain.PriceUpdate) {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run err=%v want context.DeadlineExceeded", err)
	}
	n := bus.subscribeCalls()
	if n < 2 {
		t.Fatalf("subscribe calls got=%d, expected retries", n)
	}
	time.Sleep(10 * time.Millisecond)
	if after := bus.subscribeCalls(); after != n {
		t.Fatalf("subscribed after Run returned: %d -> %d", n, after)
	}
}
