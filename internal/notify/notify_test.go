package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

type memSender struct {
	name  string
	sent  []string
	fails bool
}

func (m *memSender) Send(_ context.Context, title, message string) error {
	if m.fails {
		return errors.New("boom")
	}
	m.sent = append(m.sent, title+"|"+message)
	return nil
}

func (m *memSender) Name() string { return m.name }

type denyAll struct{}

func (denyAll) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, []string{" leg_filled ", ""}, quiet())
	if err := n.Notify(context.Background(), domain.EventDumpDetected, "t", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if err := n.Notify(context.Background(), domain.EventLegFilled, "t", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent got=%d want=1", len(s.sent))
	}
}

func TestNotifierCollectsSenderErrors(t *testing.T) {
	ok := &memSender{name: "ok"}
	bad := &memSender{name: "bad", fails: true}
	n := NewNotifier([]Sender{bad, ok}, nil, quiet())
	err := n.Notify(context.Background(), domain.EventError, "t", "m")
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("err=%v", err)
	}
	if len(ok.sent) != 1 {
		t.Fatalf("healthy sender skipped")
	}
}

func TestNotifierRateLimit(t *testing.T) {
	s := &memSender{name: "mem"}
	n := NewNotifier([]Sender{s}, nil, quiet()).WithRateLimit(denyAll{}, 1, time.Minute)
	if err := n.Notify(context.Background(), domain.EventError, "t", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(s.sent) != 0 {
		t.Fatalf("rate limit ignored")
	}
}

func TestTelegramSenderPosts(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.baseURL = srv.URL
	if err := s.Send(context.Background(), "Leg 1 filled", "25 shares"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if path != "/bottok/sendMessage" || got["chat_id"] != "42" || got["text"] != "*Leg 1 filled*\n25 shares" {
		t.Fatalf("unexpected request path=%s body=%v", path, got)
	}
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err=%v", err)
	}
}

func TestAlertsFormatsLegFill(t *testing.T) {
	s := &memSender{name: "mem"}
	a := NewAlerts(NewNotifier([]Sender{s}, nil, quiet()), quiet())
	a.OnStatus(domain.Snapshot{})
	a.OnLegFilled(1, domain.Leg{Side: "up", Price: 0.4, Shares: 25, OrderID: "ord-1"})
	if len(s.sent) != 1 {
		t.Fatalf("sent got=%d want=1", len(s.sent))
	}
	if !strings.Contains(s.sent[0], "25 shares of up at 0.4000 (cost $10.00)") {
		t.Fatalf("message got=%q", s.sent[0])
	}
}

func TestShort(t *testing.T) {
	if got := short("up"); got != "up" {
		t.Fatalf("got=%s", got)
	}
	if got := short("71321045679252212594626385532706912750332728571942532289631379312455583992563"); got != "713210…2563" {
		t.Fatalf("got=%s", got)
	}
}
