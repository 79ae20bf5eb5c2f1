package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alanyoungcy/dumpsniper/internal/domain"
)

type memWriter struct {
	objects map[string][]byte
}

func (m *memWriter) PutObject(_ context.Context, key string, body []byte, _ string) error {
	return m.store(key, bytes.NewReader(body))
}

func (m *memWriter) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	return m.store(key, body)
}

func (m *memWriter) store(path string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[path] = b
	return nil
}

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		in     string
		useSSL bool
		want   string
	}{
		{"https://e2.example.com", false, "https://e2.example.com"},
		{"minio:9000", false, "http://minio:9000"},
		{"minio:9000", true, "https://minio:9000"},
		{" minio:9000/ ", false, "http://minio:9000"},
		{"", true, ""},
	}
	for _, tt := range tests {
		if got := endpointURL(tt.in, tt.useSSL); got != tt.want {
			t.Fatalf("endpointURL(%q,%v) got=%s want=%s", tt.in, tt.useSSL, got, tt.want)
		}
	}
}

func TestArchiverUploadsReportAndTape(t *testing.T) {
	w := &memWriter{}
	a := NewArchiver(w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return start.Add(5 * time.Minute) }

	a.OnStatus(domain.Snapshot{SessionID: "s1", AssetA: "up", AssetB: "down", RoundStart: start, RoundEnd: start.Add(15 * time.Minute)})
	a.Record(domain.PriceUpdate{AssetID: "up", Price: 0.5, ReceivedAt: start})
	a.Record(domain.PriceUpdate{AssetID: "other", Price: 0.3, ReceivedAt: start})
	a.Record(domain.PriceUpdate{AssetID: "down", Price: 0.5, ReceivedAt: start})
	a.OnDumpDetected("up", 0.2, 0.4)
	a.OnLegFilled(1, domain.Leg{SessionID: "s1", Number: 1, Side: "up", Price: 0.4, Shares: 25})
	a.OnLegFilled(2, domain.Leg{SessionID: "s1", Number: 2, Side: "down", Price: 0.5, Shares: 25})
	a.OnStopped("s1", domain.StopComplete)

	raw, ok := w.objects["rounds/2026-03-04/s1/report.json"]
	if !ok {
		t.Fatalf("report missing; objects=%v", keys(w.objects))
	}
	var rep RoundReport
	if err := json.Unmarshal(raw, &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Reason != domain.StopComplete || rep.Dumps != 1 || rep.Updates != 2 || rep.Profit != 2.5 {
		t.Fatalf("unexpected report %+v", rep)
	}

	tape := w.objects["rounds/2026-03-04/s1/tape.ndjson"]
	lines := 0
	sc := bufio.NewScanner(bytes.NewReader(tape))
	for sc.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("tape lines got=%d want=2", lines)
	}
	if len(a.tape) != 1 || a.tape[0].AssetID != "other" {
		t.Fatalf("foreign updates not retained: %+v", a.tape)
	}
}

func TestArchiverSkipsEmptyTape(t *testing.T) {
	w := &memWriter{}
	a := NewArchiver(w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC) }
	a.OnStopped("s9", domain.StopManual)
	if len(w.objects) != 1 {
		t.Fatalf("objects got=%v", keys(w.objects))
	}
	if _, ok := w.objects["rounds/2026-03-04/s9/report.json"]; !ok {
		t.Fatalf("report not dated by end time: %v", keys(w.objects))
	}
}

func TestArchiverDropsTapeWithoutPair(t *testing.T) {
	w := &memWriter{}
	a := NewArchiver(w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC) }

	a.Record(domain.PriceUpdate{AssetID: "up", Price: 0.5})
	a.Record(domain.PriceUpdate{AssetID: "down", Price: 0.5})
	a.OnStopped("s7", domain.StopManual)

	if len(a.tape) != 0 {
		t.Fatalf("tape carried over: %+v", a.tape)
	}
	if _, ok := w.objects["rounds/2026-03-04/s7/tape.ndjson"]; ok {
		t.Fatalf("tape uploaded for a session with no pair")
	}
}

func keys(m map[string][]byte) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}
