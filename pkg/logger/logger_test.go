package logger

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/dreschagin/monitor-dw/internal/application/port"
)

type recordingPublisher struct {
	mu      sync.Mutex
	entries []port.LogEntry
}

func (p *recordingPublisher) Publish(_ context.Context, entry port.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func (p *recordingPublisher) PublishBatch(ctx context.Context, entries []port.LogEntry) error {
	for _, e := range entries {
		_ = p.Publish(ctx, e)
	}
	return nil
}

func (p *recordingPublisher) Flush(context.Context) error { return nil }

func TestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("warn", &buf)

	log.Debug("hidden debug")
	log.Info("hidden info")
	log.Warn("visible warn", "source", "jira")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] visible warn | source=jira") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestLoggerErrorAppendsError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Error("delivery failed", errString("boom"), "attempt", 2)

	if !strings.Contains(buf.String(), "attempt=2 error=boom") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestLoggerForwardsToPublisher(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)
	pub := &recordingPublisher{}
	log.SetLogPublisher(pub)

	log.Info("cycle completed", "any_bad", true, "dangling")

	if len(pub.entries) != 1 {
		t.Fatalf("expected 1 forwarded entry, got %d", len(pub.entries))
	}
	entry := pub.entries[0]
	if entry.Level != port.LogLevelInfo || entry.Message != "cycle completed" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Fields["any_bad"] != true {
		t.Fatalf("expected any_bad field, got %+v", entry.Fields)
	}
	if _, ok := entry.Fields["dangling"]; ok {
		t.Fatalf("odd trailing arg must be dropped, got %+v", entry.Fields)
	}

	log.SetLogPublisher(nil)
	log.Info("not forwarded")
	if len(pub.entries) != 1 {
		t.Fatalf("expected forwarding to stop, got %d entries", len(pub.entries))
	}
}

type errString string

func (e errString) Error() string { return string(e) }
