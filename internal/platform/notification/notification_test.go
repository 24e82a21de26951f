package notification

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestHub_FanOut(t *testing.T) {
	var a, b int
	hub := NewHub(
		NotifierFunc(func(context.Context, Alert) error { a++; return nil }),
		NotifierFunc(func(context.Context, Alert) error { b++; return nil }),
	)

	if err := hub.Notify(context.Background(), Alert{Kind: KindSLABreach, Severity: SeverityWarning}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != 1 || b != 1 {
		t.Errorf("expected both sinks called once, got %d and %d", a, b)
	}
}

func TestHub_FailingSinkDoesNotStopOthers(t *testing.T) {
	var delivered int
	hub := NewHub(
		NotifierFunc(func(context.Context, Alert) error { return errors.New("pager down") }),
		NotifierFunc(func(context.Context, Alert) error { delivered++; return nil }),
	)

	err := hub.Notify(context.Background(), Alert{Kind: KindIntegrityFailure, Severity: SeverityCritical})
	if err == nil {
		t.Fatal("expected first sink error to surface")
	}
	if delivered != 1 {
		t.Errorf("expected second sink still called, got %d", delivered)
	}
}

func TestHub_AssignsIDAndTimestamp(t *testing.T) {
	hub := NewHub()
	_ = hub.Notify(context.Background(), Alert{Kind: KindCrisisEscalation, Severity: SeverityCritical})

	history := hub.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 alert in history, got %d", len(history))
	}
	if history[0].ID == "" {
		t.Error("expected alert id to be assigned")
	}
	if history[0].RaisedAt.IsZero() {
		t.Error("expected raised_at to be assigned")
	}
}

func TestHub_HistoryIsBounded(t *testing.T) {
	hub := NewHub()
	for i := 0; i < maxHistory+10; i++ {
		_ = hub.Notify(context.Background(), Alert{
			Kind:     KindSLABreach,
			Severity: SeverityWarning,
			Summary:  strconv.Itoa(i),
		})
	}

	history := hub.History()
	if len(history) != maxHistory {
		t.Fatalf("expected history capped at %d, got %d", maxHistory, len(history))
	}
	if history[0].Summary != "10" {
		t.Errorf("expected oldest alerts evicted, history starts at %s", history[0].Summary)
	}
	if history[len(history)-1].Summary != strconv.Itoa(maxHistory+9) {
		t.Errorf("expected newest alert retained, history ends at %s", history[len(history)-1].Summary)
	}
}

func TestLogNotifier_CriticalGoesToErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	_ = n.Notify(context.Background(), Alert{
		Kind:     KindIntegrityFailure,
		Severity: SeverityCritical,
		Summary:  "audit chain divergence",
		EntityID: "ledger-2026-08-29",
	})

	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) {
		t.Errorf("expected error level, got %s", out)
	}
	if !strings.Contains(out, "audit chain divergence") {
		t.Errorf("expected summary in output, got %s", out)
	}
}
