// Package notification delivers operator-facing alerts for clinically
// consequential events: crisis escalations, SLA breaches, extraction failures
// on risk-bearing cases, and audit-chain integrity failures. Delivery
// transport (SMS, email, pager) is an external collaborator; this package
// owns the alert model and fan-out.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AlertKind identifies why an alert was raised.
type AlertKind string

const (
	KindCrisisEscalation  AlertKind = "crisis_escalation"
	KindSLABreach         AlertKind = "sla_breach"
	KindExtractionFailure AlertKind = "extraction_failure"
	KindIntegrityFailure  AlertKind = "integrity_failure"
	KindRulesetChanged    AlertKind = "ruleset_changed"
)

// Severity ranks alerts for the receiving channel.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a single outbound operator notification.
type Alert struct {
	ID         string            `json:"id"`
	Kind       AlertKind         `json:"kind"`
	Severity   Severity          `json:"severity"`
	Summary    string            `json:"summary"`
	EntityType string            `json:"entity_type,omitempty"`
	EntityID   string            `json:"entity_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RaisedAt   time.Time         `json:"raised_at"`
}

// Notifier delivers alerts. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, alert Alert) error

func (f NotifierFunc) Notify(ctx context.Context, alert Alert) error {
	return f(ctx, alert)
}

// LogNotifier writes alerts to the structured log. It is the fallback sink
// when no delivery collaborator is wired.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, alert Alert) error {
	evt := n.logger.Warn()
	if alert.Severity == SeverityCritical {
		evt = n.logger.Error()
	}
	evt.
		Str("alert_id", alert.ID).
		Str("kind", string(alert.Kind)).
		Str("severity", string(alert.Severity)).
		Str("entity_type", alert.EntityType).
		Str("entity_id", alert.EntityID).
		Msg(alert.Summary)
	return nil
}

// maxHistory caps the hub's in-memory alert buffer; older alerts are evicted.
// The durable record lives in the audit ledger, not here.
const maxHistory = 256

// Hub fans an alert out to every registered notifier. A failing sink does not
// stop delivery to the others; the first error is returned.
type Hub struct {
	mu        sync.RWMutex
	notifiers []Notifier
	history   []Alert
}

func NewHub(notifiers ...Notifier) *Hub {
	return &Hub{notifiers: notifiers}
}

// Register adds a notifier to the fan-out set.
func (h *Hub) Register(n Notifier) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifiers = append(h.notifiers, n)
}

func (h *Hub) Notify(ctx context.Context, alert Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.RaisedAt.IsZero() {
		alert.RaisedAt = time.Now().UTC()
	}

	h.mu.Lock()
	h.history = append(h.history, alert)
	if len(h.history) > maxHistory {
		trimmed := make([]Alert, maxHistory)
		copy(trimmed, h.history[len(h.history)-maxHistory:])
		h.history = trimmed
	}
	notifiers := make([]Notifier, len(h.notifiers))
	copy(notifiers, h.notifiers)
	h.mu.Unlock()

	var firstErr error
	for _, n := range notifiers {
		if err := n.Notify(ctx, alert); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// History returns a copy of the retained alerts, oldest first. At most
// maxHistory alerts are kept.
func (h *Hub) History() []Alert {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Alert, len(h.history))
	copy(out, h.history)
	return out
}
