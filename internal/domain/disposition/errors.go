package disposition

import "fmt"

// ValidationError rejects bad override or escalation input before any
// state change; nothing is partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConcurrencyConflict signals that another operation holds the case.
// The loser fails atomically; the caller retries.
type ConcurrencyConflict struct {
	CaseID string
}

func (e *ConcurrencyConflict) Error() string {
	return fmt.Sprintf("case %s: concurrent operation in progress, retry", e.CaseID)
}
