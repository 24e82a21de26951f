package ruleset

import (
	"strings"
	"testing"
)

const validDoc = `{
  "id": "adult-referral",
  "version": 1,
  "facts": [
    "risk.suicidal_intent_now",
    "risk.suicide_plan",
    "risk.means_access",
    "scores.phq9.total",
    "scores.gad7.total"
  ],
  "rules": [
    {
      "id": "crisis-active-intent",
      "priority": 10,
      "when": {
        "all": [
          {"fact": "risk.suicidal_intent_now", "op": "==", "value": true},
          {"any": [
            {"fact": "risk.suicide_plan", "op": "==", "value": true},
            {"fact": "risk.means_access", "op": "==", "value": true}
          ]}
        ]
      },
      "outcome": {
        "tier": "RED",
        "pathway": "CRISIS_ESCALATION",
        "flags": [{"code": "crisis", "severity": "critical"}],
        "explanation": "Active suicidal intent with plan or means access"
      }
    },
    {
      "id": "severe-depression",
      "priority": 20,
      "when": {"fact": "scores.phq9.total", "op": ">=", "value": 20},
      "outcome": {
        "tier": "AMBER",
        "pathway": "PSYCHIATRY_ASSESSMENT",
        "explanation": "PHQ-9 total {scores.phq9.total} indicates severe depression"
      }
    }
  ],
  "default": {
    "tier": "GREEN",
    "pathway": "GUIDED_SELF_HELP",
    "explanation": "No stratification rule matched"
  }
}`

func TestParse_Valid(t *testing.T) {
	rs, err := Parse([]byte(validDoc), "clin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs.ID != "adult-referral" || rs.Version != 1 {
		t.Errorf("unexpected identity: %s v%d", rs.ID, rs.Version)
	}
	if rs.SubmittedBy != "clin-1" {
		t.Errorf("expected submitter clin-1, got %s", rs.SubmittedBy)
	}
	if len(rs.ContentHash) != 64 {
		t.Errorf("expected sha256 hex content hash, got %q", rs.ContentHash)
	}
	if len(rs.Rules) != 2 || rs.Rules[0].ID != "crisis-active-intent" {
		t.Errorf("rules not sorted by priority: %+v", rs.Rules)
	}
	if rs.Default.Tier != TierGreen {
		t.Errorf("default outcome lost: %+v", rs.Default)
	}
}

func TestParse_HashIgnoresFormatting(t *testing.T) {
	rs1, err := Parse([]byte(validDoc), "clin-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reformatted := strings.ReplaceAll(validDoc, "\n", " ")
	rs2, err := Parse([]byte(reformatted), "clin-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs1.ContentHash != rs2.ContentHash {
		t.Error("content hash must not depend on whitespace")
	}
}

func TestParse_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(string) string
		wantErr string
	}{
		{
			name:    "duplicate rule id",
			mutate:  func(s string) string { return strings.Replace(s, "severe-depression", "crisis-active-intent", 1) },
			wantErr: "duplicate rule id",
		},
		{
			name:    "duplicate priority",
			mutate:  func(s string) string { return strings.Replace(s, `"priority": 20`, `"priority": 10`, 1) },
			wantErr: "share priority",
		},
		{
			name:    "unknown operator",
			mutate:  func(s string) string { return strings.Replace(s, `"op": ">="`, `"op": "~="`, 1) },
			wantErr: "unknown operator",
		},
		{
			name:    "undeclared fact",
			mutate:  func(s string) string { return strings.Replace(s, `"fact": "scores.phq9.total"`, `"fact": "scores.phq15.total"`, 1) },
			wantErr: "undeclared fact",
		},
		{
			name:    "invalid tier",
			mutate:  func(s string) string { return strings.Replace(s, `"tier": "AMBER"`, `"tier": "ORANGE"`, 1) },
			wantErr: "invalid tier",
		},
		{
			name:    "invalid pathway",
			mutate:  func(s string) string { return strings.Replace(s, `"pathway": "GUIDED_SELF_HELP"`, `"pathway": "SELF_HELP"`, 1) },
			wantErr: "invalid pathway",
		},
		{
			name:    "missing default",
			mutate:  func(s string) string { return strings.Replace(s, `"default"`, `"fallback"`, 1) },
			wantErr: "", // DisallowUnknownFields catches the rename first
		},
		{
			name:    "invalid flag severity",
			mutate:  func(s string) string { return strings.Replace(s, `"severity": "critical"`, `"severity": "urgent"`, 1) },
			wantErr: "invalid severity",
		},
		{
			name:    "fractional literal",
			mutate:  func(s string) string { return strings.Replace(s, `"value": 20`, `"value": 20.5`, 1) },
			wantErr: "fractional",
		},
		{
			name:    "version zero",
			mutate:  func(s string) string { return strings.Replace(s, `"version": 1`, `"version": 0`, 1) },
			wantErr: "version must be",
		},
		{
			name: "explanation references undeclared fact",
			mutate: func(s string) string {
				return strings.Replace(s, "{scores.phq9.total}", "{scores.phq15.total}", 1)
			},
			wantErr: "explanation references undeclared fact",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.mutate(validDoc)), "clin-1")
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParse_DefaultMissing(t *testing.T) {
	doc := `{"id":"x","version":1,"facts":["f"],
		"rules":[{"id":"r1","priority":1,
			"when":{"fact":"f","op":"==","value":true},
			"outcome":{"tier":"RED","pathway":"CRISIS_ESCALATION","explanation":"e"}}]}`
	_, err := Parse([]byte(doc), "clin-1")
	if err == nil || !strings.Contains(err.Error(), "default outcome is required") {
		t.Errorf("expected missing-default error, got %v", err)
	}
}

func TestTemplateFacts(t *testing.T) {
	got := TemplateFacts("PHQ-9 {scores.phq9.total} and GAD-7 {scores.gad7.total} reviewed")
	if len(got) != 2 || got[0] != "scores.phq9.total" || got[1] != "scores.gad7.total" {
		t.Errorf("unexpected placeholders: %v", got)
	}
	if got := TemplateFacts("no placeholders here"); got != nil {
		t.Errorf("expected none, got %v", got)
	}
}

func TestPredicate_MixedNodeRejected(t *testing.T) {
	doc := strings.Replace(validDoc,
		`{"fact": "scores.phq9.total", "op": ">=", "value": 20}`,
		`{"fact": "scores.phq9.total", "op": ">=", "value": 20, "all": [{"fact": "scores.gad7.total", "op": ">=", "value": 15}]}`,
		1)
	_, err := Parse([]byte(doc), "clin-1")
	if err == nil || !strings.Contains(err.Error(), "exactly one of") {
		t.Errorf("expected mixed-node rejection, got %v", err)
	}
}
