package pdp

import (
	"os"
	"path/filepath"
	"testing"
)

func loadEngine(t *testing.T, policiesJSON string) *Engine {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.json")
	if err := os.WriteFile(path, []byte(policiesJSON), 0o644); err != nil {
		t.Fatalf("write policies file: %v", err)
	}
	loader := NewLoader(path, nil)
	if err := loader.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	return NewEngine(loader, nil)
}

const scenarioPolicies = `{
  "policies": [
    {
      "ruleId": "ADMIN-OVERRIDE-01",
      "effect": "Permit",
      "priority": 100,
      "condition": {"op":"all","terms":[
        {"op":"in","path":"subject.groups","values":["ADMINS"]},
        {"op":"neq","path":"resource.env","value":"prod"}
      ]}
    },
    {
      "ruleId": "RISK-STEPUP-01",
      "effect": "Challenge",
      "priority": 90,
      "condition": {"op":"gte","path":"subject.riskScore","value":70}
    },
    {
      "ruleId": "CORE-DENY-01",
      "effect": "Deny",
      "priority": 80,
      "condition": {"op":"eq","path":"resource.classification","value":"critical"}
    },
    {
      "ruleId": "CORE-PERMIT-01",
      "effect": "Permit",
      "priority": 50,
      "condition": {"op":"eq","path":"resource.type","value":"core_system"}
    }
  ]
}`

func TestS1AdminOnNonProdPermits(t *testing.T) {
	e := loadEngine(t, scenarioPolicies)
	dec, err := e.Evaluate(&Request{
		Subject:  map[string]any{"dept": "IT", "groups": []any{"ADMINS"}, "riskScore": float64(15)},
		Resource: map[string]any{"type": "user_data", "env": "dev"},
		Context:  map[string]any{"geo": "CL", "deviceTrusted": true},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Decision != EffectPermit {
		t.Fatalf("want Permit, got %s", dec.Decision)
	}
	if len(dec.Reasons) != 1 || dec.Reasons[0] != "ruleId: ADMIN-OVERRIDE-01" {
		t.Fatalf("unexpected reasons: %v", dec.Reasons)
	}
}

func TestS2HighRiskTriggersStepUp(t *testing.T) {
	e := loadEngine(t, scenarioPolicies)
	dec, err := e.Evaluate(&Request{
		Subject:  map[string]any{"dept": "Finance", "riskScore": float64(85)},
		Resource: map[string]any{"type": "financial_data", "env": "prod"},
		Context:  map[string]any{"geo": "CL"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Decision != EffectChallenge {
		t.Fatalf("want Challenge, got %s", dec.Decision)
	}
	found := false
	for _, r := range dec.Reasons {
		if r == "ruleId: RISK-STEPUP-01" {
			found = true
		}
	}
	if !found {
		t.Fatalf("reasons must contain RISK-STEPUP-01, got %v", dec.Reasons)
	}
}

func TestS3DefaultDeny(t *testing.T) {
	e := loadEngine(t, scenarioPolicies)
	dec, err := e.Evaluate(&Request{
		Subject:  map[string]any{"dept": "Sales"},
		Resource: map[string]any{"type": "payroll", "env": "prod"},
		Context:  map[string]any{"geo": "CL"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Decision != EffectDeny || len(dec.Reasons) != 1 || dec.Reasons[0] != "ruleId: "+DefaultDenyRuleID {
		t.Fatalf("want default deny, got %+v", dec)
	}
}

func TestS4DenyOverridesPermit(t *testing.T) {
	e := loadEngine(t, scenarioPolicies)
	dec, err := e.Evaluate(&Request{
		Subject:  map[string]any{"dept": "Ops"},
		Resource: map[string]any{"type": "core_system", "env": "prod", "classification": "critical"},
		Context:  map[string]any{"geo": "CL"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Decision != EffectDeny {
		t.Fatalf("want Deny, got %s", dec.Decision)
	}
	if dec.Reasons[0] != "ruleId: CORE-DENY-01" {
		t.Fatalf("deny ruleId must be listed first, got %v", dec.Reasons)
	}
}

func TestInvariantDecisionIsNeverEmpty(t *testing.T) {
	e := loadEngine(t, `{"policies":[]}`)
	dec, err := e.Evaluate(&Request{Subject: map[string]any{}, Resource: map[string]any{}, Context: map[string]any{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	switch dec.Decision {
	case EffectPermit, EffectDeny, EffectChallenge:
	default:
		t.Fatalf("decision must be one of Permit/Deny/Challenge, got %q", dec.Decision)
	}
}

func TestInvariantDeterministicRepeat(t *testing.T) {
	e := loadEngine(t, scenarioPolicies)
	req := &Request{
		Subject:  map[string]any{"dept": "Finance", "riskScore": float64(85)},
		Resource: map[string]any{"type": "financial_data", "env": "prod"},
		Context:  map[string]any{"geo": "CL"},
	}
	first, err := e.Evaluate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := e.Evaluate(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Decision != second.Decision || len(first.Reasons) != len(second.Reasons) {
		t.Fatalf("same snapshot + same input must produce identical output: %+v vs %+v", first, second)
	}
}

func TestReloadFailureKeepsLivePolicySet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policies.json")
	os.WriteFile(path, []byte(scenarioPolicies), 0o644)
	loader := NewLoader(path, nil)
	if err := loader.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := loader.Current()

	os.WriteFile(path, []byte(`{not valid json`), 0o644)
	if err := loader.Reload(); err == nil {
		t.Fatal("expected reload to fail on invalid JSON")
	}
	if loader.Current() != before {
		t.Fatal("a failed reload must not replace the live PolicySet")
	}
}
