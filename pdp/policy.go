package pdp

import (
	"encoding/json"
	"sort"
)

// Effect is the outcome a matched policy contributes toward a decision.
type Effect string

const (
	EffectPermit   Effect = "Permit"
	EffectDeny     Effect = "Deny"
	EffectChallenge Effect = "Challenge"
)

// Target is the coarse pre-filter on resource/action evaluated before
// the full condition; nil means the policy applies to any resource/action.
type Target struct {
	Actions   []string `json:"actions,omitempty"`
	Resources []string `json:"resources,omitempty"`
}

func (t *Target) matches(ctx *EvalContext, action string) bool {
	if t == nil {
		return true
	}
	if len(t.Actions) > 0 {
		if action == "" || !contains(t.Actions, action) {
			return false
		}
	}
	if len(t.Resources) > 0 {
		resType, _ := ctx.Resource["type"].(string)
		if resType == "" || !contains(t.Resources, resType) {
			return false
		}
	}
	return true
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

// Policy is one immutable rule of a published PolicySet.
type Policy struct {
	RuleID      string `json:"ruleId"`
	Effect      Effect `json:"effect"`
	Priority    int    `json:"priority"`
	Target      *Target `json:"target,omitempty"`
	Condition   Expr    `json:"-"`
	Advice      []string `json:"advice,omitempty"`
	Obligations []string `json:"obligations,omitempty"`
}

// rawPolicy is the wire shape of one policy entry in the policies file.
type rawPolicy struct {
	RuleID      string          `json:"ruleId"`
	Effect      string          `json:"effect"`
	Priority    *int            `json:"priority"`
	Target      *Target         `json:"target,omitempty"`
	Condition   json.RawMessage `json:"condition"`
	Advice      []string        `json:"advice,omitempty"`
	Obligations []string        `json:"obligations,omitempty"`
}

// rawDocument is the top-level shape of the policies file: {"policies": [...]}.
type rawDocument struct {
	Policies []rawPolicy `json:"policies"`
}

// DefaultDenyRuleID is the id of the mandatory implicit terminal rule
// that always matches; it decides Deny only when no other rule matched.
const DefaultDenyRuleID = "DEFAULT-DENY-01"

func parsePolicy(raw rawPolicy) (*Policy, error) {
	if raw.RuleID == "" {
		return nil, parseErr("policy missing \"ruleId\"")
	}
	switch raw.Effect {
	case string(EffectPermit), string(EffectDeny), string(EffectChallenge):
	default:
		return nil, semanticErr(raw.RuleID, "unknown effect %q", raw.Effect)
	}
	if raw.Priority == nil {
		return nil, parseErr("policy %q missing \"priority\"", raw.RuleID)
	}
	if len(raw.Condition) == 0 {
		return nil, parseErr("policy %q missing \"condition\"", raw.RuleID)
	}
	cond, err := parseCondition(raw.Condition)
	if err != nil {
		if pe, ok := err.(*Error); ok && pe.RuleID == "" {
			pe.RuleID = raw.RuleID
		}
		return nil, err
	}
	return &Policy{
		RuleID:      raw.RuleID,
		Effect:      Effect(raw.Effect),
		Priority:    *raw.Priority,
		Target:      raw.Target,
		Condition:   cond,
		Advice:      raw.Advice,
		Obligations: raw.Obligations,
	}, nil
}

// defaultDenyPolicy is appended to every published PolicySet. Its
// condition always evaluates true so it only ever fires as the
// fallback when nothing else matched.
type alwaysTrue struct{}

func (alwaysTrue) Evaluate(*EvalContext) (Trivalent, error) { return True, nil }
func (alwaysTrue) String() string                           { return "true" }

func defaultDenyPolicy() *Policy {
	return &Policy{
		RuleID:    DefaultDenyRuleID,
		Effect:    EffectDeny,
		Priority:  minInt,
		Condition: alwaysTrue{},
	}
}

const minInt = -1 << 31

// PolicySet is the immutable, ordered collection of rules under
// evaluation, terminated by the implicit default-deny rule. It must
// never be mutated after construction; reload publishes a new one via
// atomic pointer swap.
type PolicySet struct {
	Policies   []*Policy
	Generation uint64
}

// parsePolicySet parses a full policies document, sorts by descending
// priority then lexicographic ruleId, and appends the implicit
// default-deny terminal rule.
func parsePolicySet(data []byte, generation uint64) (*PolicySet, error) {
	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, parseErr("policies document is not valid JSON: %v", err)
	}
	seen := make(map[string]bool, len(doc.Policies))
	policies := make([]*Policy, 0, len(doc.Policies)+1)
	for _, raw := range doc.Policies {
		p, err := parsePolicy(raw)
		if err != nil {
			return nil, err
		}
		if seen[p.RuleID] {
			return nil, semanticErr(p.RuleID, "duplicate ruleId")
		}
		seen[p.RuleID] = true
		policies = append(policies, p)
	}
	sort.SliceStable(policies, func(i, j int) bool {
		if policies[i].Priority != policies[j].Priority {
			return policies[i].Priority > policies[j].Priority
		}
		return policies[i].RuleID < policies[j].RuleID
	})
	policies = append(policies, defaultDenyPolicy())
	return &PolicySet{Policies: policies, Generation: generation}, nil
}
