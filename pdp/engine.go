package pdp

import (
	"github.com/oarkflow/identityd/logger"
)

// Decision is the PDP's verdict: Permit, Deny, or Challenge, plus the
// ruleIds that contributed and the advice/obligations they carried.
type Decision struct {
	Decision    Effect   `json:"decision"`
	Reasons     []string `json:"reasons"`
	Advice      []string `json:"advice,omitempty"`
	Obligations []string `json:"obligations,omitempty"`
}

// Request is the input tuple an evaluation is run against.
type Request struct {
	Subject  map[string]any `json:"subject"`
	Resource map[string]any `json:"resource"`
	Context  map[string]any `json:"context"`
	Action   string         `json:"action,omitempty"`
}

// Engine is the Rule Engine (PDP): it snapshots the published
// PolicySet exactly once per evaluation, walks it in published order,
// and combines matched rules under deny-overrides-then-challenge-
// then-permit-then-default-deny.
type Engine struct {
	loader *Loader
	cache  *decisionCache
	log    logger.Logger
}

// NewEngine constructs an Engine bound to a Loader. The Loader must
// already have completed its initial Load before the Engine serves
// traffic.
func NewEngine(loader *Loader, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Engine{loader: loader, cache: newDecisionCache(), log: log}
}

// Evaluate runs one authorization decision. It never returns a nil
// Decision alongside a nil error, and never reports an internal fault
// by returning Permit.
func (e *Engine) Evaluate(req *Request) (*Decision, error) {
	ps := e.loader.Current()
	if ps == nil {
		return nil, evalErr("no policy set has been published")
	}
	if len(ps.Policies) == 0 {
		// Implementation bug guard named explicitly by the failure
		// semantics: an empty set must still deny, never panic.
		return &Decision{Decision: EffectDeny, Reasons: []string{"ruleId: " + DefaultDenyRuleID}}, nil
	}

	key := cacheKey(ps.Generation, req)
	if cached, ok := e.cache.get(key); ok {
		return cached, nil
	}

	ctx := &EvalContext{Subject: req.Subject, Resource: req.Resource, Context: req.Context}

	var denyMatches, challengeMatches, permitMatches []*Policy
	for _, p := range ps.Policies {
		if p.RuleID == DefaultDenyRuleID {
			// Always-matching terminal rule; only contributes via the
			// fallback branch of combine when nothing else matched.
			continue
		}
		if !p.Target.matches(ctx, req.Action) {
			continue
		}
		result, err := p.Condition.Evaluate(ctx)
		if err != nil {
			return nil, evalErr("evaluating %s: %v", p.RuleID, err)
		}
		if result != True {
			continue
		}
		switch p.Effect {
		case EffectDeny:
			denyMatches = append(denyMatches, p)
		case EffectChallenge:
			challengeMatches = append(challengeMatches, p)
		case EffectPermit:
			permitMatches = append(permitMatches, p)
		}
	}

	dec := combine(denyMatches, challengeMatches, permitMatches)
	e.cache.set(key, dec)
	return dec, nil
}

// combine applies deny-overrides-then-challenge-then-permit-then-
// default-deny. Each slice is expected in published (priority then
// ruleId) order; the reasons of the decision are the ruleIds of every
// matched rule with the winning effect, in that order, so for a Deny
// the first matched Deny is listed first. Matched rules of the other
// effects are not included in the reasons.
func combine(denyMatches, challengeMatches, permitMatches []*Policy) *Decision {
	switch {
	case len(denyMatches) > 0:
		return decisionFrom(EffectDeny, denyMatches)
	case len(challengeMatches) > 0:
		return decisionFrom(EffectChallenge, challengeMatches)
	case len(permitMatches) > 0:
		return decisionFrom(EffectPermit, permitMatches)
	default:
		return &Decision{Decision: EffectDeny, Reasons: []string{"ruleId: " + DefaultDenyRuleID}}
	}
}

func decisionFrom(effect Effect, matched []*Policy) *Decision {
	d := &Decision{Decision: effect}
	seenAdvice := map[string]bool{}
	seenObligation := map[string]bool{}
	for _, p := range matched {
		d.Reasons = append(d.Reasons, "ruleId: "+p.RuleID)
		for _, a := range p.Advice {
			if !seenAdvice[a] {
				seenAdvice[a] = true
				d.Advice = append(d.Advice, a)
			}
		}
		for _, o := range p.Obligations {
			if !seenObligation[o] {
				seenObligation[o] = true
				d.Obligations = append(d.Obligations, o)
			}
		}
	}
	return d
}
