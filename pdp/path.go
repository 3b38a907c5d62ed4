package pdp

import "strings"

// AttributePath is a dot-separated path rooted at subject, resource,
// or context, e.g. "subject.groups" or "context.deviceTrusted".
type AttributePath string

func (p AttributePath) String() string { return string(p) }

// IsUserName reports whether the path's final segment is userName,
// the one field equality on which is case-insensitive.
func (p AttributePath) IsUserName() bool {
	segs := strings.Split(string(p), ".")
	return len(segs) > 0 && segs[len(segs)-1] == "userName"
}

// Resolve walks the path against the evaluation context. The second
// return value is false when any segment is missing, which the
// caller must treat as Undefined rather than as a zero value.
func (p AttributePath) Resolve(ctx *EvalContext) (any, bool) {
	segs := strings.Split(string(p), ".")
	if len(segs) < 2 {
		return nil, false
	}
	var root map[string]any
	switch segs[0] {
	case "subject":
		root = ctx.Subject
	case "resource":
		root = ctx.Resource
	case "context":
		root = ctx.Context
	default:
		return nil, false
	}
	var cur any = root
	for _, seg := range segs[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		v, present := m[seg]
		if !present {
			return nil, false
		}
		cur = v
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

func validatePath(raw string) (AttributePath, error) {
	segs := strings.Split(raw, ".")
	if len(segs) < 2 {
		return "", parseErr("malformed attribute path %q: must be rooted at subject, resource or context", raw)
	}
	switch segs[0] {
	case "subject", "resource", "context":
	default:
		return "", parseErr("malformed attribute path %q: unknown root %q", raw, segs[0])
	}
	for _, seg := range segs[1:] {
		if seg == "" {
			return "", parseErr("malformed attribute path %q: empty segment", raw)
		}
	}
	return AttributePath(raw), nil
}
