package pdp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Trivalent is the three-valued result of evaluating a predicate or a
// comparator: True, False, or Undefined when the attribute it depends
// on is missing or not comparable.
type Trivalent int

const (
	Undefined Trivalent = iota
	False
	True
)

func (t Trivalent) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "undefined"
	}
}

func boolToTri(b bool) Trivalent {
	if b {
		return True
	}
	return False
}

// EvalContext is the attribute tuple a predicate is evaluated against.
// Subject, Resource and Context are plain maps so the loader never
// needs a fixed schema for either side of a comparison.
type EvalContext struct {
	Subject  map[string]any
	Resource map[string]any
	Context  map[string]any
}

// Expr is one node of a PredicateExpression tree. Evaluate never
// returns an error for shape mismatches — those degrade to Undefined,
// per the three-valued contract; it only returns an error for a
// genuine evaluator fault.
type Expr interface {
	Evaluate(ctx *EvalContext) (Trivalent, error)
	String() string
}

// ---- boolean combinators ----

type allExpr struct{ terms []Expr }

func (e *allExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	result := True
	for _, t := range e.terms {
		v, err := t.Evaluate(ctx)
		if err != nil {
			return Undefined, err
		}
		if v == False {
			return False, nil
		}
		if v == Undefined {
			result = Undefined
		}
	}
	return result, nil
}

func (e *allExpr) String() string { return "all(" + joinExpr(e.terms) + ")" }

type anyExpr struct{ terms []Expr }

func (e *anyExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	result := False
	for _, t := range e.terms {
		v, err := t.Evaluate(ctx)
		if err != nil {
			return Undefined, err
		}
		if v == True {
			return True, nil
		}
		if v == Undefined {
			result = Undefined
		}
	}
	return result, nil
}

func (e *anyExpr) String() string { return "any(" + joinExpr(e.terms) + ")" }

type notExpr struct{ term Expr }

func (e *notExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	v, err := e.term.Evaluate(ctx)
	if err != nil {
		return Undefined, err
	}
	switch v {
	case True:
		return False, nil
	case False:
		return True, nil
	default:
		return Undefined, nil
	}
}

func (e *notExpr) String() string { return "not(" + e.term.String() + ")" }

func joinExpr(terms []Expr) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

// ---- leaf comparators ----

type eqExpr struct {
	path  AttributePath
	value any
}

func (e *eqExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	v, ok := e.path.Resolve(ctx)
	if !ok {
		return Undefined, nil
	}
	return boolToTri(valuesEqual(e.path, v, e.value)), nil
}

func (e *eqExpr) String() string { return fmt.Sprintf("eq(%s, %v)", e.path, e.value) }

type neqExpr struct {
	path  AttributePath
	value any
}

func (e *neqExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	v, ok := e.path.Resolve(ctx)
	if !ok {
		return Undefined, nil
	}
	return boolToTri(!valuesEqual(e.path, v, e.value)), nil
}

func (e *neqExpr) String() string { return fmt.Sprintf("neq(%s, %v)", e.path, e.value) }

type inExpr struct {
	path   AttributePath
	values []any
}

func (e *inExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	v, ok := e.path.Resolve(ctx)
	if !ok {
		return Undefined, nil
	}
	if set, ok := asSlice(v); ok {
		for _, item := range set {
			for _, want := range e.values {
				if valuesEqual(e.path, item, want) {
					return True, nil
				}
			}
		}
		return False, nil
	}
	for _, want := range e.values {
		if valuesEqual(e.path, v, want) {
			return True, nil
		}
	}
	return False, nil
}

func (e *inExpr) String() string { return fmt.Sprintf("in(%s, %v)", e.path, e.values) }

type containsExpr struct {
	path  AttributePath
	value any
}

func (e *containsExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	v, ok := e.path.Resolve(ctx)
	if !ok {
		return Undefined, nil
	}
	items, ok := asSlice(v)
	if !ok {
		return Undefined, nil
	}
	for _, item := range items {
		if valuesEqual(e.path, item, e.value) {
			return True, nil
		}
	}
	return False, nil
}

func (e *containsExpr) String() string { return fmt.Sprintf("contains(%s, %v)", e.path, e.value) }

type existsExpr struct{ path AttributePath }

func (e *existsExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	v, ok := e.path.Resolve(ctx)
	if !ok || v == nil {
		return False, nil
	}
	return True, nil
}

func (e *existsExpr) String() string { return fmt.Sprintf("exists(%s)", e.path) }

// cmpOp is one of gte/gt/lte/lt.
type cmpOp int

const (
	opGte cmpOp = iota
	opGt
	opLte
	opLt
)

type compareExpr struct {
	op    cmpOp
	path  AttributePath
	value any
}

func (e *compareExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	v, ok := e.path.Resolve(ctx)
	if !ok {
		return Undefined, nil
	}
	lhs, ok := asFloat(v)
	if !ok {
		return Undefined, nil
	}
	rhs, ok := asFloat(e.value)
	if !ok {
		return Undefined, nil
	}
	var result bool
	switch e.op {
	case opGte:
		result = lhs >= rhs
	case opGt:
		result = lhs > rhs
	case opLte:
		result = lhs <= rhs
	case opLt:
		result = lhs < rhs
	}
	return boolToTri(result), nil
}

func (e *compareExpr) String() string {
	names := map[cmpOp]string{opGte: "gte", opGt: "gt", opLte: "lte", opLt: "lt"}
	return fmt.Sprintf("%s(%s, %v)", names[e.op], e.path, e.value)
}

type betweenExpr struct {
	path   AttributePath
	lo, hi any
}

func (e *betweenExpr) Evaluate(ctx *EvalContext) (Trivalent, error) {
	v, ok := e.path.Resolve(ctx)
	if !ok {
		return Undefined, nil
	}
	if lo, hi, ok := asMinuteRange(e.lo, e.hi); ok {
		if minute, ok := asMinuteOfDay(v); ok {
			if lo <= hi {
				return boolToTri(minute >= lo && minute <= hi), nil
			}
			// wrap-around window, e.g. 22:00-06:00
			return boolToTri(minute >= lo || minute <= hi), nil
		}
		return Undefined, nil
	}
	val, ok := asFloat(v)
	if !ok {
		return Undefined, nil
	}
	lo, ok1 := asFloat(e.lo)
	hi, ok2 := asFloat(e.hi)
	if !ok1 || !ok2 {
		return Undefined, nil
	}
	return boolToTri(val >= lo && val <= hi), nil
}

func (e *betweenExpr) String() string {
	return fmt.Sprintf("between(%s, %v, %v)", e.path, e.lo, e.hi)
}

// ---- value helpers ----

func valuesEqual(path AttributePath, a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		if path.IsUserName() {
			return strings.EqualFold(as, bs)
		}
		return as == bs
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	default:
		return nil, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asMinuteOfDay parses an "HH:MM" string into minutes since midnight.
func asMinuteOfDay(v any) (int, bool) {
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}

// asMinuteRange reports whether both bounds look like "HH:MM" literals,
// signalling that the between() should use time-of-day semantics
// rather than numeric comparison.
func asMinuteRange(lo, hi any) (int, int, bool) {
	loM, ok1 := asMinuteOfDay(lo)
	hiM, ok2 := asMinuteOfDay(hi)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return loM, hiM, true
}
