package pdp

import (
	"encoding/json"
)

// conditionNode mirrors the JSON shape of one PredicateExpression node:
// {"op": <name>, ...args}. Raw is decoded into this shallow form first
// so malformed structure is caught before we try to interpret operands.
type conditionNode struct {
	Op     string            `json:"op"`
	Path   string            `json:"path"`
	Value  json.RawMessage   `json:"value"`
	Values []json.RawMessage `json:"values"`
	Lo     json.RawMessage   `json:"lo"`
	Hi     json.RawMessage   `json:"hi"`
	Terms  []json.RawMessage `json:"terms"`
	Term   json.RawMessage   `json:"term"`
}

// parseCondition parses one raw JSON predicate node into an Expr tree,
// rejecting unknown operators, malformed attribute paths, or literal
// shapes that can never satisfy the operator (the type-mismatch class
// of semantic error named in the loader contract).
func parseCondition(raw json.RawMessage) (Expr, error) {
	if len(raw) == 0 {
		return nil, parseErr("condition is empty")
	}
	var node conditionNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, parseErr("condition is not a valid predicate node: %v", err)
	}
	if node.Op == "" {
		return nil, parseErr("condition node missing \"op\"")
	}

	switch node.Op {
	case "all", "any":
		if len(node.Terms) == 0 {
			return nil, parseErr("%s() requires at least one term", node.Op)
		}
		terms := make([]Expr, 0, len(node.Terms))
		for _, t := range node.Terms {
			expr, err := parseCondition(t)
			if err != nil {
				return nil, err
			}
			terms = append(terms, expr)
		}
		if node.Op == "all" {
			return &allExpr{terms: terms}, nil
		}
		return &anyExpr{terms: terms}, nil

	case "not":
		if len(node.Term) == 0 {
			return nil, parseErr("not() requires \"term\"")
		}
		inner, err := parseCondition(node.Term)
		if err != nil {
			return nil, err
		}
		return &notExpr{term: inner}, nil

	case "eq", "neq":
		path, err := requirePath(node)
		if err != nil {
			return nil, err
		}
		val, err := decodeLiteral(node.Value, node.Op)
		if err != nil {
			return nil, err
		}
		if node.Op == "eq" {
			return &eqExpr{path: path, value: val}, nil
		}
		return &neqExpr{path: path, value: val}, nil

	case "in":
		path, err := requirePath(node)
		if err != nil {
			return nil, err
		}
		if len(node.Values) == 0 {
			return nil, semanticErr("", "in(%s, ...) requires a non-empty \"values\" list", path)
		}
		vals := make([]any, 0, len(node.Values))
		for _, raw := range node.Values {
			v, err := decodeLiteral(raw, "in")
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		}
		return &inExpr{path: path, values: vals}, nil

	case "contains":
		path, err := requirePath(node)
		if err != nil {
			return nil, err
		}
		val, err := decodeLiteral(node.Value, node.Op)
		if err != nil {
			return nil, err
		}
		return &containsExpr{path: path, value: val}, nil

	case "gte", "gt", "lte", "lt":
		path, err := requirePath(node)
		if err != nil {
			return nil, err
		}
		val, err := decodeLiteral(node.Value, node.Op)
		if err != nil {
			return nil, err
		}
		if _, ok := asFloat(val); !ok {
			if _, ok := val.(bool); ok {
				return nil, semanticErr("", "%s(%s, ...) cannot compare a numeric operator against a boolean literal", node.Op, path)
			}
		}
		ops := map[string]cmpOp{"gte": opGte, "gt": opGt, "lte": opLte, "lt": opLt}
		return &compareExpr{op: ops[node.Op], path: path, value: val}, nil

	case "between":
		path, err := requirePath(node)
		if err != nil {
			return nil, err
		}
		lo, err := decodeLiteral(node.Lo, "between")
		if err != nil {
			return nil, err
		}
		hi, err := decodeLiteral(node.Hi, "between")
		if err != nil {
			return nil, err
		}
		return &betweenExpr{path: path, lo: lo, hi: hi}, nil

	case "exists":
		path, err := requirePath(node)
		if err != nil {
			return nil, err
		}
		return &existsExpr{path: path}, nil

	default:
		return nil, parseErr("unknown predicate operator %q", node.Op)
	}
}

func requirePath(node conditionNode) (AttributePath, error) {
	if node.Path == "" {
		return "", parseErr("%s() requires \"path\"", node.Op)
	}
	return validatePath(node.Path)
}

func decodeLiteral(raw json.RawMessage, op string) (any, error) {
	if len(raw) == 0 {
		return nil, parseErr("%s() requires a literal value", op)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, parseErr("%s() literal is not valid JSON: %v", op, err)
	}
	return v, nil
}
