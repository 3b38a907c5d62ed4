package store

import "strings"

// Filter is a parsed `attr eq "literal"` expression, the only
// grammar SCIM list endpoints accept.
type Filter struct {
	Attr  string
	Value string
}

// ParseFilter parses the SCIM-style filter grammar this store
// supports. Any other shape — a different operator, a logical
// combinator, an unquoted value — fails with BadFilter.
func ParseFilter(raw string) (*Filter, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, " ", 3)
	if len(parts) != 3 || parts[1] != "eq" {
		return nil, badFilter("unsupported filter grammar %q", raw)
	}
	attr := parts[0]
	value := parts[2]
	if len(value) < 2 || value[0] != '"' || value[len(value)-1] != '"' ||
		strings.Contains(value[1:len(value)-1], `"`) {
		return nil, badFilter("filter value must be a quoted literal: %q", raw)
	}
	return &Filter{Attr: attr, Value: value[1 : len(value)-1]}, nil
}
