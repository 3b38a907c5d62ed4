package store

import (
	"context"
	"time"
)

// Member is one entry of a Group's member list.
type Member struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

// GroupRecord is the Record Store's stored shape of a Group.
type GroupRecord struct {
	ID           string
	DisplayName  string
	Members      []Member
	Created      time.Time
	LastModified time.Time
}

func (g GroupRecord) RecordID() string  { return g.ID }
func (g GroupRecord) UniqueKey() string { return g.DisplayName }

// Clone deep-copies Members so the returned record never aliases the
// backing array of a stored or caller-held copy.
func (g GroupRecord) Clone() GroupRecord {
	out := g
	out.Members = append([]Member(nil), g.Members...)
	return out
}

// GroupStore is the Record Store's Group collection.
type GroupStore struct {
	c *collection[GroupRecord]
}

func NewGroupStore() *GroupStore { return &GroupStore{c: newCollection[GroupRecord]()} }

func (s *GroupStore) Get(ctx context.Context, id string) (*GroupRecord, error) {
	v, ok := s.c.get(id)
	if !ok {
		return nil, notFound("group %q", id)
	}
	return &v, nil
}

func (s *GroupStore) FindByDisplayName(ctx context.Context, displayName string) (*GroupRecord, error) {
	v, ok := s.c.findByKey(displayName)
	if !ok {
		return nil, notFound("group with displayName %q", displayName)
	}
	return &v, nil
}

func (s *GroupStore) List(ctx context.Context, filter *Filter) ([]GroupRecord, error) {
	if filter != nil && filter.Attr != "displayName" {
		return nil, badFilter("unsupported filter attribute %q", filter.Attr)
	}
	return s.c.list(func(g GroupRecord) bool {
		if filter == nil {
			return true
		}
		return normalize(g.DisplayName) == normalize(filter.Value)
	}), nil
}

func (s *GroupStore) Upsert(ctx context.Context, rec GroupRecord) error {
	return s.c.upsert(rec)
}

func (s *GroupStore) Delete(ctx context.Context, id string) (*GroupRecord, error) {
	v, ok := s.c.delete(id)
	if !ok {
		return nil, notFound("group %q", id)
	}
	return &v, nil
}

// RemoveMember drops userID from a group's member list if present,
// reporting whether it was there; used for explicit member-removal
// requests.
func RemoveMember(g *GroupRecord, userID string) bool {
	for i, m := range g.Members {
		if m.Value == userID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return true
		}
	}
	return false
}

// AddMember appends a member if not already present, maintaining
// uniqueness within the list by value.
func AddMember(g *GroupRecord, m Member) bool {
	for _, existing := range g.Members {
		if existing.Value == m.Value {
			return false
		}
	}
	g.Members = append(g.Members, m)
	return true
}
