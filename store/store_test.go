package store

import (
	"context"
	"testing"
	"time"
)

func TestUserUpsertConflictLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()
	first := UserRecord{ID: NewUserID(), UserName: "jdoe", Active: true, Created: time.Now(), LastModified: time.Now()}
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second := UserRecord{ID: NewUserID(), UserName: "jdoe", Active: true, Created: time.Now(), LastModified: time.Now()}
	err := s.Upsert(ctx, second)
	if err == nil {
		t.Fatal("expected Conflict for duplicate userName")
	}
	if e, ok := err.(*Error); !ok || e.Kind != KindConflict {
		t.Fatalf("expected Conflict error, got %v", err)
	}

	all, _ := s.List(ctx, nil)
	if len(all) != 1 {
		t.Fatalf("store must be unchanged after a failed upsert, got %d users", len(all))
	}
}

func TestCaseInsensitiveUserNameUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewUserStore()
	_ = s.Upsert(ctx, UserRecord{ID: NewUserID(), UserName: "JDoe"})
	err := s.Upsert(ctx, UserRecord{ID: NewUserID(), UserName: "jdoe"})
	if err == nil {
		t.Fatal("userName uniqueness must be case-insensitive")
	}
}

func TestGroupMemberRemovalNotListedAfterward(t *testing.T) {
	ctx := context.Background()
	users := NewUserStore()
	groups := NewGroupStore()

	u := UserRecord{ID: NewUserID(), UserName: "alice"}
	_ = users.Upsert(ctx, u)

	g := GroupRecord{ID: NewGroupID(), DisplayName: "engineering"}
	AddMember(&g, Member{Value: u.ID, Display: u.UserName})
	_ = groups.Upsert(ctx, g)

	stored, _ := groups.Get(ctx, g.ID)
	if !RemoveMember(stored, u.ID) {
		t.Fatal("expected member to be present before removal")
	}
	_ = groups.Upsert(ctx, *stored)

	after, _ := groups.Get(ctx, g.ID)
	for _, m := range after.Members {
		if m.Value == u.ID {
			t.Fatal("removed member must not appear in subsequent Get")
		}
	}
}

func TestParseFilterGrammar(t *testing.T) {
	f, err := ParseFilter(`userName eq "jdoe"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Attr != "userName" || f.Value != "jdoe" {
		t.Fatalf("unexpected filter: %+v", f)
	}

	if _, err := ParseFilter(`userName sw "jd"`); err == nil {
		t.Fatal("expected BadFilter for unsupported operator")
	}
	if _, err := ParseFilter(`userName eq jdoe`); err == nil {
		t.Fatal("expected BadFilter for unquoted literal")
	}
}

func TestPasswordVerifier(t *testing.T) {
	v := NewPasswordVerifier("admin_pass")
	if !v.Matches("admin_pass") {
		t.Fatal("verifier must match the original password")
	}
	if v.Matches("wrong") {
		t.Fatal("verifier must not match a different password")
	}
}
