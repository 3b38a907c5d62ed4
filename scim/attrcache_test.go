package scim

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/identityd/store"
)

func newTestCache(t *testing.T) *GroupNameCache {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return NewGroupNameCache(client)
}

func TestGroupNameCacheMissThenHit(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if _, ok := cache.Get(ctx, "usr_1"); ok {
		t.Fatal("expected a miss before Set")
	}

	if err := cache.Set(ctx, "usr_1", []string{"ADMINS", "ENGINEERING"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	names, ok := cache.Get(ctx, "usr_1")
	if !ok {
		t.Fatal("expected a hit after Set")
	}
	want := map[string]bool{"ADMINS": true, "ENGINEERING": true}
	if len(names) != len(want) {
		t.Fatalf("got %v, want 2 names", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Fatalf("unexpected cached name %q", n)
		}
	}
}

func TestGroupNameCacheSetReplacesPreviousMembers(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "usr_1", []string{"ADMINS"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cache.Set(ctx, "usr_1", []string{"ENGINEERING"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	names, ok := cache.Get(ctx, "usr_1")
	if !ok || len(names) != 1 || names[0] != "ENGINEERING" {
		t.Fatalf("expected only ENGINEERING after replacement, got %v ok=%v", names, ok)
	}
}

func TestGroupNameCacheInvalidate(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "usr_1", []string{"ADMINS"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := cache.Invalidate(ctx, "usr_1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, ok := cache.Get(ctx, "usr_1"); ok {
		t.Fatal("expected a miss after Invalidate")
	}
}

func TestUserAuthenticatorUsesGroupNameCache(t *testing.T) {
	ctx := context.Background()
	users := store.NewUserStore()
	groups := store.NewGroupStore()
	svc := NewService(users, groups, nil)
	cache := newTestCache(t)

	if _, err := svc.CreateGroup(ctx, CreateGroupRequest{DisplayName: "ADMINS"}); err != nil {
		t.Fatalf("create group: %v", err)
	}
	created, err := svc.CreateUser(ctx, CreateUserRequest{UserName: "mrios", Password: "admin_pass", Groups: []string{"ADMINS"}})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	auth := NewUserAuthenticator(users, groups).WithGroupNameCache(cache)

	id, err := auth.AuthenticateUser(ctx, "mrios", "admin_pass")
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if len(id.Groups) != 1 || id.Groups[0] != "ADMINS" {
		t.Fatalf("unexpected groups on first resolution: %v", id.Groups)
	}

	cached, ok := cache.Get(ctx, created.ID)
	if !ok || len(cached) != 1 || cached[0] != "ADMINS" {
		t.Fatalf("expected group names to be cached after first resolution, got %v ok=%v", cached, ok)
	}
}

func TestServiceInvalidatesGroupNameCacheOnMembershipChange(t *testing.T) {
	ctx := context.Background()
	users := store.NewUserStore()
	groups := store.NewGroupStore()
	cache := newTestCache(t)
	svc := NewService(users, groups, nil).WithGroupNameCache(cache)

	group, err := svc.CreateGroup(ctx, CreateGroupRequest{DisplayName: "ADMINS"})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	user, err := svc.CreateUser(ctx, CreateUserRequest{UserName: "mrios", Groups: []string{"ADMINS"}})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := cache.Set(ctx, user.ID, []string{"ADMINS"}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	if _, err := svc.RemoveMember(ctx, group.ID, user.ID); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if _, ok := cache.Get(ctx, user.ID); ok {
		t.Fatal("expected RemoveMember to invalidate the cached group names")
	}

	if err := cache.Set(ctx, user.ID, []string{"ADMINS"}); err != nil {
		t.Fatalf("reseed cache: %v", err)
	}
	if _, err := svc.AddMember(ctx, group.ID, store.Member{Value: user.ID}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, ok := cache.Get(ctx, user.ID); ok {
		t.Fatal("expected AddMember to invalidate the cached group names")
	}

	if err := cache.Set(ctx, user.ID, []string{"ADMINS"}); err != nil {
		t.Fatalf("reseed cache: %v", err)
	}
	if _, err := svc.PatchUser(ctx, user.ID, UserPatch{Groups: []string{}}); err != nil {
		t.Fatalf("patch user: %v", err)
	}
	if _, ok := cache.Get(ctx, user.ID); ok {
		t.Fatal("expected PatchUser with a Groups change to invalidate the cached group names")
	}

	if err := cache.Set(ctx, user.ID, []string{"ADMINS"}); err != nil {
		t.Fatalf("reseed cache: %v", err)
	}
	if _, err := svc.AddMember(ctx, group.ID, store.Member{Value: user.ID}); err != nil {
		t.Fatalf("re-add member: %v", err)
	}
	if err := svc.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if _, ok := cache.Get(ctx, user.ID); ok {
		t.Fatal("expected DeleteGroup to invalidate every member's cached group names")
	}
}
