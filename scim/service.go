package scim

import (
	"context"
	"time"

	"github.com/oarkflow/identityd/logger"
	"github.com/oarkflow/identityd/store"
)

// Users is the subset of the Record Store's User collection the SCIM
// service depends on — satisfied by both store.UserStore (memory) and
// store.SQLUserStore.
type Users interface {
	Get(ctx context.Context, id string) (*store.UserRecord, error)
	FindByUserName(ctx context.Context, userName string) (*store.UserRecord, error)
	List(ctx context.Context, filter *store.Filter) ([]store.UserRecord, error)
	Upsert(ctx context.Context, rec store.UserRecord) error
	Delete(ctx context.Context, id string) (*store.UserRecord, error)
	Exists(ctx context.Context, id string) bool
}

// Groups is the subset of the Record Store's Group collection the
// SCIM service depends on.
type Groups interface {
	Get(ctx context.Context, id string) (*store.GroupRecord, error)
	FindByDisplayName(ctx context.Context, displayName string) (*store.GroupRecord, error)
	List(ctx context.Context, filter *store.Filter) ([]store.GroupRecord, error)
	Upsert(ctx context.Context, rec store.GroupRecord) error
	Delete(ctx context.Context, id string) (*store.GroupRecord, error)
}

// Service implements the SCIM provisioning surface for Users and Groups.
type Service struct {
	users      Users
	groups     Groups
	log        logger.Logger
	now        func() time.Time
	groupCache *GroupNameCache
}

func NewService(users Users, groups Groups, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Service{users: users, groups: groups, log: log, now: time.Now}
}

// WithGroupNameCache attaches the cache that also backs
// UserAuthenticator's hot path, so every group-membership mutation
// below can invalidate the same entries it would otherwise leave
// stale.
func (s *Service) WithGroupNameCache(cache *GroupNameCache) *Service {
	s.groupCache = cache
	return s
}

// invalidateGroupNameCache drops the cached group-name set for every
// affected user id, logging (not failing the request on) a cache
// error — staleness past this point is bounded by the next
// successful write, never by an unbounded TTL.
func (s *Service) invalidateGroupNameCache(ctx context.Context, userIDs ...string) {
	if s.groupCache == nil {
		return
	}
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := s.groupCache.Invalidate(ctx, id); err != nil {
			s.log.Error("failed to invalidate group name cache", "user", id, "error", err.Error())
		}
	}
}

// CreateUser validates referenced groups exist before the user is
// persisted, then attaches the new user to each group, logging and
// skipping (not failing) any individual group-attachment error.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if req.UserName == "" {
		return nil, badRequest("userName is required")
	}
	groupRecs := make([]*store.GroupRecord, 0, len(req.Groups))
	for _, name := range req.Groups {
		g, err := s.groups.FindByDisplayName(ctx, name)
		if err != nil {
			return nil, badRequest("group %q does not exist", name)
		}
		groupRecs = append(groupRecs, g)
	}

	now := s.now()
	rec := store.UserRecord{
		ID:           store.NewUserID(),
		UserName:     req.UserName,
		GivenName:    req.Name.GivenName,
		FamilyName:   req.Name.FamilyName,
		Formatted:    req.Name.Formatted,
		Active:       true,
		Emails:       req.Emails,
		Dept:         req.Dept,
		RiskScore:    req.RiskScore,
		Created:      now,
		LastModified: now,
	}
	if req.Active != nil {
		rec.Active = *req.Active
	}
	if req.Password != "" {
		v := store.NewPasswordVerifier(req.Password)
		rec.Verifier = &v
	}

	groupIDs := make([]string, 0, len(groupRecs))
	for _, g := range groupRecs {
		groupIDs = append(groupIDs, g.ID)
	}
	rec.Groups = groupIDs

	if err := s.users.Upsert(ctx, rec); err != nil {
		return nil, translateStoreErr(err)
	}

	for _, g := range groupRecs {
		g := *g
		if !store.AddMember(&g, store.Member{Value: rec.ID, Display: rec.UserName}) {
			continue
		}
		g.LastModified = now
		if err := s.groups.Upsert(ctx, g); err != nil {
			s.log.Error("failed to attach new user to group", "user", rec.ID, "group", g.ID, "error", err.Error())
		}
	}

	return toUser(rec), nil
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	rec, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return toUser(*rec), nil
}

// ListUsers supports only the exact-match `userName eq "x"` filter,
// or no filter at all.
func (s *Service) ListUsers(ctx context.Context, rawFilter string) (*ListResponse, error) {
	filter, err := store.ParseFilter(rawFilter)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	recs, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	resources := make([]any, 0, len(recs))
	for _, r := range recs {
		resources = append(resources, toUser(r))
	}
	return newListResponse(resources), nil
}

func (s *Service) PatchUser(ctx context.Context, id string, patch UserPatch) (*User, error) {
	rec, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	if patch.Active != nil {
		rec.Active = *patch.Active
	}
	if patch.Dept != nil {
		rec.Dept = *patch.Dept
	}
	if patch.RiskScore != nil {
		rec.RiskScore = *patch.RiskScore
	}
	if patch.Emails != nil {
		rec.Emails = patch.Emails
	}
	if patch.Groups != nil {
		for _, gid := range patch.Groups {
			if !s.groupExists(ctx, gid) {
				return nil, badRequest("group %q does not exist", gid)
			}
		}
		rec.Groups = patch.Groups
	}
	rec.LastModified = s.now()
	if err := s.users.Upsert(ctx, *rec); err != nil {
		return nil, translateStoreErr(err)
	}
	if patch.Groups != nil {
		s.invalidateGroupNameCache(ctx, rec.ID)
	}
	return toUser(*rec), nil
}

func (s *Service) groupExists(ctx context.Context, id string) bool {
	_, err := s.groups.Get(ctx, id)
	return err == nil
}

// DeleteUser removes the user record. Groups that referenced it keep
// the dangling member entry in storage: GetGroup and ListGroups filter
// dangling references out on every read, and a PatchGroup replacement
// drops them, but AddMember, RemoveMember and CreateUser's group
// attachment write the stored member list back without removing them.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.users.Delete(ctx, id); err != nil {
		return translateStoreErr(err)
	}
	return nil
}

func (s *Service) CreateGroup(ctx context.Context, req CreateGroupRequest) (*Group, error) {
	if req.DisplayName == "" {
		return nil, badRequest("displayName is required")
	}
	for _, m := range req.Members {
		if !s.users.Exists(ctx, m.Value) {
			return nil, badRequest("member %q does not reference an existing user", m.Value)
		}
	}
	now := s.now()
	rec := store.GroupRecord{
		ID:           store.NewGroupID(),
		DisplayName:  req.DisplayName,
		Members:      req.Members,
		Created:      now,
		LastModified: now,
	}
	if err := s.groups.Upsert(ctx, rec); err != nil {
		return nil, translateStoreErr(err)
	}
	return toGroup(rec), nil
}

func (s *Service) GetGroup(ctx context.Context, id string) (*Group, error) {
	rec, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	s.dropDanglingMembers(ctx, rec)
	return toGroup(*rec), nil
}

func (s *Service) ListGroups(ctx context.Context, rawFilter string) (*ListResponse, error) {
	filter, err := store.ParseFilter(rawFilter)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	recs, err := s.groups.List(ctx, filter)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	resources := make([]any, 0, len(recs))
	for i := range recs {
		s.dropDanglingMembers(ctx, &recs[i])
		resources = append(resources, toGroup(recs[i]))
	}
	return newListResponse(resources), nil
}

// dropDanglingMembers filters out member references to deleted users
// from the read path, satisfying "the list endpoint must not return
// dangling references" without requiring every delete to sweep every
// group eagerly.
func (s *Service) dropDanglingMembers(ctx context.Context, g *store.GroupRecord) {
	live := make([]store.Member, 0, len(g.Members))
	for _, m := range g.Members {
		if s.users.Exists(ctx, m.Value) {
			live = append(live, m)
		}
	}
	g.Members = live
}

func (s *Service) PatchGroup(ctx context.Context, id string, patch GroupPatch) (*Group, error) {
	rec, err := s.groups.Get(ctx, id)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	before := memberIDs(rec.Members)
	seen := make(map[string]bool, len(patch.Members))
	deduped := make([]store.Member, 0, len(patch.Members))
	for _, m := range patch.Members {
		if !s.users.Exists(ctx, m.Value) {
			return nil, badRequest("member %q does not reference an existing user", m.Value)
		}
		if seen[m.Value] {
			continue
		}
		seen[m.Value] = true
		deduped = append(deduped, m)
	}
	rec.Members = deduped
	rec.LastModified = s.now()
	if err := s.groups.Upsert(ctx, *rec); err != nil {
		return nil, translateStoreErr(err)
	}
	s.invalidateGroupNameCache(ctx, append(before, memberIDs(deduped)...)...)
	return toGroup(*rec), nil
}

func (s *Service) AddMember(ctx context.Context, groupID string, member store.Member) (*Group, error) {
	rec, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	if !s.users.Exists(ctx, member.Value) {
		return nil, badRequest("member %q does not reference an existing user", member.Value)
	}
	store.AddMember(rec, member)
	rec.LastModified = s.now()
	if err := s.groups.Upsert(ctx, *rec); err != nil {
		return nil, translateStoreErr(err)
	}
	s.invalidateGroupNameCache(ctx, member.Value)
	return toGroup(*rec), nil
}

func (s *Service) RemoveMember(ctx context.Context, groupID, userID string) (*Group, error) {
	rec, err := s.groups.Get(ctx, groupID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	store.RemoveMember(rec, userID)
	rec.LastModified = s.now()
	if err := s.groups.Upsert(ctx, *rec); err != nil {
		return nil, translateStoreErr(err)
	}
	s.invalidateGroupNameCache(ctx, userID)
	return toGroup(*rec), nil
}

func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	rec, err := s.groups.Delete(ctx, id)
	if err != nil {
		return translateStoreErr(err)
	}
	s.invalidateGroupNameCache(ctx, memberIDs(rec.Members)...)
	return nil
}

func memberIDs(members []store.Member) []string {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.Value
	}
	return ids
}
