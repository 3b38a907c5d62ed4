package scim

import (
	"context"

	"github.com/oarkflow/identityd/token"
)

// UserAuthenticator adapts the Record Store's User collection to
// token.UserLookup: it verifies the password credential and rejects
// an inactive user as BadCredentials.
type UserAuthenticator struct {
	users  Users
	groups Groups
	cache  *GroupNameCache
}

func NewUserAuthenticator(users Users, groups Groups) *UserAuthenticator {
	return &UserAuthenticator{users: users, groups: groups}
}

// WithGroupNameCache attaches an optional Redis-backed cache so group
// display-name resolution on the token-issuance hot path skips a
// Record Store round trip per membership on a cache hit.
func (a *UserAuthenticator) WithGroupNameCache(cache *GroupNameCache) *UserAuthenticator {
	a.cache = cache
	return a
}

func (a *UserAuthenticator) AuthenticateUser(ctx context.Context, username, password string) (token.Identity, error) {
	rec, err := a.users.FindByUserName(ctx, username)
	if err != nil {
		return token.Identity{}, token.BadCredentials("unknown username or password")
	}
	if rec.Verifier == nil || !rec.Verifier.Matches(password) {
		return token.Identity{}, token.BadCredentials("unknown username or password")
	}
	if !rec.Active {
		return token.Identity{}, token.BadCredentials("user is inactive")
	}
	return token.Identity{
		Subject:      rec.ID,
		Groups:       a.groupDisplayNames(ctx, rec.ID, rec.Groups),
		Dept:         rec.Dept,
		RiskScore:    rec.RiskScore,
		DefaultScope: []string{"read"},
	}, nil
}

func (a *UserAuthenticator) groupDisplayNames(ctx context.Context, userID string, groupIDs []string) []string {
	if a.cache != nil {
		if cached, ok := a.cache.Get(ctx, userID); ok {
			return cached
		}
	}
	names := make([]string, 0, len(groupIDs))
	for _, id := range groupIDs {
		if g, err := a.groups.Get(ctx, id); err == nil {
			names = append(names, g.DisplayName)
		}
	}
	if a.cache != nil {
		_ = a.cache.Set(ctx, userID, names)
	}
	return names
}

// StaticClientStore authenticates client_credentials grants against a
// pre-configured map — no Record Store involvement for machine
// clients.
type StaticClientStore struct {
	clients map[string]clientEntry
}

type clientEntry struct {
	secret       string
	defaultScope []string
}

func NewStaticClientStore() *StaticClientStore {
	return &StaticClientStore{clients: make(map[string]clientEntry)}
}

func (s *StaticClientStore) Register(clientID, clientSecret string, defaultScope []string) {
	s.clients[clientID] = clientEntry{secret: clientSecret, defaultScope: defaultScope}
}

func (s *StaticClientStore) AuthenticateClient(ctx context.Context, clientID, clientSecret string, requestedScope []string) (token.Identity, error) {
	c, ok := s.clients[clientID]
	if !ok || c.secret != clientSecret {
		return token.Identity{}, token.BadCredentials("unknown client or secret")
	}
	return token.Identity{Subject: clientID, DefaultScope: c.defaultScope}, nil
}
