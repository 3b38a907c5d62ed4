package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Email is one entry of a User's email list.
type Email struct {
	Value   string `json:"value"`
	Type    string `json:"type,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// PasswordVerifier is a salted hash of a user's password. Hashing
// uses crypto/sha256 with a per-user random salt — the pack carries
// no password-hashing library for either Go or the original Python
// service (passlib/bcrypt are absent from both), so this one piece
// is built on the standard library; see DESIGN.md.
type PasswordVerifier struct {
	Hash string
	Salt string
}

func NewPasswordVerifier(password string) PasswordVerifier {
	salt := make([]byte, 16)
	rand.Read(salt)
	saltHex := hex.EncodeToString(salt)
	return PasswordVerifier{Hash: hashPassword(password, saltHex), Salt: saltHex}
}

func (v PasswordVerifier) Matches(password string) bool {
	if v.Salt == "" {
		return false
	}
	got := hashPassword(password, v.Salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(v.Hash)) == 1
}

func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:])
}

// UserRecord is the Record Store's stored shape of a User. The SCIM
// wire envelope (schemas, meta) is layered on top of this by the scim
// package; the store only knows about the fields it indexes and
// persists.
type UserRecord struct {
	ID           string
	UserName     string
	GivenName    string
	FamilyName   string
	Formatted    string
	Active       bool
	Emails       []Email
	Groups       []string
	Dept         string
	RiskScore    int
	Verifier     *PasswordVerifier
	Created      time.Time
	LastModified time.Time
}

func (u UserRecord) RecordID() string  { return u.ID }
func (u UserRecord) UniqueKey() string { return u.UserName }

// Clone deep-copies Emails and Groups (and the Verifier pointer) so
// the returned record never aliases the backing array/struct of a
// stored or caller-held copy.
func (u UserRecord) Clone() UserRecord {
	out := u
	out.Emails = append([]Email(nil), u.Emails...)
	out.Groups = append([]string(nil), u.Groups...)
	if u.Verifier != nil {
		v := *u.Verifier
		out.Verifier = &v
	}
	return out
}

// UserStore is the Record Store's User collection.
type UserStore struct {
	c *collection[UserRecord]
}

func NewUserStore() *UserStore { return &UserStore{c: newCollection[UserRecord]()} }

func (s *UserStore) Get(ctx context.Context, id string) (*UserRecord, error) {
	v, ok := s.c.get(id)
	if !ok {
		return nil, notFound("user %q", id)
	}
	return &v, nil
}

func (s *UserStore) FindByUserName(ctx context.Context, userName string) (*UserRecord, error) {
	v, ok := s.c.findByKey(userName)
	if !ok {
		return nil, notFound("user with userName %q", userName)
	}
	return &v, nil
}

// List returns every user matching filter, or all users if filter is nil.
func (s *UserStore) List(ctx context.Context, filter *Filter) ([]UserRecord, error) {
	if filter != nil && filter.Attr != "userName" {
		return nil, badFilter("unsupported filter attribute %q", filter.Attr)
	}
	return s.c.list(func(u UserRecord) bool {
		if filter == nil {
			return true
		}
		return normalize(u.UserName) == normalize(filter.Value)
	}), nil
}

// Upsert inserts or replaces a user record, enforcing userName
// uniqueness. On create, callers should already have validated group
// references exist.
func (s *UserStore) Upsert(ctx context.Context, rec UserRecord) error {
	return s.c.upsert(rec)
}

func (s *UserStore) Delete(ctx context.Context, id string) (*UserRecord, error) {
	v, ok := s.c.delete(id)
	if !ok {
		return nil, notFound("user %q", id)
	}
	return &v, nil
}

func (s *UserStore) Exists(ctx context.Context, id string) bool {
	_, ok := s.c.get(id)
	return ok
}
