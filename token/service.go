package token

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserLookup authenticates a password-grant credential against the
// Record Store. A nil Identity with a nil error must never be
// returned; failure is always a typed error.
type UserLookup interface {
	AuthenticateUser(ctx context.Context, username, password string) (Identity, error)
}

// ClientLookup authenticates a client_credentials-grant credential
// against the pre-configured client map.
type ClientLookup interface {
	AuthenticateClient(ctx context.Context, clientID, clientSecret string, requestedScope []string) (Identity, error)
}

// Service issues and validates bearer tokens. The signing key is
// fixed at construction and never mutated for the process lifetime.
type Service struct {
	alg     string
	hmacKey []byte
	rsaPriv *rsa.PrivateKey
	rsaPub  *rsa.PublicKey
	ttl     time.Duration
	users   UserLookup
	clients ClientLookup
	now     func() time.Time
}

// NewHS256Service constructs a Service signing with a symmetric secret.
func NewHS256Service(secret []byte, ttl time.Duration, users UserLookup, clients ClientLookup) *Service {
	return &Service{alg: "HS256", hmacKey: secret, ttl: ttl, users: users, clients: clients, now: time.Now}
}

// NewRS256Service constructs a Service signing with an RSA keypair.
func NewRS256Service(priv *rsa.PrivateKey, pub *rsa.PublicKey, ttl time.Duration, users UserLookup, clients ClientLookup) *Service {
	return &Service{alg: "RS256", rsaPriv: priv, rsaPub: pub, ttl: ttl, users: users, clients: clients, now: time.Now}
}

// ExpiresInSeconds is the TTL this service issues tokens with,
// reported back to callers building the token response body.
func (s *Service) ExpiresInSeconds() int {
	return int(s.ttl / time.Second)
}

// IssuePassword handles grant_type=password.
func (s *Service) IssuePassword(ctx context.Context, username, password string) (string, error) {
	id, err := s.users.AuthenticateUser(ctx, username, password)
	if err != nil {
		return "", err
	}
	return s.sign(newClaims(id, id.DefaultScope, s.now(), s.ttl))
}

// IssueClientCredentials handles grant_type=client_credentials.
func (s *Service) IssueClientCredentials(ctx context.Context, clientID, clientSecret string, scope []string) (string, error) {
	id, err := s.clients.AuthenticateClient(ctx, clientID, clientSecret, scope)
	if err != nil {
		return "", err
	}
	effectiveScope := scope
	if len(effectiveScope) == 0 {
		effectiveScope = id.DefaultScope
	}
	return s.sign(newClaims(id, effectiveScope, s.now(), s.ttl))
}

func (s *Service) sign(claims *Claims) (string, error) {
	var method jwt.SigningMethod
	var key any
	switch s.alg {
	case "HS256":
		method, key = jwt.SigningMethodHS256, s.hmacKey
	case "RS256":
		method, key = jwt.SigningMethodRS256, s.rsaPriv
	default:
		return "", badCredentials("unsupported signing algorithm %q", s.alg)
	}
	tok := jwt.NewWithClaims(method, claims)
	return tok.SignedString(key)
}

// Validate parses and verifies a bearer token, rejecting it if the
// signature is invalid, the algorithm doesn't match the configured
// one, or exp <= now.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		switch s.alg {
		case "HS256":
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, algorithmMismatchToken(t.Method.Alg(), s.alg)
			}
			return s.hmacKey, nil
		case "RS256":
			if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, algorithmMismatchToken(t.Method.Alg(), s.alg)
			}
			return s.rsaPub, nil
		default:
			return nil, badCredentials("unsupported signing algorithm %q", s.alg)
		}
	}, jwt.WithExpirationRequired())

	if err != nil {
		return nil, classifyParseError(err)
	}
	return claims, nil
}

type algMismatchErr struct{ got, want string }

func (e *algMismatchErr) Error() string { return "algorithm mismatch" }

func algorithmMismatchToken(got, want string) error {
	return &algMismatchErr{got: got, want: want}
}

func classifyParseError(err error) error {
	var mismatch *algMismatchErr
	if errors.As(err, &mismatch) {
		return algorithmMismatch(mismatch.got, mismatch.want)
	}
	if errors.Is(err, jwt.ErrTokenExpired) {
		return expired()
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return signatureInvalid(err)
	}
	return malformed(err)
}
