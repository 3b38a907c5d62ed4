package token

import "fmt"

// Kind identifies why a token operation failed, mirroring the
// taxonomy the facade translates to HTTP status codes at the boundary.
type Kind string

const (
	KindBadCredentials       Kind = "BadCredentials"
	KindTokenMalformed       Kind = "TokenMalformed"
	KindTokenExpired         Kind = "TokenExpired"
	KindTokenSignatureInvalid Kind = "TokenSignatureInvalid"
	KindTokenAlgorithmMismatch Kind = "TokenAlgorithmMismatch"
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func badCredentials(format string, a ...any) error {
	return &Error{Kind: KindBadCredentials, Message: fmt.Sprintf(format, a...)}
}

// BadCredentials constructs the typed error a UserLookup/ClientLookup
// implementation should return for an invalid or inactive credential.
func BadCredentials(format string, a ...any) error {
	return badCredentials(format, a...)
}

func malformed(err error) error {
	return &Error{Kind: KindTokenMalformed, Message: "malformed token", Err: err}
}

func expired() error {
	return &Error{Kind: KindTokenExpired, Message: "token expired"}
}

func signatureInvalid(err error) error {
	return &Error{Kind: KindTokenSignatureInvalid, Message: "signature verification failed", Err: err}
}

func algorithmMismatch(got, want string) error {
	return &Error{Kind: KindTokenAlgorithmMismatch, Message: fmt.Sprintf("token alg %q does not match configured %q", got, want)}
}
