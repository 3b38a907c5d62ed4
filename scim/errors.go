package scim

import (
	"errors"
	"fmt"

	"github.com/oarkflow/identityd/store"
)

// Kind identifies why a SCIM operation failed.
type Kind string

const (
	KindBadRequest Kind = "BadRequest"
	KindNotFound   Kind = "NotFound"
	KindConflict   Kind = "Conflict"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func badRequest(format string, a ...any) error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, a...)}
}

func notFound(format string, a ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, a...)}
}

func conflict(format string, a ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, a...)}
}

// translateStoreErr maps a store.Error to the equivalent scim.Error
// kind, the single boundary translation the facade pattern calls for.
func translateStoreErr(err error) error {
	var se *store.Error
	if errors.As(err, &se) {
		switch se.Kind {
		case store.KindNotFound:
			return notFound("%s", se.Message)
		case store.KindConflict:
			return conflict("%s", se.Message)
		case store.KindBadFilter:
			return badRequest("%s", se.Message)
		}
	}
	return err
}
