package store

import "fmt"

// Kind identifies why a Record Store operation failed.
type Kind string

const (
	KindNotFound  Kind = "NotFound"
	KindConflict  Kind = "Conflict"
	KindBadFilter Kind = "BadFilter"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func notFound(format string, a ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, a...)}
}

func conflict(format string, a ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, a...)}
}

func badFilter(format string, a ...any) error {
	return &Error{Kind: KindBadFilter, Message: fmt.Sprintf(format, a...)}
}
