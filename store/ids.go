package store

import "github.com/google/uuid"

// NewUserID and NewGroupID mint record ids in the usr_/grp_ slug
// format: a fixed prefix followed by the first 8 hex characters of a
// random UUID.
func NewUserID() string  { return "usr_" + uuidSlug() }
func NewGroupID() string { return "grp_" + uuidSlug() }

func uuidSlug() string {
	id := uuid.New().String()
	// uuid.String() is "xxxxxxxx-xxxx-...": the first 8 characters are
	// already hex digits with no separator.
	return id[:8]
}
