package scim

import "github.com/oarkflow/identityd/store"

const (
	userSchema  = "urn:ietf:params:scim:schemas:core:2.0:User"
	groupSchema = "urn:ietf:params:scim:schemas:core:2.0:Group"
	listSchema  = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
)

// Meta is the standardized SCIM resource metadata block.
type Meta struct {
	ResourceType string `json:"resourceType"`
	Created      string `json:"created"`
	LastModified string `json:"lastModified"`
	Location     string `json:"location"`
}

// Name holds a User's given/family/formatted names.
type Name struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	Formatted  string `json:"formatted,omitempty"`
}

// GroupRef is one entry of a User's group list.
type GroupRef struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

// User is the SCIM wire representation of a user resource.
type User struct {
	Schemas   []string     `json:"schemas"`
	ID        string       `json:"id"`
	UserName  string       `json:"userName"`
	Name      Name         `json:"name,omitempty"`
	Active    bool         `json:"active"`
	Emails    []store.Email `json:"emails,omitempty"`
	Groups    []GroupRef   `json:"groups,omitempty"`
	Dept      string       `json:"dept,omitempty"`
	RiskScore int          `json:"riskScore"`
	Meta      Meta         `json:"meta"`
}

// Group is the SCIM wire representation of a group resource.
type Group struct {
	Schemas     []string      `json:"schemas"`
	ID          string        `json:"id"`
	DisplayName string        `json:"displayName"`
	Members     []store.Member `json:"members,omitempty"`
	Meta        Meta          `json:"meta"`
}

// ListResponse is the standardized SCIM list envelope.
type ListResponse struct {
	Schemas      []string `json:"schemas"`
	TotalResults int      `json:"totalResults"`
	Resources    []any    `json:"Resources"`
}

func newListResponse(resources []any) *ListResponse {
	return &ListResponse{Schemas: []string{listSchema}, TotalResults: len(resources), Resources: resources}
}

// CreateUserRequest is the body of POST /scim/v2/Users.
type CreateUserRequest struct {
	UserName string        `json:"userName"`
	Name     Name          `json:"name,omitempty"`
	Password string        `json:"password,omitempty"`
	Active   *bool         `json:"active,omitempty"`
	Emails   []store.Email `json:"emails,omitempty"`
	Groups   []string      `json:"groups,omitempty"` // group displayNames, validated to exist
	Dept     string        `json:"dept,omitempty"`
	RiskScore int          `json:"riskScore,omitempty"`
}

// UserPatch is the body of PATCH /scim/v2/Users/{id}: a partial
// update of active, dept, riskScore, emails, groups.
type UserPatch struct {
	Active    *bool         `json:"active,omitempty"`
	Dept      *string       `json:"dept,omitempty"`
	RiskScore *int          `json:"riskScore,omitempty"`
	Emails    []store.Email `json:"emails,omitempty"`
	Groups    []string      `json:"groups,omitempty"` // group ids, full replacement
}

// CreateGroupRequest is the body of POST /scim/v2/Groups.
type CreateGroupRequest struct {
	DisplayName string         `json:"displayName"`
	Members     []store.Member `json:"members,omitempty"`
}

// GroupPatch replaces a group's member list wholesale.
type GroupPatch struct {
	Members []store.Member `json:"members"`
}

func toUser(rec store.UserRecord) *User {
	groups := make([]GroupRef, 0, len(rec.Groups))
	for _, gid := range rec.Groups {
		groups = append(groups, GroupRef{Value: gid})
	}
	return &User{
		Schemas:   []string{userSchema},
		ID:        rec.ID,
		UserName:  rec.UserName,
		Name:      Name{GivenName: rec.GivenName, FamilyName: rec.FamilyName, Formatted: rec.Formatted},
		Active:    rec.Active,
		Emails:    rec.Emails,
		Groups:    groups,
		Dept:      rec.Dept,
		RiskScore: rec.RiskScore,
		Meta: Meta{
			ResourceType: "User",
			Created:      rec.Created.Format(timeLayout),
			LastModified: rec.LastModified.Format(timeLayout),
			Location:     "/scim/v2/Users/" + rec.ID,
		},
	}
}

func toGroup(rec store.GroupRecord) *Group {
	return &Group{
		Schemas:     []string{groupSchema},
		ID:          rec.ID,
		DisplayName: rec.DisplayName,
		Members:     rec.Members,
		Meta: Meta{
			ResourceType: "Group",
			Created:      rec.Created.Format(timeLayout),
			LastModified: rec.LastModified.Format(timeLayout),
			Location:     "/scim/v2/Groups/" + rec.ID,
		},
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
