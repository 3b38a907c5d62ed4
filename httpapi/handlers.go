package httpapi

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/oarkflow/identityd/facade"
	"github.com/oarkflow/identityd/pdp"
	"github.com/oarkflow/identityd/scim"
	"github.com/oarkflow/identityd/store"
	"github.com/oarkflow/identityd/token"
)

type handlers struct {
	tokens *token.Service
	scim   *scim.Service
	authz  *facade.Service
	loader *pdp.Loader
}

type tokenRequest struct {
	GrantType    string   `json:"grant_type"`
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scope        []string `json:"scope,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (h *handlers) issueToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, scimBadRequest(err))
	}

	var (
		tok string
		err error
	)
	switch req.GrantType {
	case "password":
		tok, err = h.tokens.IssuePassword(c.Context(), req.Username, req.Password)
	case "client_credentials":
		tok, err = h.tokens.IssueClientCredentials(c.Context(), req.ClientID, req.ClientSecret, req.Scope)
	default:
		return writeError(c, scimBadRequestf("unsupported grant_type %q", req.GrantType))
	}
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(tokenResponse{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   h.tokens.ExpiresInSeconds(),
	})
}

func (h *handlers) me(c *fiber.Ctx) error {
	return c.JSON(claimsFrom(c))
}

func (h *handlers) createUser(c *fiber.Ctx) error {
	var req scim.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, scimBadRequest(err))
	}
	user, err := h.scim.CreateUser(c.Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

func (h *handlers) getUser(c *fiber.Ctx) error {
	user, err := h.scim.GetUser(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(user)
}

func (h *handlers) listUsers(c *fiber.Ctx) error {
	res, err := h.scim.ListUsers(c.Context(), c.Query("filter"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *handlers) patchUser(c *fiber.Ctx) error {
	var patch scim.UserPatch
	if err := c.BodyParser(&patch); err != nil {
		return writeError(c, scimBadRequest(err))
	}
	user, err := h.scim.PatchUser(c.Context(), c.Params("id"), patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(user)
}

func (h *handlers) deleteUser(c *fiber.Ctx) error {
	if err := h.scim.DeleteUser(c.Context(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handlers) createGroup(c *fiber.Ctx) error {
	var req scim.CreateGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, scimBadRequest(err))
	}
	group, err := h.scim.CreateGroup(c.Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(group)
}

func (h *handlers) getGroup(c *fiber.Ctx) error {
	group, err := h.scim.GetGroup(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(group)
}

func (h *handlers) listGroups(c *fiber.Ctx) error {
	res, err := h.scim.ListGroups(c.Context(), c.Query("filter"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

func (h *handlers) patchGroup(c *fiber.Ctx) error {
	var patch scim.GroupPatch
	if err := c.BodyParser(&patch); err != nil {
		return writeError(c, scimBadRequest(err))
	}
	group, err := h.scim.PatchGroup(c.Context(), c.Params("id"), patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(group)
}

func (h *handlers) deleteGroup(c *fiber.Ctx) error {
	if err := h.scim.DeleteGroup(c.Context(), c.Params("id")); err != nil {
		return writeError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type addMemberRequest struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

func (h *handlers) addMember(c *fiber.Ctx) error {
	var req addMemberRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, scimBadRequest(err))
	}
	group, err := h.scim.AddMember(c.Context(), c.Params("id"), store.Member{Value: req.Value, Display: req.Display})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(group)
}

func (h *handlers) removeMember(c *fiber.Ctx) error {
	group, err := h.scim.RemoveMember(c.Context(), c.Params("id"), c.Params("userId"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(group)
}

func (h *handlers) evaluate(c *fiber.Ctx) error {
	var req pdp.Request
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, scimBadRequest(err))
	}
	claims := claimsFrom(c)
	subjectSub := ""
	if claims != nil {
		subjectSub = claims.Subject
	}
	dec, corrID, err := h.authz.Evaluate(c.Context(), &req, subjectSub, c.Get("X-Correlation-ID"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set("X-Correlation-ID", corrID)
	return c.JSON(dec)
}

// reloadPolicies is gated by the PDP itself, evaluating a
// "policies:reload" request against the subject derived from the
// caller's bearer claims — the requireGroup middleware ahead of this
// handler is defense-in-depth, not the authorization decision.
func (h *handlers) reloadPolicies(c *fiber.Ctx) error {
	claims := claimsFrom(c)
	req := &pdp.Request{
		Subject: map[string]any{
			"sub":       claims.Subject,
			"groups":    toAnySlice(claims.Groups),
			"dept":      claims.Dept,
			"riskScore": claims.RiskScore,
		},
		Resource: map[string]any{"type": "policies"},
		Context:  map[string]any{},
		Action:   "policies:reload",
	}
	dec, corrID, err := h.authz.Evaluate(c.Context(), req, claims.Subject, c.Get("X-Correlation-ID"))
	if err != nil {
		return writeError(c, err)
	}
	c.Set("X-Correlation-ID", corrID)
	if dec.Decision != pdp.EffectPermit {
		return writeError(c, errForbidden)
	}

	if err := h.loader.Reload(); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"status": "reloaded"})
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (h *handlers) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func scimBadRequest(err error) error {
	return &scim.Error{Kind: scim.KindBadRequest, Message: fmt.Sprintf("malformed request body: %v", err)}
}

func scimBadRequestf(format string, a ...any) error {
	return &scim.Error{Kind: scim.KindBadRequest, Message: fmt.Sprintf(format, a...)}
}
