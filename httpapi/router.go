package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oarkflow/identityd/facade"
	"github.com/oarkflow/identityd/pdp"
	"github.com/oarkflow/identityd/scim"
	"github.com/oarkflow/identityd/token"
)

// AdminGroup is the group membership checked as a cheap, defense-in-
// depth gate ahead of the reload handler's own PDP evaluation. It
// must be present in the default PolicySet's own rules too, so the
// endpoint never locks itself out on a fresh boot.
const AdminGroup = "ADMINS"

// New wires the HTTP surface in spec.md §6 onto a fiber.App. No
// business logic lives here — every handler delegates to the
// facade/token/scim services constructed by the caller.
func New(tokens *token.Service, scimSvc *scim.Service, authz *facade.Service, loader *pdp.Loader) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(correlationID())

	h := &handlers{tokens: tokens, scim: scimSvc, authz: authz, loader: loader}

	app.Get("/auth/health", h.health)
	app.Get("/authz/health", h.health)

	app.Post("/auth/token", h.issueToken)
	app.Get("/auth/me", bearerAuth(tokens), h.me)

	scimGroup := app.Group("/scim/v2")
	scimGroup.Post("/Users", h.createUser)
	scimGroup.Get("/Users/:id", h.getUser)
	scimGroup.Get("/Users", h.listUsers)
	scimGroup.Patch("/Users/:id", h.patchUser)
	scimGroup.Delete("/Users/:id", h.deleteUser)

	scimGroup.Post("/Groups", h.createGroup)
	scimGroup.Get("/Groups/:id", h.getGroup)
	scimGroup.Get("/Groups", h.listGroups)
	scimGroup.Patch("/Groups/:id", h.patchGroup)
	scimGroup.Delete("/Groups/:id", h.deleteGroup)
	scimGroup.Post("/Groups/:id/members", h.addMember)
	scimGroup.Delete("/Groups/:id/members/:userId", h.removeMember)

	authzGroup := app.Group("/authz", bearerAuth(tokens))
	authzGroup.Post("/evaluate", h.evaluate)
	authzGroup.Post("/policies/reload", requireGroup(AdminGroup), h.reloadPolicies)

	return app
}
