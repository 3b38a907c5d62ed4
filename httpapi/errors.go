package httpapi

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/oarkflow/identityd/pdp"
	"github.com/oarkflow/identityd/scim"
	"github.com/oarkflow/identityd/store"
	"github.com/oarkflow/identityd/token"
)

// writeError is the single boundary translation from a leaf component's
// typed error kind to an HTTP status + JSON body, per the error
// handling design's "facade translates once at the boundary" rule.
func writeError(c *fiber.Ctx, err error) error {
	status, kind, msg := classify(err)
	return c.Status(status).JSON(fiber.Map{
		"error":   kind,
		"message": msg,
	})
}

func classify(err error) (status int, kind string, msg string) {
	var scimErr *scim.Error
	if errors.As(err, &scimErr) {
		switch scimErr.Kind {
		case scim.KindBadRequest:
			return http.StatusBadRequest, "BadRequest", scimErr.Message
		case scim.KindNotFound:
			return http.StatusNotFound, "NotFound", scimErr.Message
		case scim.KindConflict:
			return http.StatusConflict, "Conflict", scimErr.Message
		}
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch storeErr.Kind {
		case store.KindNotFound:
			return http.StatusNotFound, "NotFound", storeErr.Message
		case store.KindConflict:
			return http.StatusConflict, "Conflict", storeErr.Message
		case store.KindBadFilter:
			return http.StatusBadRequest, "BadRequest", storeErr.Message
		}
	}

	var tokenErr *token.Error
	if errors.As(err, &tokenErr) {
		return http.StatusUnauthorized, string(tokenErr.Kind), tokenErr.Message
	}

	var pdpErr *pdp.Error
	if errors.As(err, &pdpErr) {
		return http.StatusInternalServerError, string(pdpErr.Kind), pdpErr.Message
	}

	if errors.Is(err, errForbidden) {
		return http.StatusForbidden, "Forbidden", err.Error()
	}

	return http.StatusInternalServerError, "Internal", err.Error()
}

var errForbidden = errors.New("forbidden")
