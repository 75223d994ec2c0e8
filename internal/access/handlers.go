package access

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// RegisterShareRoutes mounts the sharing operations for one trip; r is
// expected to carry an :id parameter.
func RegisterShareRoutes(r fiber.Router, mgr *Manager, authMiddleware fiber.Handler) {
	r.Post("/invite", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Username string `json:"username"`
			Level    Level  `json:"level"`
		}
		if err := c.BodyParser(&body); err != nil || body.Username == "" {
			return fiber.NewError(fiber.StatusBadRequest, "username required")
		}
		if body.Level == "" {
			body.Level = LevelRead
		}
		if !body.Level.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "level must be read or write")
		}
		if err := mgr.Invite(c.Context(), callerUID(c), c.Params("id"), body.Username, body.Level); err != nil {
			return statusError(err)
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	r.Post("/accept", authMiddleware, func(c *fiber.Ctx) error {
		if err := mgr.Accept(c.Context(), callerUID(c), c.Params("id")); err != nil {
			return statusError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/decline", authMiddleware, func(c *fiber.Ctx) error {
		if err := mgr.Decline(c.Context(), callerUID(c), c.Params("id")); err != nil {
			return statusError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Put("/permission", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			UID     string `json:"uid"`
			Pending bool   `json:"pending"`
			Level   Level  `json:"level"`
		}
		if err := c.BodyParser(&body); err != nil || body.UID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "uid required")
		}
		if !body.Level.Valid() {
			return fiber.NewError(fiber.StatusBadRequest, "level must be read or write")
		}
		if err := mgr.ChangePermission(c.Context(), callerUID(c), c.Params("id"), body.UID, body.Pending, body.Level); err != nil {
			return statusError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/remove", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			UID string `json:"uid"`
		}
		if err := c.BodyParser(&body); err != nil || body.UID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "uid required")
		}
		if err := mgr.RemoveMember(c.Context(), callerUID(c), c.Params("id"), body.UID); err != nil {
			return statusError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/toggle", authMiddleware, func(c *fiber.Ctx) error {
		t, err := mgr.ToggleShared(c.Context(), callerUID(c), c.Params("id"))
		if err != nil {
			return statusError(err)
		}
		return c.JSON(t)
	})
}

// RegisterJoinRoutes mounts the self-service share-code join.
func RegisterJoinRoutes(r fiber.Router, mgr *Manager, authMiddleware fiber.Handler) {
	r.Post("/:code", authMiddleware, func(c *fiber.Ctx) error {
		t, err := mgr.Join(c.Context(), callerUID(c), c.Params("code"))
		if err != nil {
			return statusError(err)
		}
		return c.JSON(t)
	})
}

func callerUID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

func statusError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidCode):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyMember):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrSelfInvite):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	}
	return fiber.NewError(fiber.StatusBadGateway, err.Error())
}
