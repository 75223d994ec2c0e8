package trip

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"backend-tripjournal/internal/store"
)

func asUser(uid string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", uid)
		return c.Next()
	}
}

func jsonReq(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestTripHandlers(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, nil)

	app := fiber.New()
	RegisterRoutes(app.Group("/trips"), svc, asUser("u-dana"))

	resp, err := app.Test(jsonReq(t, http.MethodPost, "/trips/", fiber.Map{"title": "Alps", "ownerUid": "u-forged"}))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %v status=%d", err, resp.StatusCode)
	}
	var created Trip
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.OwnerUID != "u-dana" {
		t.Fatalf("owner must come from the token, got %q", created.OwnerUID)
	}

	resp, err = app.Test(jsonReq(t, http.MethodGet, "/trips/"+created.ID, nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get: %v status=%d", err, resp.StatusCode)
	}

	resp, err = app.Test(jsonReq(t, http.MethodPut, "/trips/"+created.ID, fiber.Map{"title": "Dolomites"}))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %v status=%d", err, resp.StatusCode)
	}
	var updated Trip
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Title != "Dolomites" {
		t.Fatalf("update not applied: %+v", updated)
	}

	resp, err = app.Test(jsonReq(t, http.MethodGet, "/trips/mine", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("mine: %v status=%d", err, resp.StatusCode)
	}
	var mine []Trip
	if err := json.NewDecoder(resp.Body).Decode(&mine); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected one trip, got %v", mine)
	}

	resp, err = app.Test(jsonReq(t, http.MethodDelete, "/trips/"+created.ID, nil))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: %v status=%d", err, resp.StatusCode)
	}
	resp, err = app.Test(jsonReq(t, http.MethodGet, "/trips/"+created.ID, nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: %v status=%d", err, resp.StatusCode)
	}
}

func TestTripHandlersErrors(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, nil)

	owner := fiber.New()
	RegisterRoutes(owner.Group("/trips"), svc, asUser("u-dana"))

	resp, err := owner.Test(jsonReq(t, http.MethodPost, "/trips/", fiber.Map{}))
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing title: %v status=%d", err, resp.StatusCode)
	}

	resp, err = owner.Test(jsonReq(t, http.MethodPost, "/trips/", fiber.Map{"title": "Alps", "id": "ab12cd"}))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %v status=%d", err, resp.StatusCode)
	}
	resp, err = owner.Test(jsonReq(t, http.MethodPost, "/trips/", fiber.Map{"title": "Dup", "id": "AB12CD"}))
	if err != nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate code: %v status=%d", err, resp.StatusCode)
	}

	stranger := fiber.New()
	RegisterRoutes(stranger.Group("/trips"), svc, asUser("u-stranger"))

	resp, err = stranger.Test(jsonReq(t, http.MethodGet, "/trips/ab12cd", nil))
	if err != nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger get: %v status=%d", err, resp.StatusCode)
	}
	resp, err = stranger.Test(jsonReq(t, http.MethodDelete, "/trips/ab12cd", nil))
	if err != nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger delete: %v status=%d", err, resp.StatusCode)
	}
	resp, err = stranger.Test(jsonReq(t, http.MethodGet, "/trips/nosuch", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing trip: %v status=%d", err, resp.StatusCode)
	}
}
