package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v3"
)

func TestSaveAndDelete(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	createdAt := time.Now()
	mock.ExpectQuery(`INSERT INTO blob_objects`).
		WithArgs(pgxmock.AnyArg(), "user-1", "https://storage.example/alps.jpg", "image").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))

	svc := NewService(mock)
	obj, err := svc.Save(context.Background(), "user-1", "https://storage.example/alps.jpg", "image")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if obj.ID == "" || obj.OwnerUID != "user-1" {
		t.Fatalf("unexpected object: %+v", obj)
	}

	mock.ExpectExec(`DELETE FROM blob_objects WHERE url`).
		WithArgs("https://storage.example/alps.jpg").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := svc.Delete(context.Background(), "https://storage.example/alps.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// unknown reference deletes zero rows without error
	mock.ExpectExec(`DELETE FROM blob_objects WHERE url`).
		WithArgs("https://storage.example/nosuch.jpg").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := svc.Delete(context.Background(), "https://storage.example/nosuch.jpg"); err != nil {
		t.Fatalf("delete unknown: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUploadHandler(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO blob_objects`).
		WithArgs(pgxmock.AnyArg(), "user-1", "https://storage.example/alps.jpg", "image").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

	app := fiber.New()
	RegisterRoutes(app.Group("/storage"), NewService(mock), func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	})

	body, _ := json.Marshal(map[string]string{"file_name": "alps.jpg", "kind": "image"})
	req := httptest.NewRequest(http.MethodPost, "/storage/upload", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: %v status=%d", err, resp.StatusCode)
	}

	var obj Object
	if err := json.NewDecoder(resp.Body).Decode(&obj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if obj.URL != "https://storage.example/alps.jpg" {
		t.Fatalf("url = %q", obj.URL)
	}
}
