package blob

import (
	"context"
	"time"

	"backend-tripjournal/internal/db"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Service records uploaded media objects and serves the deletion cascade
// when a trip goes away.
type Service struct {
	db db.Querier
}

type Object struct {
	ID        string    `json:"id"`
	OwnerUID  string    `json:"owner_uid"`
	URL       string    `json:"url"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

func NewService(q db.Querier) *Service {
	return &Service{db: q}
}

func (s *Service) Save(ctx context.Context, ownerUID, url, kind string) (Object, error) {
	obj := Object{ID: uuid.NewString(), OwnerUID: ownerUID, URL: url, Kind: kind}
	row := s.db.QueryRow(ctx, `
		INSERT INTO blob_objects (id, owner_uid, url, kind)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at
	`, obj.ID, obj.OwnerUID, obj.URL, obj.Kind)
	if err := row.Scan(&obj.CreatedAt); err != nil {
		return Object{}, err
	}
	return obj, nil
}

// Delete removes an object by its URL reference. Deleting an unknown
// reference is a no-op.
func (s *Service) Delete(ctx context.Context, ref string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM blob_objects WHERE url=$1`, ref)
	return err
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/upload", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			FileName string `json:"file_name"`
			Kind     string `json:"kind"`
		}
		_ = c.BodyParser(&body)
		if body.FileName == "" {
			body.FileName = "upload"
		}
		uid, _ := c.Locals("user_id").(string)
		url := "https://storage.example/" + body.FileName
		obj, err := svc.Save(c.Context(), uid, url, body.Kind)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(obj)
	})
}
