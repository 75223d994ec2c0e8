package server

import (
	"backend-tripjournal/internal/access"
	"backend-tripjournal/internal/auth"
	"backend-tripjournal/internal/blob"
	"backend-tripjournal/internal/config"
	"backend-tripjournal/internal/directory"
	"backend-tripjournal/internal/feed"
	"backend-tripjournal/internal/store"
	"backend-tripjournal/internal/trip"
	"backend-tripjournal/internal/watch"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App   *fiber.App
	Cfg   config.Config
	DB    *pgxpool.Pool
	Redis *redis.Client
	Docs  store.Store
	Subs  *watch.Manager
}

func NewServer(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	// Without Postgres the server still comes up on the in-process store
	// so local development does not need infrastructure.
	var docs store.Store = store.NewMemory()
	if pool != nil {
		docs = store.NewPostgres(pool, redisClient)
	}

	s := &Server{
		App:   app,
		Cfg:   cfg,
		DB:    pool,
		Redis: redisClient,
		Docs:  docs,
		Subs:  watch.NewManager(),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	dir := directory.NewService(s.DB)
	blobs := blob.NewService(s.DB)
	trips := trip.NewService(s.Docs, blobs)
	mgr := access.NewManager(s.Docs, dir, access.Policy{
		EditorInviteLevel: access.Level(s.Cfg.EditorInviteLevel),
	})
	feeds := feed.NewService(s.Docs, dir, s.Subs)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, s.DB), s.Subs)
	trip.RegisterRoutes(s.App.Group("/trips"), trips, jwtMiddleware)
	access.RegisterShareRoutes(s.App.Group("/trips/:id/share"), mgr, jwtMiddleware)
	access.RegisterJoinRoutes(s.App.Group("/join"), mgr, jwtMiddleware)
	feed.RegisterRoutes(s.App.Group("/discover"), feeds, jwtMiddleware)
	blob.RegisterRoutes(s.App.Group("/storage"), blobs, jwtMiddleware)
}
