package feed

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"backend-tripjournal/internal/store"
	"backend-tripjournal/internal/trip"
	"backend-tripjournal/internal/watch"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Service assembles the discover feed, one-shot over store listings or
// live over an aggregator per websocket connection.
type Service struct {
	store store.Store
	names NameResolver
	subs  *watch.Manager

	// Debounce coalesces bursts of stream changes into one rebuild.
	Debounce time.Duration
}

func NewService(st store.Store, names NameResolver, subs *watch.Manager) *Service {
	return &Service{store: st, names: names, subs: subs, Debounce: 50 * time.Millisecond}
}

func invitedQueries(viewerUID string) []store.Query {
	return []store.Query{
		{Collection: trip.Collection, Where: []store.Cond{store.Contains("invitRead", viewerUID)}},
		{Collection: trip.Collection, Where: []store.Cond{store.Contains("invitWrite", viewerUID)}},
	}
}

func sharedQueries(viewerUID string) []store.Query {
	return []store.Query{
		{Collection: trip.Collection, Where: []store.Cond{store.Contains("canRead", viewerUID)}},
		{Collection: trip.Collection, Where: []store.Cond{store.Contains("canWrite", viewerUID)}},
	}
}

// Discover builds the feed once from current store state.
func (s *Service) Discover(ctx context.Context, viewerUID string) ([]Entry, error) {
	invited, err := s.collect(ctx, invitedQueries(viewerUID))
	if err != nil {
		return nil, err
	}
	shared, err := s.collect(ctx, sharedQueries(viewerUID))
	if err != nil {
		return nil, err
	}
	return Build(ctx, viewerUID, invited, shared, s.names), nil
}

func (s *Service) collect(ctx context.Context, queries []store.Query) ([]trip.Trip, error) {
	seen := map[string]struct{}{}
	var trips []trip.Trip
	for _, q := range queries {
		docs, err := s.store.List(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, doc := range docs {
			t := trip.FromDocument(doc)
			if _, ok := seen[t.ID]; ok {
				continue
			}
			seen[t.ID] = struct{}{}
			trips = append(trips, t)
		}
	}
	return trips, nil
}

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		entries, err := svc.Discover(c.Context(), viewerUID(c.Locals("user_id")))
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		if entries == nil {
			entries = []Entry{}
		}
		return c.JSON(entries)
	})

	r.Get("/ws", authMiddleware, websocket.New(func(c *websocket.Conn) {
		svc.stream(c)
	}))
}

// stream pushes a freshly built feed over the socket on every debounced
// change. All subscriptions belong to this connection and are released
// when it ends, so no stream callback outlives the teardown.
func (s *Service) stream(c *websocket.Conn) {
	viewer := viewerUID(c.Locals("user_id"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan []byte, 8)

	var agg *watch.Aggregator
	agg = watch.NewAggregator(s.store, s.subs, s.Debounce, func() {
		entries := Build(ctx, viewer, agg.Snapshot("invited"), agg.Snapshot("shared"), s.names)
		if entries == nil {
			entries = []Entry{}
		}
		payload, err := json.Marshal(entries)
		if err != nil {
			return
		}
		// Every payload is the full feed, so dropping one for a slow
		// reader is safe; the next rebuild resends everything.
		select {
		case send <- payload:
		default:
		}
	}, func(err error) {
		log.Printf("discover stream error: %v", err)
	})
	agg.Supersede("shared", "invited")
	defer agg.Close()

	for _, q := range invitedQueries(viewer) {
		if err := agg.Attach(ctx, "invited", q); err != nil {
			log.Printf("discover attach error: %v", err)
			return
		}
	}
	for _, q := range sharedQueries(viewer) {
		if err := agg.Attach(ctx, "shared", q); err != nil {
			log.Printf("discover attach error: %v", err)
			return
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case msg := <-send:
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	agg.Close()
	close(stop)
	<-done
}

func viewerUID(v any) string {
	uid, _ := v.(string)
	return uid
}
