package feed

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"backend-tripjournal/internal/store"
	"backend-tripjournal/internal/trip"
	"backend-tripjournal/internal/watch"
)

func asUser(uid string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user_id", uid)
		return c.Next()
	}
}

func seed(t *testing.T, st store.Store, tr trip.Trip) {
	t.Helper()
	if err := st.Set(context.Background(), trip.Collection, tr.ID, tr.Document(), false); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestDiscoverHandler(t *testing.T) {
	st := store.NewMemory()
	names := &fakeNames{byUID: map[string]string{"u-dana": "Dana"}}
	svc := NewService(st, names, watch.NewManager())

	invited := tr("aaa111", "u-dana", 200)
	invited.InvitRead = []string{"u-view"}
	seed(t, st, invited)

	shared := tr("bbb222", "u-dana", 100)
	shared.CanRead = []string{"u-view"}
	seed(t, st, shared)

	// writable trips belong under "my trips", not discover
	mine := tr("ccc333", "u-dana", 300)
	mine.CanWrite = []string{"u-view"}
	seed(t, st, mine)

	app := fiber.New()
	RegisterRoutes(app.Group("/discover"), svc, asUser("u-view"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/discover/", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("discover: %v status=%d", err, resp.StatusCode)
	}
	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Trip.ID != "aaa111" || !entries[0].IsInvitation {
		t.Fatalf("expected invitation first, got %+v", entries[0])
	}
	if entries[1].Trip.ID != "bbb222" || entries[1].OwnerLabel != "Trip shared by Dana" {
		t.Fatalf("unexpected shared entry: %+v", entries[1])
	}
}

func TestDiscoverHandlerEmpty(t *testing.T) {
	svc := NewService(store.NewMemory(), &fakeNames{}, watch.NewManager())

	app := fiber.New()
	RegisterRoutes(app.Group("/discover"), svc, asUser("u-view"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/discover/", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("discover: %v status=%d", err, resp.StatusCode)
	}
	body := make([]byte, 4)
	n, _ := resp.Body.Read(body)
	if string(body[:n]) != "[]" {
		t.Fatalf("expected empty array body, got %q", string(body[:n]))
	}
}

func TestStreamPushesInitialAndLiveFeed(t *testing.T) {
	st := store.NewMemory()
	names := &fakeNames{byUID: map[string]string{"u-dana": "Dana"}}
	subs := watch.NewManager()
	svc := NewService(st, names, subs)
	svc.Debounce = 5 * time.Millisecond

	existing := tr("aaa111", "u-dana", 100)
	existing.CanRead = []string{"u-view"}
	seed(t, st, existing)

	app := fiber.New()
	RegisterRoutes(app.Group("/discover"), svc, asUser("u-view"))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	defer ln.Close()

	go func() {
		_ = app.Listener(ln)
	}()
	defer func() { _ = app.Shutdown() }()

	wsURL := "ws://" + ln.Addr().String() + "/discover/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	readFeed := func() []Entry {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read error: %v", err)
		}
		var entries []Entry
		if err := json.Unmarshal(msg, &entries); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		return entries
	}

	deadline := time.Now().Add(2 * time.Second)
	entries := readFeed()
	for len(entries) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("initial feed = %+v", entries)
		}
		entries = readFeed()
	}
	if entries[0].Trip.ID != "aaa111" {
		t.Fatalf("initial feed = %+v", entries)
	}

	fresh := tr("bbb222", "u-dana", 300)
	fresh.InvitRead = []string{"u-view"}
	seed(t, st, fresh)

	deadline = time.Now().Add(2 * time.Second)
	for {
		entries = readFeed()
		if len(entries) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("feed never grew to 2 entries: %+v", entries)
		}
	}
	if entries[0].Trip.ID != "bbb222" || !entries[0].IsInvitation {
		t.Fatalf("expected new invitation first, got %+v", entries)
	}

	if subs.Active() == 0 {
		t.Fatalf("expected live subscriptions while the socket is open")
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for subs.Active() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriptions leaked after close: %d", subs.Active())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamUpgradeRequired(t *testing.T) {
	svc := NewService(store.NewMemory(), &fakeNames{}, watch.NewManager())

	app := fiber.New()
	RegisterRoutes(app.Group("/discover"), svc, asUser("u-view"))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/discover/ws", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}
