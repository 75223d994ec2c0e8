package watch

import (
	"context"
	"sync"
	"time"

	"backend-tripjournal/internal/store"
	"backend-tripjournal/internal/trip"
)

// Aggregator folds one or more live query streams into named feeds, each a
// map from trip id to the latest known payload in insertion order. Change
// batches are applied in delivery order; recomputes are debounced but
// always fire at least once after the last change in a burst. Stream
// errors are reported and the last-known-good state is kept.
type Aggregator struct {
	store    store.Store
	subs     *Manager
	debounce time.Duration
	onChange func()
	onError  func(error)

	mu      sync.Mutex
	feeds   map[string]*feedView
	handles []*store.Handle
	evicts  map[string]string
	timer   *time.Timer
	closed  bool
}

type feedView struct {
	queries []store.Query
	order   []string
	trips   map[string]trip.Trip
}

func NewAggregator(st store.Store, subs *Manager, debounce time.Duration, onChange func(), onError func(error)) *Aggregator {
	return &Aggregator{
		store:    st,
		subs:     subs,
		debounce: debounce,
		onChange: onChange,
		onError:  onError,
		feeds:    map[string]*feedView{},
		evicts:   map[string]string{},
	}
}

// Supersede declares that an upsert into winner evicts the same trip id
// from loser. Active membership supersedes a stale pending-invitation
// entry even when the two streams deliver out of order.
func (a *Aggregator) Supersede(winner, loser string) {
	a.mu.Lock()
	a.evicts[winner] = loser
	a.mu.Unlock()
}

// Attach subscribes a live query into the named feed. A feed may aggregate
// several queries; a record leaving one of them is kept as long as a
// sibling query still matches it.
func (a *Aggregator) Attach(ctx context.Context, feed string, q store.Query) error {
	h, err := a.store.Subscribe(ctx, q)
	if err != nil {
		return err
	}
	a.subs.Track(h)

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.subs.Release(h)
		return nil
	}
	fv := a.feeds[feed]
	if fv == nil {
		fv = &feedView{trips: map[string]trip.Trip{}}
		a.feeds[feed] = fv
	}
	queryIdx := len(fv.queries)
	fv.queries = append(fv.queries, q)
	a.handles = append(a.handles, h)
	a.mu.Unlock()

	go a.drain(feed, queryIdx, h)
	return nil
}

func (a *Aggregator) drain(feed string, queryIdx int, h *store.Handle) {
	for {
		select {
		case batch, ok := <-h.Changes:
			if !ok {
				return
			}
			a.fold(feed, queryIdx, batch)
		case err, ok := <-h.Errors:
			if ok && a.onError != nil {
				a.onError(err)
			}
		}
	}
}

func (a *Aggregator) fold(feed string, queryIdx int, batch []store.Change) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	fv := a.feeds[feed]
	for _, ch := range batch {
		switch ch.Kind {
		case store.Added, store.Modified:
			fv.upsert(ch.ID, trip.FromDocument(ch.Doc))
			if loser := a.evicts[feed]; loser != "" {
				if lv := a.feeds[loser]; lv != nil {
					lv.remove(ch.ID)
				}
			}
		case store.Removed:
			// A record that stopped matching this query but still
			// matches a sibling of the same feed was merely shuffled
			// between streams, not removed.
			if ch.Doc != nil && fv.matchesOther(queryIdx, ch.Doc) {
				fv.upsert(ch.ID, trip.FromDocument(ch.Doc))
			} else {
				fv.remove(ch.ID)
			}
		}
	}
	a.scheduleLocked()
	a.mu.Unlock()
}

// scheduleLocked arms the recompute timer; called with a.mu held.
func (a *Aggregator) scheduleLocked() {
	if a.onChange == nil {
		return
	}
	if a.debounce <= 0 {
		go a.notify()
		return
	}
	if a.timer == nil {
		a.timer = time.AfterFunc(a.debounce, a.notify)
		return
	}
	a.timer.Reset(a.debounce)
}

func (a *Aggregator) notify() {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if !closed {
		a.onChange()
	}
}

// Snapshot returns the feed's trips in insertion order.
func (a *Aggregator) Snapshot(feed string) []trip.Trip {
	a.mu.Lock()
	defer a.mu.Unlock()

	fv := a.feeds[feed]
	if fv == nil {
		return nil
	}
	out := make([]trip.Trip, 0, len(fv.order))
	for _, id := range fv.order {
		out = append(out, fv.trips[id])
	}
	return out
}

// Close releases every subscription this aggregator created. After Close
// no recompute callback fires, so a torn-down subscriber cannot be touched
// by an in-flight stream callback.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
	}
	handles := a.handles
	a.handles = nil
	a.mu.Unlock()

	for _, h := range handles {
		a.subs.Release(h)
	}
}

func (fv *feedView) upsert(id string, t trip.Trip) {
	if _, ok := fv.trips[id]; !ok {
		fv.order = append(fv.order, id)
	}
	fv.trips[id] = t
}

func (fv *feedView) remove(id string) {
	if _, ok := fv.trips[id]; !ok {
		return
	}
	delete(fv.trips, id)
	for i, existing := range fv.order {
		if existing == id {
			fv.order = append(fv.order[:i], fv.order[i+1:]...)
			break
		}
	}
}

func (fv *feedView) matchesOther(queryIdx int, doc store.Document) bool {
	for i, q := range fv.queries {
		if i != queryIdx && q.Matches(doc) {
			return true
		}
	}
	return false
}
