package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Store with full live-query support. Change
// batches are delivered in commit order; writers never block on slow
// subscribers.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	subs        map[*memorySub]struct{}
}

type memorySub struct {
	matcher *matcher
	pump    *pump
}

func NewMemory() *Memory {
	return &Memory{
		collections: map[string]map[string]Document{},
		subs:        map[*memorySub]struct{}{},
	}
}

func (m *Memory) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (m *Memory) Set(_ context.Context, collection, id string, fields Fields, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.collections[collection] == nil {
		m.collections[collection] = map[string]Document{}
	}

	next := Document{}
	if prev, ok := m.collections[collection][id]; ok && merge {
		next = cloneDocument(prev)
	}
	for k, v := range fields {
		next[k] = cloneValue(v)
	}
	m.collections[collection][id] = next

	m.notify(collection, id, next, false)
	return nil
}

func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[collection][id]; !ok {
		return nil
	}
	delete(m.collections[collection], id)
	m.notify(collection, id, nil, true)
	return nil
}

func (m *Memory) List(_ context.Context, q Query) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, doc := range m.collections[q.Collection] {
		if q.Matches(doc) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, cloneDocument(m.collections[q.Collection][id]))
	}
	return docs, nil
}

func (m *Memory) Subscribe(_ context.Context, q Query) (*Handle, error) {
	sub := &memorySub{matcher: newMatcher(q), pump: newPump()}

	m.mu.Lock()
	var snapshot []Change
	var ids []string
	for id := range m.collections[q.Collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if ch, ok := sub.matcher.apply(id, m.collections[q.Collection][id], false); ok {
			ch.Doc = cloneDocument(ch.Doc)
			snapshot = append(snapshot, ch)
		}
	}
	sub.pump.push(snapshot)
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	changes := make(chan []Change)
	errs := make(chan error, 4)
	go sub.pump.run(changes)

	return &Handle{
		Changes: changes,
		Errors:  errs,
		stop: func() {
			m.mu.Lock()
			delete(m.subs, sub)
			m.mu.Unlock()
			sub.pump.close()
		},
	}, nil
}

// notify runs with m.mu held so every subscriber observes writes in the
// same order they committed.
func (m *Memory) notify(collection, id string, doc Document, deleted bool) {
	for sub := range m.subs {
		if sub.matcher.query.Collection != collection {
			continue
		}
		if ch, ok := sub.matcher.apply(id, doc, deleted); ok {
			ch.Doc = cloneDocument(ch.Doc)
			sub.pump.push([]Change{ch})
		}
	}
}
