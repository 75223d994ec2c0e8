package store

import (
	"context"
	"errors"
	"sync"
)

// Document is a stored record as returned by reads and change streams.
type Document map[string]any

// Fields is a partial document used for writes. With merge=true only the
// listed fields are touched; unrelated fields keep their stored values.
type Fields map[string]any

var ErrNotFound = errors.New("document not found")

type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Removed  ChangeKind = "removed"
)

// Change describes one record transition observed by a live query. On
// Removed, Doc carries the last known payload when the record merely
// stopped matching the query, and is nil when the record was deleted.
type Change struct {
	Kind ChangeKind
	ID   string
	Doc  Document
}

type Op string

const (
	OpEq       Op = "eq"
	OpContains Op = "contains"
)

type Cond struct {
	Field string
	Op    Op
	Value any
}

func Eq(field string, value any) Cond {
	return Cond{Field: field, Op: OpEq, Value: value}
}

func Contains(field, value string) Cond {
	return Cond{Field: field, Op: OpContains, Value: value}
}

// Query selects documents of one collection; conditions are ANDed.
type Query struct {
	Collection string
	Where      []Cond
}

func (q Query) Matches(doc Document) bool {
	for _, c := range q.Where {
		if !c.matches(doc) {
			return false
		}
	}
	return true
}

func (c Cond) matches(doc Document) bool {
	v, ok := doc[c.Field]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return looseEqual(v, c.Value)
	case OpContains:
		want, ok := c.Value.(string)
		if !ok {
			return false
		}
		return sliceContains(v, want)
	}
	return false
}

// looseEqual compares values across the numeric widenings a JSON round
// trip introduces (int64 stored, float64 read back).
func looseEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func sliceContains(v any, want string) bool {
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			if s == want {
				return true
			}
		}
	case []any:
		for _, e := range list {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

// Store is the document database consumed by the sharing core. Concrete
// backends: Memory (in-process) and Postgres (JSONB + Redis fan-out).
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, fields Fields, merge bool) error
	Delete(ctx context.Context, collection, id string) error
	List(ctx context.Context, q Query) ([]Document, error)
	Subscribe(ctx context.Context, q Query) (*Handle, error)
}

// Handle is a live query subscription. Changes delivers batches in commit
// order and is closed after Close. Close is idempotent.
type Handle struct {
	Changes <-chan []Change
	Errors  <-chan error

	once sync.Once
	stop func()
}

func (h *Handle) Close() {
	h.once.Do(h.stop)
}

// pump decouples change delivery from the writer: batches are enqueued
// without blocking and forwarded to the subscriber in order.
type pump struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]Change
	closed bool
	done   chan struct{}
}

func newPump() *pump {
	p := &pump{done: make(chan struct{})}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *pump) push(batch []Change) {
	if len(batch) == 0 {
		return
	}
	p.mu.Lock()
	if !p.closed {
		p.queue = append(p.queue, batch)
	}
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *pump) close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()
	p.cond.Signal()
}

func (p *pump) run(out chan<- []Change) {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			close(out)
			return
		}
		batch := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		select {
		case out <- batch:
		case <-p.done:
			close(out)
			return
		}
	}
}

// matcher folds raw record transitions into query-relative change kinds,
// remembering which ids currently match.
type matcher struct {
	query   Query
	matched map[string]struct{}
}

func newMatcher(q Query) *matcher {
	return &matcher{query: q, matched: map[string]struct{}{}}
}

func (m *matcher) apply(id string, doc Document, deleted bool) (Change, bool) {
	_, was := m.matched[id]
	if deleted || !m.query.Matches(doc) {
		if !was {
			return Change{}, false
		}
		delete(m.matched, id)
		if deleted {
			doc = nil
		}
		return Change{Kind: Removed, ID: id, Doc: doc}, true
	}
	m.matched[id] = struct{}{}
	if was {
		return Change{Kind: Modified, ID: id, Doc: doc}, true
	}
	return Change{Kind: Added, ID: id, Doc: doc}, true
}

func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(cloneDocument(t))
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	}
	return v
}
