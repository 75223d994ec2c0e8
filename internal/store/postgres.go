package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"backend-tripjournal/internal/db"

	"github.com/redis/go-redis/v9"
)

// Postgres stores documents as JSONB rows and fans committed writes out
// through Redis pub/sub, one channel per collection, so every process
// replica observes the same change stream.
//
//	CREATE TABLE documents (
//	    collection TEXT NOT NULL,
//	    id         TEXT NOT NULL,
//	    data       JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (collection, id)
//	);
type Postgres struct {
	db    db.Querier
	redis *redis.Client
}

func NewPostgres(q db.Querier, redisClient *redis.Client) *Postgres {
	return &Postgres{db: q, redis: redisClient}
}

type changeEvent struct {
	ID      string          `json:"id"`
	Deleted bool            `json:"deleted,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func changeChannel(collection string) string {
	return "docs:" + collection + ":changes"
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	row := p.db.QueryRow(ctx, `
		SELECT data FROM documents WHERE collection=$1 AND id=$2
	`, collection, id)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return nil, ErrNotFound
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *Postgres) Set(ctx context.Context, collection, id string, fields Fields, merge bool) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	// Merge writes concatenate into the stored JSONB so concurrent edits
	// to unrelated fields are never lost.
	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1,$2,$3)
		ON CONFLICT (collection, id) DO UPDATE
		SET data = documents.data || EXCLUDED.data, updated_at = now()
		RETURNING data
	`
	if !merge {
		query = `
			INSERT INTO documents (collection, id, data)
			VALUES ($1,$2,$3)
			ON CONFLICT (collection, id) DO UPDATE
			SET data = EXCLUDED.data, updated_at = now()
			RETURNING data
		`
	}

	var stored []byte
	if err := p.db.QueryRow(ctx, query, collection, id, payload).Scan(&stored); err != nil {
		return err
	}

	p.publish(ctx, collection, changeEvent{ID: id, Data: stored})
	return nil
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	if _, err := p.db.Exec(ctx, `
		DELETE FROM documents WHERE collection=$1 AND id=$2
	`, collection, id); err != nil {
		return err
	}
	p.publish(ctx, collection, changeEvent{ID: id, Deleted: true})
	return nil
}

func (p *Postgres) List(ctx context.Context, q Query) ([]Document, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, data FROM documents WHERE collection=$1 ORDER BY id
	`, q.Collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, err
		}
		if q.Matches(doc) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (p *Postgres) Subscribe(ctx context.Context, q Query) (*Handle, error) {
	if p.redis == nil {
		return nil, errors.New("live queries require redis")
	}

	pubsub := p.redis.Subscribe(ctx, changeChannel(q.Collection))

	m := newMatcher(q)
	pmp := newPump()

	// Snapshot after subscribing: anything committed in between arrives
	// again over pub/sub and folds into a Modified upsert.
	snapshot, err := p.List(ctx, q)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	var initial []Change
	for _, doc := range snapshot {
		id, _ := doc["id"].(string)
		if ch, ok := m.apply(id, doc, false); ok {
			initial = append(initial, ch)
		}
	}
	pmp.push(initial)

	changes := make(chan []Change)
	errs := make(chan error, 4)
	go pmp.run(changes)

	go func() {
		for msg := range pubsub.Channel() {
			var ev changeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				select {
				case errs <- err:
				default:
				}
				continue
			}
			var doc Document
			if len(ev.Data) > 0 {
				if err := json.Unmarshal(ev.Data, &doc); err != nil {
					select {
					case errs <- err:
					default:
					}
					continue
				}
			}
			if ch, ok := m.apply(ev.ID, doc, ev.Deleted); ok {
				pmp.push([]Change{ch})
			}
		}
		pmp.close()
	}()

	return &Handle{
		Changes: changes,
		Errors:  errs,
		stop: func() {
			_ = pubsub.Close()
			pmp.close()
		},
	}, nil
}

func (p *Postgres) publish(ctx context.Context, collection string, ev changeEvent) {
	if p.redis == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := p.redis.Publish(ctx, changeChannel(collection), payload).Err(); err != nil {
		log.Printf("redis publish error: %v", err)
	}
}
