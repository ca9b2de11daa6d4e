// Package poststate keeps live post stock: SQL is the source of truth and
// Redis, when available, is a write-through read cache.
package poststate

import (
	"context"
	"log"
	"sort"
	"time"

	"lineflow/store"
)

const redisTimeout = 2 * time.Second

type Manager struct {
	db    *store.DB
	redis *RedisStore
}

// NewManager accepts a nil redis store, in which case every read hits SQL.
func NewManager(db *store.DB, redis *RedisStore) *Manager {
	return &Manager{db: db, redis: redis}
}

// SetStock writes the stock to SQL, then refreshes the cached copy.
func (m *Manager) SetStock(code string, stock int) error {
	if err := m.db.UpdatePostStock(code, stock); err != nil {
		return err
	}
	m.refreshRedis(code)
	return nil
}

// Get reads a post from Redis and falls back to SQL.
func (m *Manager) Get(code string) (*PostState, error) {
	if m.redis != nil {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		ps, err := m.redis.GetPost(ctx, code)
		cancel()
		if err == nil && ps != nil {
			return ps, nil
		}
	}
	p, err := m.db.GetPost(code)
	if err != nil {
		return nil, err
	}
	return fromStore(p), nil
}

// Line returns every post of a line in route order.
func (m *Manager) Line(lineID string) ([]*PostState, error) {
	if m.redis != nil {
		if states, ok := m.lineFromRedis(lineID); ok {
			return states, nil
		}
	}
	posts, err := m.db.ListPosts(lineID)
	if err != nil {
		return nil, err
	}
	states := make([]*PostState, len(posts))
	for i, p := range posts {
		states[i] = fromStore(p)
	}
	return states, nil
}

func (m *Manager) lineFromRedis(lineID string) ([]*PostState, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	codes, err := m.redis.Codes(ctx)
	if err != nil || len(codes) == 0 {
		return nil, false
	}
	var states []*PostState
	for _, code := range codes {
		ps, err := m.redis.GetPost(ctx, code)
		if err != nil || ps == nil {
			return nil, false
		}
		if ps.LineID == lineID {
			states = append(states, ps)
		}
	}
	if len(states) == 0 {
		return nil, false
	}
	sort.Slice(states, func(i, j int) bool {
		if states[i].Position != states[j].Position {
			return states[i].Position < states[j].Position
		}
		return states[i].Code < states[j].Code
	})
	return states, true
}

// SyncRedisFromSQL rebuilds the cache for a line. Called on startup.
func (m *Manager) SyncRedisFromSQL(lineID string) error {
	if m.redis == nil {
		return nil
	}
	posts, err := m.db.ListPosts(lineID)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := m.redis.Clear(ctx); err != nil {
		return err
	}
	for _, p := range posts {
		if err := m.redis.SetPost(ctx, fromStore(p)); err != nil {
			log.Printf("poststate: sync post %s: %v", p.Code, err)
		}
	}
	log.Printf("poststate: synced %d posts to redis", len(posts))
	return nil
}

func (m *Manager) refreshRedis(code string) {
	if m.redis == nil {
		return
	}
	p, err := m.db.GetPost(code)
	if err != nil {
		log.Printf("poststate: refresh redis for post %s: %v", code, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := m.redis.SetPost(ctx, fromStore(p)); err != nil {
		log.Printf("poststate: refresh redis for post %s: %v", code, err)
	}
}

func fromStore(p *store.Post) *PostState {
	return &PostState{
		Code:      p.Code,
		LineID:    p.LineID,
		Position:  p.Position,
		Capacity:  p.Capacity,
		Stock:     p.Stock,
		TU:        p.TU,
		UpdatedAt: p.UpdatedAt,
	}
}
