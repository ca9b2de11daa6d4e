package poststate

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineflow/config"
	"lineflow/store"
)

func seededDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "state.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = db.SeedPosts([]*store.Post{
		{Code: "P2", LineID: "L1", Position: 2, Capacity: 10, Stock: 10},
		{Code: "P1", LineID: "L1", Position: 1, Capacity: 5, Stock: 5, TU: time.Second},
	})
	require.NoError(t, err)
	return db
}

// unreachableRedis returns a store whose every call fails fast.
func unreachableRedis(t *testing.T) *RedisStore {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func TestManagerSQLOnly(t *testing.T) {
	m := NewManager(seededDB(t), nil)

	require.NoError(t, m.SetStock("P1", 2))
	ps, err := m.Get("P1")
	require.NoError(t, err)
	assert.Equal(t, 2, ps.Stock)
	assert.Equal(t, time.Second, ps.TU)

	line, err := m.Line("L1")
	require.NoError(t, err)
	require.Len(t, line, 2)
	assert.Equal(t, "P1", line[0].Code)
	assert.Equal(t, "P2", line[1].Code)

	assert.NoError(t, m.SyncRedisFromSQL("L1"))
	assert.ErrorIs(t, m.SetStock("P9", 1), store.ErrNotFound)
	_, err = m.Get("P9")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestManagerFallsBackWhenRedisDown(t *testing.T) {
	m := NewManager(seededDB(t), unreachableRedis(t))

	// The SQL write succeeds even though the cache refresh fails.
	require.NoError(t, m.SetStock("P2", 7))
	ps, err := m.Get("P2")
	require.NoError(t, err)
	assert.Equal(t, 7, ps.Stock)

	line, err := m.Line("L1")
	require.NoError(t, err)
	assert.Len(t, line, 2)

	assert.Error(t, m.SyncRedisFromSQL("L1"))
}

func TestPostKey(t *testing.T) {
	assert.Equal(t, "lineflow:post:P1", postKey("P1"))
}
