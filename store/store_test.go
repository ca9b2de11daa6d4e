package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineflow/config"
	"lineflow/health"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", Rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	assert.Equal(t, "UPDATE t SET s = '?' WHERE id = $1", Rebind("UPDATE t SET s = '?' WHERE id = ?"))
	assert.Equal(t, "SELECT 1", Rebind("SELECT 1"))
}

func TestPosts(t *testing.T) {
	db := openTestDB(t)

	added, err := db.SeedPosts([]*Post{
		{Code: "P2", LineID: "L1", Position: 2, Capacity: 10, Stock: 10, TU: 2 * time.Second},
		{Code: "P1", LineID: "L1", Position: 1, Capacity: 5, Stock: 5, TU: 1500 * time.Millisecond},
		{Code: "X1", LineID: "L2", Position: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	// Seeding again leaves existing rows untouched.
	added, err = db.SeedPosts([]*Post{{Code: "P1", LineID: "L1", Position: 1, Capacity: 99, Stock: 99}})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	posts, err := db.ListPosts("L1")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "P1", posts[0].Code)
	assert.Equal(t, 5, posts[0].Capacity)
	assert.Equal(t, 1500*time.Millisecond, posts[0].TU)
	assert.Equal(t, "P2", posts[1].Code)

	require.NoError(t, db.UpdatePostStock("P1", 3))
	p, err := db.GetPost("P1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	require.NoError(t, db.UpsertPost(&Post{Code: "P1", LineID: "L1", Position: 1, Capacity: 8, Stock: 8, TU: time.Second}))
	p, err = db.GetPost("P1")
	require.NoError(t, err)
	assert.Equal(t, 8, p.Capacity)
	assert.Equal(t, time.Second, p.TU)

	_, err = db.GetPost("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.UpdatePostStock("nope", 1), ErrNotFound)
}

func TestMaintenance(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	done := &health.MaintenanceRecord{
		PostID:            "P1",
		Status:            health.MaintenanceCompleted,
		ScheduledDate:     now.AddDate(0, 0, -10),
		CompletedDate:     now.AddDate(0, 0, -9),
		EstimatedDuration: 90 * time.Minute,
	}
	late := &health.MaintenanceRecord{PostID: "P1", Status: health.MaintenanceScheduled, ScheduledDate: now.AddDate(0, 0, -2)}
	future := &health.MaintenanceRecord{PostID: "P1", Status: health.MaintenanceScheduled, ScheduledDate: now.AddDate(0, 0, 5)}
	for _, r := range []*health.MaintenanceRecord{done, late, future} {
		require.NoError(t, db.CreateMaintenance(r))
		assert.NotZero(t, r.ID)
	}

	n, err := db.MarkOverdue(now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err := db.ListMaintenance("P1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, health.MaintenanceCompleted, recs[0].Status)
	assert.Equal(t, now.AddDate(0, 0, -9), recs[0].CompletedDate)
	assert.Equal(t, 90*time.Minute, recs[0].EstimatedDuration)
	assert.Equal(t, health.MaintenanceOverdue, recs[1].Status)
	assert.Equal(t, health.MaintenanceScheduled, recs[2].Status)
	assert.True(t, recs[2].CompletedDate.IsZero())

	require.NoError(t, db.CompleteMaintenance(late.ID, now))
	recs, err = db.ListMaintenance("P1")
	require.NoError(t, err)
	assert.Equal(t, health.MaintenanceCompleted, recs[1].Status)
	assert.Equal(t, now, recs[1].CompletedDate)

	require.NoError(t, db.UpdateMaintenanceStatus(future.ID, health.MaintenanceCancelled))
	assert.ErrorIs(t, db.UpdateMaintenanceStatus(9999, health.MaintenanceCancelled), ErrNotFound)

	empty, err := db.ListMaintenance("P9")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOrders(t *testing.T) {
	db := openTestDB(t)
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	db.SetClock(func() time.Time { return base })

	require.NoError(t, db.CreateOrder(&Order{ID: "o-1", LineID: "L1", Quantity: 3}))
	require.NoError(t, db.CreateOrder(&Order{ID: "o-2", LineID: "L1", Quantity: 5, StartedAt: base.Add(time.Hour)}))

	db.SetClock(func() time.Time { return base.Add(2 * time.Hour) })
	require.NoError(t, db.FinishOrder("o-1", 3, OrderCompleted, ""))
	assert.ErrorIs(t, db.FinishOrder("o-9", 0, OrderFailed, "x"), ErrNotFound)

	o, err := db.GetOrder("o-1")
	require.NoError(t, err)
	assert.Equal(t, OrderCompleted, o.Status)
	assert.Equal(t, 3, o.Finished)
	assert.Equal(t, base, o.StartedAt)
	assert.Equal(t, base.Add(2*time.Hour), o.EndedAt)

	o, err = db.GetOrder("o-2")
	require.NoError(t, err)
	assert.Equal(t, OrderRunning, o.Status)
	assert.True(t, o.EndedAt.IsZero())

	list, err := db.ListOrders(10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "o-2", list[0].ID)

	_, err = db.GetOrder("o-9")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCorrectionsAndAudit(t *testing.T) {
	db := openTestDB(t)

	c := &StockCorrection{PostCode: "P1", Before: 1, After: 20, Reason: "restock", Actor: "op"}
	require.NoError(t, db.CreateCorrection(c))
	assert.NotZero(t, c.ID)
	require.NoError(t, db.CreateCorrection(&StockCorrection{PostCode: "P2", Before: 4, After: 0, Reason: "scrap"}))

	list, err := db.ListCorrections(10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "P2", list[0].PostCode)
	assert.Equal(t, 20, list[1].After)

	require.NoError(t, db.AppendAudit("order", "o-1", "started", "qty=3", "system"))
	require.NoError(t, db.AppendAudit("post", "P1", "stock", "1 -> 20", "op"))
	require.NoError(t, db.AppendAudit("order", "o-1", "completed", "", "system"))

	all, err := db.ListAudit("", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "completed", all[0].Action)

	orders, err := db.ListAudit("order", 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "o-1", orders[0].EntityID)

	trail, err := db.ListAuditFor("order", "o-1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "started", trail[0].Action)
	assert.Equal(t, "completed", trail[1].Action)
}
