package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"lineflow/store"
)

func TestWriteOrderReport(t *testing.T) {
	at := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	r := Report{
		Title:       "Order o-1",
		GeneratedAt: at,
		Orders: []*store.Order{
			{ID: "o-1", LineID: "L1", Quantity: 3, Finished: 3, Status: store.OrderCompleted, StartedAt: at, EndedAt: at.Add(time.Minute)},
		},
		Posts: []*store.Post{
			{Code: "P1", LineID: "L1", Position: 1, Capacity: 5, Stock: 2, TU: 1500 * time.Millisecond},
		},
		Audit: []*store.AuditEntry{
			{ID: 1, EntityType: "order", EntityID: "o-1", Action: "started", Actor: "system", CreatedAt: at},
			{ID: 2, EntityType: "order", EntityID: "o-1", Action: "completed", Actor: "system", CreatedAt: at.Add(time.Minute)},
		},
	}

	data, err := Bytes(r)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "Orders", "Posts", "Audit"}, f.GetSheetList())

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	assert.Equal(t, []string{"Report", "Order o-1"}, summary[0])
	assert.Equal(t, []string{"Generated", "2026-03-10T08:00:00Z"}, summary[1])

	orders, err := f.GetRows("Orders")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "Order", orders[0][0])
	assert.Equal(t, []string{"o-1", "L1", "3", "3", "completed", "2026-03-10T08:00:00Z", "2026-03-10T08:01:00Z"}, orders[1])

	posts, err := f.GetRows("Posts")
	require.NoError(t, err)
	assert.Equal(t, "1.5", posts[1][5])

	audit, err := f.GetRows("Audit")
	require.NoError(t, err)
	require.Len(t, audit, 3)
	assert.Equal(t, "completed", audit[2][3])
}

func TestWriteSummaryOnly(t *testing.T) {
	data, err := Bytes(Report{Title: "empty"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Summary"}, f.GetSheetList())
}
