package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	m := New()

	m.PieceFinished("L1")
	m.PieceFinished("L1")
	m.OrderDone("L1", "completed")
	m.SetStock("L1", "P1", 4)
	m.SetStock("L1", "P1", 3)
	m.StockAlert("L1", "P1", "low")
	m.SetHealth("L1", "P1", 72.5)
	m.SetLineHealth("L1", 80)
	m.Detections.Inc()
	m.SetDropped(9)
	m.PublishDropped.Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PiecesFinished.WithLabelValues("L1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("L1", "completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PostStock.WithLabelValues("L1", "P1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StockAlerts.WithLabelValues("L1", "P1", "low")))
	assert.Equal(t, 72.5, testutil.ToFloat64(m.PostHealth.WithLabelValues("L1", "P1")))
	assert.Equal(t, 80.0, testutil.ToFloat64(m.LineHealth.WithLabelValues("L1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Detections))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.DroppedEvents))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishDropped))
}

func TestOpenAlertsReset(t *testing.T) {
	m := New()
	m.SetOpenAlerts(map[string]int{"critical": 2, "low": 1})
	assert.Equal(t, 2, testutil.CollectAndCount(m.ActiveAlerts))

	m.SetOpenAlerts(map[string]int{"high": 4})
	assert.Equal(t, 1, testutil.CollectAndCount(m.ActiveAlerts))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ActiveAlerts.WithLabelValues("high")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetStock("L1", "P2", 7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `lineflow_post_stock{line="L1",post="P2"} 7`)
}
