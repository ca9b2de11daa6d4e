package health

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineflow/sensor"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	e := NewEngine(0)
	e.SetClock(func() time.Time { return testNow })
	return e
}

func daysAgo(d float64) time.Time {
	return testNow.Add(-time.Duration(d * 24 * float64(time.Hour)))
}

func TestScoreEmptyHistoryUsesNeutralDefaults(t *testing.T) {
	s := newTestEngine().Score("P1", nil, nil)
	assert.Equal(t, 0.0, s.Recency)
	assert.Equal(t, 50.0, s.Completion)
	assert.Equal(t, 75.0, s.Sensor)
	assert.InDelta(t, 36.25, s.Value, 1e-9)
	assert.Equal(t, BandCritical, s.Band)
	assert.Equal(t, "red", s.Color)
	assert.Equal(t, testNow, s.ComputedAt)
}

func TestRecencyDecay(t *testing.T) {
	e := newTestEngine()
	tests := []struct {
		name string
		days float64
		want float64
	}{
		{"just done", 0, 100},
		{"one interval", 14, 50},
		{"three weeks", 21, 25},
		{"two intervals", 28, 0},
		{"long ago", 90, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			recs := []MaintenanceRecord{{PostID: "P1", Status: MaintenanceCompleted, ScheduledDate: daysAgo(tc.days), CompletedDate: daysAgo(tc.days)}}
			assert.InDelta(t, tc.want, e.Score("P1", recs, nil).Recency, 1e-6)
		})
	}
}

func TestRecencyUsesMostRecentCompletion(t *testing.T) {
	e := newTestEngine()
	recs := []MaintenanceRecord{
		{Status: MaintenanceCompleted, CompletedDate: daysAgo(20)},
		{Status: MaintenanceCompleted, CompletedDate: daysAgo(7)},
		{Status: MaintenanceScheduled, ScheduledDate: daysAgo(-3)},
	}
	s := e.Score("P1", recs, nil)
	assert.InDelta(t, 75, s.Recency, 1e-6)
	assert.InDelta(t, 200.0/3, s.Completion, 1e-6)
}

func TestCompletionPenalisesOverdue(t *testing.T) {
	recs := []MaintenanceRecord{
		{Status: MaintenanceCompleted, CompletedDate: daysAgo(1)},
		{Status: MaintenanceOverdue},
		{Status: MaintenanceOverdue},
		{Status: MaintenanceOverdue},
	}
	assert.InDelta(t, 0, completion(recs), 1e-9)

	recs = recs[:2]
	assert.InDelta(t, 40, completion(recs), 1e-9)
}

func TestSensorScoreCountsRecentLevels(t *testing.T) {
	readings := []sensor.Reading{
		{Level: sensor.LevelCritical, Timestamp: daysAgo(1)},
		{Level: sensor.LevelEmergency, Timestamp: daysAgo(2)},
		{Level: sensor.LevelWarning, Timestamp: daysAgo(3)},
		{Level: sensor.LevelInfo, Timestamp: daysAgo(3)},
		{Level: sensor.LevelNone, Timestamp: daysAgo(3)},
		{Level: sensor.LevelCritical, Timestamp: daysAgo(8)},
	}
	counts := CountReadings(readings, testNow.Add(-SensorWindow))
	assert.Equal(t, SensorCounts{Total: 5, Info: 1, Warning: 1, Critical: 2}, counts)
	assert.InDelta(t, 100-(30+5+1), sensorScore(counts), 1e-9)

	old := []sensor.Reading{{Level: sensor.LevelCritical, Timestamp: daysAgo(10)}}
	assert.Equal(t, 75.0, sensorScore(CountReadings(old, testNow.Add(-SensorWindow))))
}

func TestScoreCountsMatchesScore(t *testing.T) {
	e := newTestEngine()
	readings := []sensor.Reading{
		{Level: sensor.LevelCritical, Timestamp: daysAgo(1)},
		{Level: sensor.LevelWarning, Timestamp: daysAgo(2)},
	}
	var counts SensorCounts
	counts.Add(sensor.LevelCritical)
	counts.Merge(SensorCounts{Total: 1, Warning: 1})
	assert.Equal(t, e.Score("P1", nil, readings), e.ScoreCounts("P1", nil, counts))
}

func TestScoreTwentyEightDaysDrivesCriticalBand(t *testing.T) {
	recs := []MaintenanceRecord{
		{PostID: "P2", Status: MaintenanceCompleted, ScheduledDate: daysAgo(28), CompletedDate: daysAgo(28)},
		{PostID: "P2", Status: MaintenanceOverdue, ScheduledDate: daysAgo(3)},
	}
	readings := []sensor.Reading{
		{Level: sensor.LevelCritical, Timestamp: daysAgo(0.5)},
		{Level: sensor.LevelCritical, Timestamp: daysAgo(1)},
	}
	s := newTestEngine().Score("P2", recs, readings)
	assert.Equal(t, 0.0, s.Recency)
	assert.Less(t, s.Value, 50.0)
	assert.Equal(t, BandCritical, s.Band)
}

func TestScoreAlwaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	statuses := []MaintenanceStatus{MaintenanceScheduled, MaintenanceInProgress, MaintenanceCompleted, MaintenanceOverdue, MaintenanceCancelled}
	levels := []sensor.Level{sensor.LevelNone, sensor.LevelInfo, sensor.LevelWarning, sensor.LevelCritical, sensor.LevelEmergency}
	e := newTestEngine()

	for i := 0; i < 500; i++ {
		var recs []MaintenanceRecord
		for j := rng.Intn(12); j > 0; j-- {
			recs = append(recs, MaintenanceRecord{
				Status:        statuses[rng.Intn(len(statuses))],
				ScheduledDate: daysAgo(rng.Float64()*120 - 30),
				CompletedDate: daysAgo(rng.Float64()*120 - 30),
			})
		}
		var readings []sensor.Reading
		for j := rng.Intn(40); j > 0; j-- {
			readings = append(readings, sensor.Reading{Level: levels[rng.Intn(len(levels))], Timestamp: daysAgo(rng.Float64() * 10)})
		}
		s := e.Score("P", recs, readings)
		require.GreaterOrEqual(t, s.Value, 0.0)
		require.LessOrEqual(t, s.Value, 100.0)
	}
}

func TestBands(t *testing.T) {
	assert.Equal(t, BandGood, BandFor(85))
	assert.Equal(t, BandWarning, BandFor(84.9))
	assert.Equal(t, BandWarning, BandFor(70))
	assert.Equal(t, BandScheduled, BandFor(50))
	assert.Equal(t, BandCritical, BandFor(49.99))

	for _, b := range []Band{BandGood, BandWarning, BandScheduled, BandCritical} {
		assert.NotEmpty(t, b.String())
		assert.NotEmpty(t, b.Color())
		assert.NotEmpty(t, b.Icon())
	}
	assert.Panics(t, func() { _ = Band(9).String() })
	assert.Panics(t, func() { _ = Band(9).Color() })
}

func TestLatestRecordAndOverdue(t *testing.T) {
	_, ok := LatestRecord(nil)
	assert.False(t, ok)

	recs := []MaintenanceRecord{
		{ID: 1, ScheduledDate: daysAgo(30), Status: MaintenanceCompleted},
		{ID: 2, ScheduledDate: daysAgo(5), Status: MaintenanceOverdue},
		{ID: 3, ScheduledDate: daysAgo(12), Status: MaintenanceCompleted},
	}
	latest, ok := LatestRecord(recs)
	require.True(t, ok)
	assert.Equal(t, int64(2), latest.ID)
	assert.Equal(t, 5, latest.DaysOverdue(testNow))
	assert.Equal(t, 0, recs[0].DaysOverdue(testNow))

	_, ok = MaintenanceRecord{Status: MaintenanceCompleted}.CompletedAt()
	assert.False(t, ok)

	_, err := ParseMaintenanceStatus("done")
	assert.Error(t, err)
	st, err := ParseMaintenanceStatus("overdue")
	require.NoError(t, err)
	assert.Equal(t, MaintenanceOverdue, st)
}
