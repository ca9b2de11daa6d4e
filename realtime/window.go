package realtime

import (
	"time"

	"lineflow/health"
	"lineflow/sensor"
)

// bucketSpan is the granularity of the sensor window. Readings age out one
// whole bucket at a time, so the window edge is accurate to one span.
const bucketSpan = time.Hour

type levelBucket struct {
	start  time.Time
	counts health.SensorCounts
}

// sensorWindow keeps per-level reading counts of one post over the health
// sensor window. Memory is bounded by the number of buckets, not readings.
type sensorWindow struct {
	buckets []levelBucket // oldest first
}

func (w *sensorWindow) add(readings []sensor.Reading) {
	for _, r := range readings {
		start := r.Timestamp.Truncate(bucketSpan)
		i := len(w.buckets)
		for i > 0 && w.buckets[i-1].start.After(start) {
			i--
		}
		if i > 0 && w.buckets[i-1].start.Equal(start) {
			w.buckets[i-1].counts.Add(r.Level)
			continue
		}
		b := levelBucket{start: start}
		b.counts.Add(r.Level)
		w.buckets = append(w.buckets, levelBucket{})
		copy(w.buckets[i+1:], w.buckets[i:])
		w.buckets[i] = b
	}
}

// prune drops buckets whose readings are all older than since.
func (w *sensorWindow) prune(since time.Time) {
	n := 0
	for n < len(w.buckets) && !w.buckets[n].start.Add(bucketSpan).After(since) {
		n++
	}
	if n > 0 {
		w.buckets = append(w.buckets[:0], w.buckets[n:]...)
	}
}

func (w *sensorWindow) counts() health.SensorCounts {
	var c health.SensorCounts
	for _, b := range w.buckets {
		c.Merge(b.counts)
	}
	return c
}
