package iot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineflow/sensor"
	"lineflow/serialline"
)

func TestHybridForwardsBothStreams(t *testing.T) {
	sim := newTestSimulation(t)
	serial, pw, _ := newTestSerial(t)
	h := NewHybridProvider(sim, serial, t.Logf)
	events, cancel := h.Events().Subscribe(64)
	defer cancel()

	require.NoError(t, h.Connect(context.Background()))
	defer h.Disconnect()
	assert.True(t, h.IsConnected())

	_, err := sim.InjectAnomaly("P1-temperature")
	require.NoError(t, err)
	_, err = pw.Write([]byte("p2\n"))
	require.NoError(t, err)

	sources := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for !(sources["simulation"] && sources["serial"]) {
		select {
		case evt := <-events:
			if evt.Kind == EventCriticalAlert {
				sources[evt.Source] = true
			}
		case <-deadline:
			t.Fatalf("missing forwarded alerts: %v", sources)
		}
	}
}

func TestHybridRoutingAndMerge(t *testing.T) {
	sim := newTestSimulation(t)
	serial, _, _ := newTestSerial(t)
	h := NewHybridProvider(sim, serial, t.Logf)

	assert.Equal(t, "hybrid(simulation+serial)", h.Name())
	assert.Len(t, h.ListSensors(), 7)
	assert.Len(t, h.ListRobots(), 2)

	require.NoError(t, h.SendRobotCommand("AGV-1", CommandCharge, ""))
	assert.Equal(t, RobotCharging, sim.ListRobots()[0].State)
	require.NoError(t, h.SetThreshold("P1-temperature", 60, 70))

	r, ok := h.ReadSensor("P1-pressure")
	require.True(t, ok)
	assert.Equal(t, sensor.TypePressure, r.Type)
	_, ok = h.ReadSensor("trigger-1")
	assert.False(t, ok)
}

func TestHybridMergeSecondWins(t *testing.T) {
	sim := NewSimulationProvider(SimulationConfig{
		Posts: []string{"P1"},
		Types: []sensor.Type{sensor.TypePresence},
	}, t.Logf)
	other := NewSimulationProvider(SimulationConfig{
		Posts: []string{"P1"},
		Types: []sensor.Type{sensor.TypePresence},
	}, t.Logf)
	require.NoError(t, other.SetThreshold("P1-presence", 0.5, 0.9))

	h := NewHybridProvider(sim, other, t.Logf)
	got := h.ListSensors()
	require.Len(t, got, 1)
	assert.Equal(t, 0.9, got[0].Thresholds.Crit)
}

func TestHybridConnectFailsOnlyWhenBothFail(t *testing.T) {
	failing := func(string, int, time.Duration) (serialline.Port, error) {
		return nil, errors.New("no such port")
	}
	newBroken := func() *SerialTriggerProvider {
		ch := serialline.New(serialline.Config{Port: "/dev/null0"}, failing, t.Logf)
		return NewSerialTriggerProvider(ch, []string{"P1"}, "", t.Logf)
	}

	h := NewHybridProvider(newTestSimulation(t), newBroken(), t.Logf)
	require.NoError(t, h.Connect(context.Background()))
	require.NoError(t, h.Disconnect())

	both := NewHybridProvider(newBroken(), newBroken(), t.Logf)
	assert.Error(t, both.Connect(context.Background()))
	assert.False(t, both.IsConnected())
	require.NoError(t, both.Disconnect())
}
