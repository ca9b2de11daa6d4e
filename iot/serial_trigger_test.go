package iot

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lineflow/config"
	"lineflow/protocol"
	"lineflow/sensor"
	"lineflow/serialline"
)

type fakePort struct {
	r *io.PipeReader

	mu      sync.Mutex
	written bytes.Buffer
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error { return p.r.Close() }

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func pipeOpener() (serialline.Opener, *io.PipeWriter, *fakePort) {
	pr, pw := io.Pipe()
	port := &fakePort{r: pr}
	return func(string, int, time.Duration) (serialline.Port, error) { return port, nil }, pw, port
}

func newTestSerial(t *testing.T) (*SerialTriggerProvider, *io.PipeWriter, *fakePort) {
	t.Helper()
	opener, pw, port := pipeOpener()
	p, err := New(config.ProviderConfig{
		Mode:   config.ModeSerial,
		Serial: config.SerialConfig{Port: "/dev/ttyTEST", Baud: 9600},
	}, []string{"P1", "P2", "P3"}, opener, t.Logf)
	require.NoError(t, err)
	sp, ok := SerialOf(p)
	require.True(t, ok)
	t.Cleanup(func() { sp.Disconnect() })
	return sp, pw, port
}

func TestSerialTriggerDetection(t *testing.T) {
	p, pw, _ := newTestSerial(t)
	events, cancel := p.Events().Subscribe(32)
	defer cancel()

	require.NoError(t, p.Connect(context.Background()))
	assert.True(t, p.IsConnected())

	_, err := pw.Write([]byte("{\"poste\":2,\"etat\":\"piece_detectee\"}\n{\"poste\":2,\"etat\":\"ras\"}\nPOSTE-3\n"))
	require.NoError(t, err)

	first := recvKind(t, events, EventCriticalAlert)
	assert.Equal(t, 2, first.Critical.PostIndex)
	assert.Equal(t, "P2", first.Critical.PostCode)

	second := recvKind(t, events, EventCriticalAlert)
	assert.Equal(t, 3, second.Critical.PostIndex)
	assert.Equal(t, "P3", second.Critical.PostCode)

	assert.Equal(t, 2, p.Detections())

	sensors := p.ListSensors()
	require.Len(t, sensors, 3)
	require.NotNil(t, sensors[1].Last)
	assert.Equal(t, sensor.LevelCritical, sensors[1].Last.Level)
	assert.Equal(t, sensor.TypePresence, sensors[1].Last.Type)
	assert.Nil(t, sensors[0].Last)
}

func TestSerialTriggerHandleLineReading(t *testing.T) {
	p, _, _ := newTestSerial(t)
	events, cancel := p.Events().Subscribe(8)
	defer cancel()

	p.HandleLine("1")
	evt := recvKind(t, events, EventSensorReading)
	assert.Equal(t, "trigger-1", evt.Reading.SensorID)
	assert.Equal(t, "P1", evt.Reading.PostCode)
	assert.Equal(t, 1.0, evt.Reading.Value)

	p.HandleLine("garbage")
	p.HandleLine("7")
	assert.Equal(t, 1, p.Detections())
}

func TestSerialTriggerIsInputOnly(t *testing.T) {
	p, _, _ := newTestSerial(t)
	_, ok := p.ReadSensor("trigger-1")
	assert.False(t, ok)
	assert.ErrorIs(t, p.SendRobotCommand("AGV-1", CommandMove, "P1"), ErrInputOnly)
	assert.ErrorIs(t, p.SetThreshold("trigger-1", 1, 2), ErrInputOnly)
	assert.Empty(t, p.ListRobots())
}

func TestSerialTriggerSendInstruction(t *testing.T) {
	p, _, port := newTestSerial(t)
	ins := protocol.NewInstruction(true, map[int]string{1: "wait"})
	assert.ErrorIs(t, p.SendInstruction(ins), serialline.ErrClosed)

	require.NoError(t, p.Connect(context.Background()))
	require.NoError(t, p.SendInstruction(ins))
	assert.Equal(t, "{\"mat_p\":1,\"mant\":{\"1\":\"wait\"}}\n", port.Written())
}

func TestFactoryModes(t *testing.T) {
	route := []string{"P1", "P2"}
	opener, _, _ := pipeOpener()

	p, err := New(config.ProviderConfig{Mode: config.ModeSimulation}, route, opener, t.Logf)
	require.NoError(t, err)
	_, ok := SimulationOf(p)
	assert.True(t, ok)
	_, ok = SerialOf(p)
	assert.False(t, ok)

	p, err = New(config.ProviderConfig{Mode: config.ModeHybrid}, route, opener, t.Logf)
	require.NoError(t, err)
	_, ok = SimulationOf(p)
	assert.True(t, ok)
	_, ok = SerialOf(p)
	assert.True(t, ok)

	_, err = New(config.ProviderConfig{Mode: "carrier-pigeon"}, route, opener, t.Logf)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}
