// Package iot abstracts the hardware behind a production line. A Provider
// exposes sensors, AGV robots and four event streams; simulated and serial
// trigger providers are interchangeable and can be combined.
package iot

import (
	"context"
	"errors"

	"lineflow/sensor"
)

var (
	ErrInputOnly     = errors.New("provider is input-only")
	ErrUnknownSensor = errors.New("unknown sensor")
	ErrUnknownRobot  = errors.New("unknown robot")
	ErrNotConnected  = errors.New("provider not connected")

	// ErrInvalidCommand rejects malformed robot commands and thresholds.
	ErrInvalidCommand = errors.New("invalid command")
	// ErrRobotState rejects commands the robot cannot take in its current state.
	ErrRobotState = errors.New("command not allowed in robot state")
)

type LogFunc func(format string, args ...any)

type Provider interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	ReadSensor(id string) (sensor.Reading, bool)
	SendRobotCommand(robotID string, cmd Command, target string) error
	ListSensors() []SensorInfo
	ListRobots() []Robot
	SetThreshold(id string, warn, crit float64) error
	Events() *Hub
}

// SensorInfo describes a sensor known to a provider.
type SensorInfo struct {
	ID         string            `json:"id"`
	PostCode   string            `json:"post_code"`
	Type       sensor.Type       `json:"type"`
	Thresholds sensor.Thresholds `json:"thresholds"`
	Source     string            `json:"source"`
	Last       *sensor.Reading   `json:"last,omitempty"`
}

// MergeSensors merges sensor lists by id; later lists win on collision.
// The order of first appearance is kept.
func MergeSensors(lists ...[]SensorInfo) []SensorInfo {
	index := make(map[string]int)
	var out []SensorInfo
	for _, list := range lists {
		for _, s := range list {
			if i, ok := index[s.ID]; ok {
				out[i] = s
				continue
			}
			index[s.ID] = len(out)
			out = append(out, s)
		}
	}
	return out
}
