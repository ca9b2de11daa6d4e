package sensor

import (
	"fmt"
	"time"
)

type Type string

const (
	TypeTemperature Type = "temperature"
	TypePressure    Type = "pressure"
	TypeVibration   Type = "vibration"
	TypeHumidity    Type = "humidity"
	TypeCurrent     Type = "current"
	TypeSpeed       Type = "speed"
	TypePresence    Type = "presence"
)

// Level is the alert level derived from a reading. Order matters: a
// higher value is more severe.
type Level int

const (
	LevelNone Level = iota
	LevelInfo
	LevelWarning
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelNone:
		return "none"
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	case LevelEmergency:
		return "emergency"
	}
	panic(fmt.Sprintf("sensor: unreachable level %d", int(l)))
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// AtLeastCritical reports whether the level is Critical or Emergency.
func (l Level) AtLeastCritical() bool { return l >= LevelCritical }

// Thresholds declares the expected operating band of a sensor. Warn and
// Crit are optional absolute overrides; zero disables them.
type Thresholds struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Normal float64 `json:"normal"`
	Unit   string  `json:"unit"`
	Warn   float64 `json:"warn,omitempty"`
	Crit   float64 `json:"crit,omitempty"`
}

func (t Thresholds) Range() float64 { return t.Max - t.Min }

var DefaultThresholds = map[Type]Thresholds{
	TypeTemperature: {Min: 15, Max: 85, Normal: 45, Unit: "°C"},
	TypePressure:    {Min: 1, Max: 8, Normal: 4.5, Unit: "bar"},
	TypeVibration:   {Min: 0, Max: 12, Normal: 3, Unit: "mm/s"},
	TypeHumidity:    {Min: 20, Max: 70, Normal: 45, Unit: "%"},
	TypeCurrent:     {Min: 2, Max: 30, Normal: 14, Unit: "A"},
	TypeSpeed:       {Min: 500, Max: 3000, Normal: 1500, Unit: "rpm"},
	TypePresence:    {Min: 0, Max: 1, Normal: 0, Unit: ""},
}

// MonitoredTypes are the telemetry channels simulated for every post.
var MonitoredTypes = []Type{TypeTemperature, TypePressure, TypeVibration, TypeCurrent}

// Reading is an immutable sensor sample.
type Reading struct {
	SensorID  string    `json:"sensor_id"`
	PostCode  string    `json:"post_code"`
	Type      Type      `json:"type"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Min       float64   `json:"min"`
	Max       float64   `json:"max"`
	Level     Level     `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// SensorID builds the conventional id of a post-mounted sensor.
func SensorID(post string, typ Type) string {
	return fmt.Sprintf("%s-%s", post, typ)
}

// Classify derives the alert level of value against th.
func Classify(value float64, th Thresholds) Level {
	level := LevelNone
	if value < th.Min || value > th.Max {
		level = LevelInfo
		width := th.Range()
		if width > 0 {
			var excess float64
			if value > th.Max {
				excess = (value - th.Max) / width
			} else {
				excess = (th.Min - value) / width
			}
			switch {
			case excess > 0.30:
				level = LevelEmergency
			case excess > 0.20:
				level = LevelCritical
			case excess > 0.10:
				level = LevelWarning
			}
		}
	}
	if th.Crit > 0 && value >= th.Crit && level < LevelCritical {
		level = LevelCritical
	} else if th.Warn > 0 && value >= th.Warn && level < LevelWarning {
		level = LevelWarning
	}
	return level
}

// Within filters readings to those taken after since.
func Within(readings []Reading, since time.Time) []Reading {
	var out []Reading
	for _, r := range readings {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	return out
}
