package iot

import (
	"fmt"
	"strings"
)

type RobotState string

const (
	RobotIdle     RobotState = "idle"
	RobotMoving   RobotState = "moving"
	RobotCharging RobotState = "charging"
	RobotStopped  RobotState = "stopped"
	RobotError    RobotState = "error"
)

type Command string

const (
	CommandMove   Command = "move"
	CommandStop   Command = "stop"
	CommandResume Command = "resume"
	CommandCharge Command = "charge"
	CommandReset  Command = "reset"
)

// ParseCommand accepts a command name case-insensitively.
func ParseCommand(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CommandMove, CommandStop, CommandResume, CommandCharge, CommandReset:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown robot command %q", ErrInvalidCommand, s)
}

// Robot is the observable state of an AGV.
type Robot struct {
	ID       string     `json:"id"`
	State    RobotState `json:"state"`
	Position string     `json:"position"`
	Target   string     `json:"target,omitempty"`
	Progress float64    `json:"progress"`
	Battery  float64    `json:"battery"`
	Detail   string     `json:"detail,omitempty"`
}

// apply mutates r according to cmd. It returns an error for commands that
// make no sense in the robot's current state.
func (r *Robot) apply(cmd Command, target string) error {
	switch cmd {
	case CommandMove:
		if target == "" {
			return fmt.Errorf("%w: robot %s: move requires a target", ErrInvalidCommand, r.ID)
		}
		if r.State == RobotError {
			return fmt.Errorf("%w: robot %s is in error state, reset first", ErrRobotState, r.ID)
		}
		r.State = RobotMoving
		r.Target = target
		r.Progress = 0
	case CommandStop:
		r.State = RobotStopped
	case CommandResume:
		if r.State != RobotStopped {
			return fmt.Errorf("%w: robot %s cannot resume from %s", ErrRobotState, r.ID, r.State)
		}
		if r.Target != "" && r.Target != r.Position {
			r.State = RobotMoving
		} else {
			r.State = RobotIdle
		}
	case CommandCharge:
		r.State = RobotCharging
		r.Target = ""
	case CommandReset:
		r.State = RobotIdle
		r.Target = ""
		r.Progress = 0
		r.Detail = ""
	default:
		return fmt.Errorf("%w: robot %s: unsupported command %q", ErrInvalidCommand, r.ID, cmd)
	}
	return nil
}

// step advances the robot one simulation tick and reports whether its
// observable state changed.
func (r *Robot) step(speed float64) bool {
	switch r.State {
	case RobotMoving:
		r.Progress += speed
		r.Battery -= 0.5
		if r.Battery <= 5 {
			r.Battery = 5
			r.State = RobotError
			r.Detail = "battery low"
			return true
		}
		if r.Progress >= 1 {
			r.Position = r.Target
			r.Target = ""
			r.Progress = 0
			r.State = RobotIdle
		}
		return true
	case RobotCharging:
		r.Battery += 5
		if r.Battery >= 100 {
			r.Battery = 100
			r.State = RobotIdle
		}
		return true
	}
	return false
}
