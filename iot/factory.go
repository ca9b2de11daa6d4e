package iot

import (
	"fmt"

	"lineflow/config"
	"lineflow/serialline"
)

// New builds the provider selected by cfg.Mode. A nil opener uses the
// real serial port.
func New(cfg config.ProviderConfig, route []string, opener serialline.Opener, logFn LogFunc) (Provider, error) {
	switch cfg.Mode {
	case config.ModeSimulation, "":
		return newSimulation(cfg, route, logFn), nil
	case config.ModeSerial:
		return newSerial(cfg, route, opener, logFn), nil
	case config.ModeHybrid:
		return NewHybridProvider(newSimulation(cfg, route, logFn), newSerial(cfg, route, opener, logFn), logFn), nil
	}
	return nil, fmt.Errorf("%w: provider mode %q", config.ErrInvalidConfig, cfg.Mode)
}

func newSimulation(cfg config.ProviderConfig, route []string, logFn LogFunc) *SimulationProvider {
	return NewSimulationProvider(SimulationConfig{
		Posts:  route,
		Robots: cfg.Simulation.Robots,
		Tick:   cfg.Simulation.Tick,
		Seed:   cfg.Simulation.Seed,
	}, logFn)
}

func newSerial(cfg config.ProviderConfig, route []string, opener serialline.Opener, logFn LogFunc) *SerialTriggerProvider {
	ch := serialline.New(serialline.Config{
		Port:        cfg.Serial.Port,
		Baud:        cfg.Serial.Baud,
		Newline:     cfg.Serial.Newline,
		ReadTimeout: cfg.Serial.ReadTimeout,
	}, opener, serialline.LogFunc(logFn))
	return NewSerialTriggerProvider(ch, route, cfg.Serial.Newline, logFn)
}

// SerialOf returns the serial trigger provider inside p, if any.
func SerialOf(p Provider) (*SerialTriggerProvider, bool) {
	switch v := p.(type) {
	case *SerialTriggerProvider:
		return v, true
	case *HybridProvider:
		return SerialOf(v.Secondary())
	}
	return nil, false
}

// SimulationOf returns the simulation provider inside p, if any.
func SimulationOf(p Provider) (*SimulationProvider, bool) {
	switch v := p.(type) {
	case *SimulationProvider:
		return v, true
	case *HybridProvider:
		return SimulationOf(v.Primary())
	}
	return nil, false
}
