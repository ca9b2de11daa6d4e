package serialline

import (
	"time"

	"go.bug.st/serial"
)

// OpenSerial opens a hardware serial port in 8N1 mode. A positive
// readTimeout makes Read return (0, nil) when no byte arrives in time,
// which the read loop treats as an idle tick.
func OpenSerial(name string, baud int, readTimeout time.Duration) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, err
		}
	}
	return port, nil
}

// ListPorts returns the serial ports visible on this host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
