package t4

import (
	"fmt"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Open opens the controller's serial link at the given path.
func Open(path string, opts PortOptions) (*SerialDevice, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return NewSerialDevice(port), nil
}

// OpenBySerialNumber enumerates USB serial ports and opens the one
// whose USB serial number matches. Controllers carry a fixed serial
// number, so this finds the right port among other lab gear regardless
// of enumeration order.
func OpenBySerialNumber(serialNumber string, opts PortOptions) (*SerialDevice, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	for _, p := range ports {
		if p.IsUSB && p.SerialNumber == serialNumber {
			return Open(p.Name, opts)
		}
	}
	return nil, fmt.Errorf("no USB serial port with serial number %q", serialNumber)
}
