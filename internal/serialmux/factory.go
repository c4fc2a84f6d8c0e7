package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// EmulatorPath selects the in-process speech module emulator instead of a
// device file.
const EmulatorPath = "emulator"

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open speech module at %s: %w", path, err)
	}

	return NewSerialMux[serial.Port](port), nil
}

// Open returns a mux for path, which is either a device file or
// EmulatorPath.
func Open(path string, opts PortOptions) (SerialMuxInterface, error) {
	if path == EmulatorPath {
		return NewSerialMux(NewSpeechEmulator()), nil
	}
	return NewRealSerialMux(path, opts)
}
