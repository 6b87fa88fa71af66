//go:build !linux

package device

import (
	"errors"
	"os"
)

// OpenSerial is only implemented on Linux.
func OpenSerial(path string, baud int) (*os.File, error) {
	return nil, errors.New("device: serial links are only supported on linux")
}
