//go:build !linux

package gps

import (
	"errors"
	"os"
)

// OpenSerial is only implemented on Linux.
func OpenSerial(path string, baud int) (*os.File, error) {
	return nil, errors.New("gps serial not supported on this platform")
}
