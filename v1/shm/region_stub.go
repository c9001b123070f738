//go:build !linux

package shm

import "errors"

var errUnsupported = errors.New("shm: shared regions are not supported on this platform")

// Create is unsupported on this platform.
func Create(name string, size int) (*Region, error) {
	return nil, errUnsupported
}

// Open is unsupported on this platform.
func Open(path string) (*Region, error) {
	return nil, errUnsupported
}

// Close is a no-op on this platform.
func (r *Region) Close(remove bool) error {
	return nil
}
