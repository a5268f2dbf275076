//go:build !unix

package memlib

import "github.com/cockroachdb/errors"

// Mapped is only available on unix platforms
type Mapped struct {
	Region
}

// NewMapped always fails on platforms without mmap
func NewMapped(maxHeap int) (*Mapped, error) {
	return nil, errors.New("memlib: mapped heaps are only supported on unix platforms")
}

// Close does nothing on platforms without mmap
func (m *Mapped) Close() error {
	return nil
}
