//go:build unix

package memlib

import (
	"github.com/cockroachdb/errors"
	"golang.org/x/sys/unix"
)

// Mapped is a heap supplier backed by an anonymous private memory mapping reserved up front. Pages
// above the break are never touched, so the operating system only commits the memory the heap
// actually grows into.
//
// Close must be called to release the mapping. The heap must not be used after Close.
type Mapped struct {
	Region
}

// NewMapped reserves a mapping able to hold maxHeap bytes. A maxHeap of 0 selects DefaultMaxHeap.
func NewMapped(maxHeap int) (*Mapped, error) {
	maxHeap, err := checkMaxHeap(maxHeap)
	if err != nil {
		return nil, err
	}

	mem, err := unix.Mmap(-1, 0, maxHeap, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "memlib: failed to map %d bytes", maxHeap)
	}

	return &Mapped{Region: Region{mem: mem}}, nil
}

// Close unmaps the memory backing the heap
func (m *Mapped) Close() error {
	if m.mem == nil {
		return nil
	}

	err := unix.Munmap(m.mem)
	m.mem = nil
	m.brk = 0
	if err != nil {
		return errors.Wrap(err, "memlib: failed to unmap heap")
	}
	return nil
}
