package memutils

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// ErrSupplierExhausted is wrapped by every error that reports the raw heap supplier could not extend
// the heap any further. The heap is left in its last valid state when this error is returned.
var ErrSupplierExhausted error = errors.New("heap supplier exhausted")

// ErrInvalidPointer is returned by allocators running with pointer checks enabled when a pointer that
// is not a live allocation is passed to Free or Realloc
var ErrInvalidPointer error = errors.New("pointer is not a live allocation")
