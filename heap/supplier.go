package heap

//go:generate mockgen -package mock_heap -destination ./mocks/supplier.go github.com/vkngwrapper/heapkit/heap Supplier

// Supplier is the raw memory source underneath an Allocator. It owns a contiguous region of bytes
// whose high boundary (the break) can be moved up on request. memlib.Region and memlib.Mapped are
// the standard implementations.
type Supplier interface {
	// Extend moves the break up by delta bytes and returns the old break, which is the offset of
	// the first new byte. It returns an error, and leaves the region unchanged, when the backing
	// store cannot grow any further. delta is always a multiple of 8.
	Extend(delta int) (int, error)
	// Memory returns the bytes below the break. The allocator fetches a fresh view after every
	// successful Extend and never retains views across calls to Extend.
	Memory() []byte
	// Reset moves the break back to 0
	Reset()
}
