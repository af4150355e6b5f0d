package cells

import (
	"fmt"
	"log"
)

// Dropper is implemented by payloads that need cleanup when the last
// CountedHandle referring to them is released.
type Dropper interface {
	Drop()
}

// heapBlock is the record shared by every handle cloned from the same
// NewCountedHandle call. count always equals the number of unreleased handles.
type heapBlock[T any] struct {
	value T
	count MutableCell[int]

	label     string
	logger    *log.Logger
	onRelease []func()
}

// HandleOption configures a CountedHandle at construction.
type HandleOption func(*handleConfig)

type handleConfig struct {
	label     string
	logger    *log.Logger
	onRelease []func()
}

// WithLogger logs a line to l when the last handle is released, before the
// payload is cleaned up.
func WithLogger(l *log.Logger) HandleOption {
	return func(c *handleConfig) { c.logger = l }
}

// WithLabel names the handle in log output.
func WithLabel(label string) HandleOption {
	return func(c *handleConfig) { c.label = label }
}

// OnRelease registers fn to run after the payload's Drop, once the last handle
// has been released.
func OnRelease(fn func()) HandleOption {
	return func(c *handleConfig) { c.onRelease = append(c.onRelease, fn) }
}

// CountedHandle is a reference-counted pointer to a value shared by several
// owners. Clone adds an owner, Release removes one, and when the last owner
// releases, the payload's Drop method (if any) runs exactly once.
//
// Counting is not atomic. A handle, its clones and its payload must stay on one
// goroutine. Reference cycles are never collected.
type CountedHandle[T any] struct {
	_     noCopy
	block *heapBlock[T]
}

// NewCountedHandle allocates a block for value with a live count of one and
// returns the first handle on it.
func NewCountedHandle[T any](value T, opts ...HandleOption) *CountedHandle[T] {
	cfg := handleConfig{label: "counted handle"}
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &heapBlock[T]{
		value:     value,
		label:     cfg.label,
		logger:    cfg.logger,
		onRelease: cfg.onRelease,
	}
	b.count.Set(1)
	return &CountedHandle[T]{block: b}
}

// Value returns a copy of the shared payload. It panics with ErrReleased when
// called on a released handle.
func (h *CountedHandle[T]) Value() T {
	return h.live("Value").value
}

// Clone returns a new handle on the same payload and increments the live count.
// It panics with ErrReleased when called on a released handle.
func (h *CountedHandle[T]) Clone() *CountedHandle[T] {
	b := h.live("Clone")
	n := b.count.Get()
	b.count.Set(n + 1)
	return &CountedHandle[T]{block: b}
}

// Count reports how many unreleased handles share the payload. A released
// handle reports zero.
func (h *CountedHandle[T]) Count() int {
	if h.block == nil {
		return 0
	}
	return h.block.count.Get()
}

// Released reports whether Release has been called on h.
func (h *CountedHandle[T]) Released() bool {
	return h.block == nil
}

// Release gives up h's share of the payload. If h was the last live handle the
// payload is cleaned up. Calling Release again on the same handle does nothing.
func (h *CountedHandle[T]) Release() {
	b := h.block
	if b == nil {
		return
	}
	h.block = nil

	n := b.count.Get()
	if n != 1 {
		b.count.Set(n - 1)
		return
	}
	b.count.Set(0)

	if b.logger != nil {
		b.logger.Printf("%s: dropping last reference", b.label)
	}
	if d, ok := any(b.value).(Dropper); ok {
		d.Drop()
	}
	for _, fn := range b.onRelease {
		fn()
	}

	var zero T
	b.value = zero
	b.onRelease = nil
}

func (h *CountedHandle[T]) live(op string) *heapBlock[T] {
	if h.block == nil {
		panic(fmt.Errorf("%w: %s on released counted handle", ErrReleased, op))
	}
	return h.block
}
