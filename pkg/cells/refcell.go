package cells

import "fmt"

// CheckedCell holds a value that can be borrowed by any number of readers or by
// a single writer, never both. The rule is checked when a view is requested:
// Borrow and BorrowMut report a conflicting request by returning false rather
// than blocking. Each view must be released exactly once; Read and Write do that
// through defer.
//
// A CheckedCell must not be copied after first use, must outlive every view
// taken from it, and must not be shared between goroutines.
type CheckedCell[T any] struct {
	_     noCopy
	value T
	state MutableCell[RefState]
}

// NewCheckedCell returns an Unshared cell holding value.
func NewCheckedCell[T any](value T) *CheckedCell[T] {
	return &CheckedCell[T]{value: value}
}

// State returns the current borrow state.
func (c *CheckedCell[T]) State() RefState {
	return c.state.Get()
}

// Borrow returns a read view of the value. ok is false while an ExclusiveView
// is outstanding.
func (c *CheckedCell[T]) Borrow() (v *SharedView[T], ok bool) {
	s := c.state.Get()
	switch s.mode {
	case ModeUnshared:
		c.state.Set(Shared(1))
	case ModeShared:
		c.state.Set(Shared(s.readers + 1))
	default:
		return nil, false
	}
	return &SharedView[T]{cell: c}, true
}

// BorrowMut returns a read-write view of the value. ok is false while any view
// is outstanding.
func (c *CheckedCell[T]) BorrowMut() (v *ExclusiveView[T], ok bool) {
	if c.state.Get().mode != ModeUnshared {
		return nil, false
	}
	c.state.Set(Exclusive())
	return &ExclusiveView[T]{cell: c}, true
}

// Replace stores value and returns the previous one. Unlike Borrow and
// BorrowMut, a conflicting view is not reported through a return value:
// Replace panics with an error wrapping ErrAlreadyBorrowed.
func (c *CheckedCell[T]) Replace(value T) T {
	w, ok := c.BorrowMut()
	if !ok {
		panic(fmt.Errorf("%w: replace while %s", ErrAlreadyBorrowed, c.state.Get()))
	}
	defer w.Release()

	old := w.Value()
	w.Set(value)
	return old
}

// Read calls fn with the value under a SharedView. It returns false without
// calling fn when the cell is exclusively borrowed.
func (c *CheckedCell[T]) Read(fn func(T)) bool {
	r, ok := c.Borrow()
	if !ok {
		return false
	}
	defer r.Release()
	fn(r.Value())
	return true
}

// Write calls fn with a pointer to the value under an ExclusiveView. It returns
// false without calling fn when the cell is borrowed. fn must not retain the
// pointer.
func (c *CheckedCell[T]) Write(fn func(*T)) bool {
	w, ok := c.BorrowMut()
	if !ok {
		return false
	}
	defer w.Release()
	w.Mutate(fn)
	return true
}

// SharedView is an outstanding read borrow of a CheckedCell.
type SharedView[T any] struct {
	_    noCopy
	cell *CheckedCell[T]
}

// Value returns a copy of the borrowed value.
func (v *SharedView[T]) Value() T {
	return v.live("Value").value
}

// Released reports whether the view has been released.
func (v *SharedView[T]) Released() bool {
	return v.cell == nil
}

// Release ends the borrow. Releasing an already released view does nothing.
func (v *SharedView[T]) Release() {
	c := v.cell
	if c == nil {
		return
	}
	v.cell = nil

	s := c.state.Get()
	switch {
	case s.mode != ModeShared:
		panic(fmt.Errorf("%w: shared view released while %s", ErrInvalidState, s))
	case s.readers == 1:
		c.state.Set(Unshared())
	default:
		c.state.Set(Shared(s.readers - 1))
	}
}

func (v *SharedView[T]) live(op string) *CheckedCell[T] {
	if v.cell == nil {
		panic(fmt.Errorf("%w: %s on released shared view", ErrReleased, op))
	}
	return v.cell
}

// ExclusiveView is the outstanding write borrow of a CheckedCell.
type ExclusiveView[T any] struct {
	_    noCopy
	cell *CheckedCell[T]
}

// Value returns a copy of the borrowed value.
func (v *ExclusiveView[T]) Value() T {
	return v.live("Value").value
}

// Set overwrites the borrowed value.
func (v *ExclusiveView[T]) Set(value T) {
	v.live("Set").value = value
}

// Mutate calls fn with a pointer to the borrowed value. fn must not retain the
// pointer past the call.
func (v *ExclusiveView[T]) Mutate(fn func(*T)) {
	fn(&v.live("Mutate").value)
}

// Released reports whether the view has been released.
func (v *ExclusiveView[T]) Released() bool {
	return v.cell == nil
}

// Release ends the borrow. Releasing an already released view does nothing.
func (v *ExclusiveView[T]) Release() {
	c := v.cell
	if c == nil {
		return
	}
	v.cell = nil

	if s := c.state.Get(); s.mode != ModeExclusive {
		panic(fmt.Errorf("%w: exclusive view released while %s", ErrInvalidState, s))
	}
	c.state.Set(Unshared())
}

func (v *ExclusiveView[T]) live(op string) *CheckedCell[T] {
	if v.cell == nil {
		panic(fmt.Errorf("%w: %s on released exclusive view", ErrReleased, op))
	}
	return v.cell
}
