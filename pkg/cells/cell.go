package cells

// MutableCell holds a single value that is only ever read or written as a whole.
// No pointer into the stored value is handed out, so a reader can never observe
// a write in progress. Get returns a shallow copy: if T holds pointers, slices or
// maps, the copy shares what they point to.
//
// A MutableCell must not be copied after first use and must not be shared
// between goroutines.
type MutableCell[T any] struct {
	_     noCopy
	value T
}

// NewMutableCell returns a cell holding value.
func NewMutableCell[T any](value T) *MutableCell[T] {
	return &MutableCell[T]{value: value}
}

// Set overwrites the stored value.
func (c *MutableCell[T]) Set(value T) {
	c.value = value
}

// Get returns a copy of the stored value.
func (c *MutableCell[T]) Get() T {
	return c.value
}

// Replace stores value and returns the value it replaced.
func (c *MutableCell[T]) Replace(value T) T {
	old := c.value
	c.value = value
	return old
}

// Take returns the stored value and leaves the zero value of T in its place.
func (c *MutableCell[T]) Take() T {
	var zero T
	return c.Replace(zero)
}
