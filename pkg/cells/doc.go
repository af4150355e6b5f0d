// Package cells provides interior-mutability primitives for single-goroutine code:
// MutableCell (whole-value get/set), CountedHandle (reference-counted shared
// ownership with deterministic cleanup), and CheckedCell (many readers xor one
// writer, checked at run time through SharedView and ExclusiveView guards).
//
// None of the types in this package are safe for concurrent use. A value and
// every handle or view derived from it must stay on the goroutine that created
// it. Each type embeds a noCopy marker so that go vet reports accidental copies.
package cells
