package cells

import "strconv"

// BorrowMode is the tag of a RefState.
type BorrowMode uint8

// Borrow modes.
const (
	ModeUnshared BorrowMode = iota
	ModeShared
	ModeExclusive
)

// String returns the lower-case name of the mode.
func (m BorrowMode) String() string {
	switch m {
	case ModeUnshared:
		return "unshared"
	case ModeShared:
		return "shared"
	case ModeExclusive:
		return "exclusive"
	default:
		return "BorrowMode(" + strconv.Itoa(int(m)) + ")"
	}
}

// RefState is the borrow state of a CheckedCell: Unshared, Shared(n) with n
// outstanding SharedViews, or Exclusive with one outstanding ExclusiveView.
// The zero value is Unshared.
type RefState struct {
	mode    BorrowMode
	readers int
}

// Unshared returns the state with no outstanding views.
func Unshared() RefState { return RefState{} }

// Shared returns the state with n outstanding SharedViews. It panics if n < 1.
func Shared(n int) RefState {
	if n < 1 {
		panic("cells: Shared requires at least one reader, got " + strconv.Itoa(n))
	}
	return RefState{mode: ModeShared, readers: n}
}

// Exclusive returns the state with one outstanding ExclusiveView.
func Exclusive() RefState { return RefState{mode: ModeExclusive} }

// Mode returns the tag of s.
func (s RefState) Mode() BorrowMode { return s.mode }

// Readers returns the number of outstanding SharedViews; zero unless s is Shared.
func (s RefState) Readers() int { return s.readers }

func (s RefState) String() string {
	if s.mode == ModeShared {
		return "shared(" + strconv.Itoa(s.readers) + ")"
	}
	return s.mode.String()
}
