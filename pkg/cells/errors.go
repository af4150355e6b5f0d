package cells

import "errors"

// Errors carried by the panics this package raises. Callers that recover a
// panic can match them with errors.Is.
var (
	ErrAlreadyBorrowed = errors.New("cell is already borrowed")
	ErrInvalidState    = errors.New("borrow state does not match guard")
	ErrReleased        = errors.New("use of released handle or view")
)
