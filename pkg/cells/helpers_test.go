package cells

import "fmt"

// recoverPanic runs fn and returns the value it panicked with as an error, or
// nil if fn returned normally.
func recoverPanic(fn func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok {
			err = e
			return
		}
		err = fmt.Errorf("%v", r)
	}()
	fn()
	return nil
}
