// Package trace drives the cells primitives by name, one step at a time, and
// records what each step observed. It backs the cellar run and repl commands.
package trace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Op names an operation a Step performs.
type Op string

// Operations on mutable cells.
const (
	OpNewMutable Op = "new_mutable"
	OpGet        Op = "get"
	OpSet        Op = "set"
)

// Operations on counted handles.
const (
	OpNewCounted Op = "new_counted"
	OpClone      Op = "clone"
	OpDrop       Op = "drop"
	OpValue      Op = "value"
	OpCount      Op = "count"
)

// Operations on checked cells and their views.
const (
	OpNewChecked Op = "new_checked"
	OpBorrow     Op = "borrow"
	OpBorrowMut  Op = "borrow_mut"
	OpRelease    Op = "release"
	OpRead       Op = "read"
	OpWrite      Op = "write"
	OpReplace    Op = "replace"
	OpState      Op = "state"
)

// knownOps is the set of operations Exec accepts.
var knownOps = map[Op]bool{
	OpNewMutable: true, OpGet: true, OpSet: true,
	OpNewCounted: true, OpClone: true, OpDrop: true, OpValue: true, OpCount: true,
	OpNewChecked: true, OpBorrow: true, OpBorrowMut: true, OpRelease: true,
	OpRead: true, OpWrite: true, OpReplace: true, OpState: true,
}

// Step results.
const (
	ResultOK      = "ok"
	ResultBusy    = "busy"
	ResultFatal   = "fatal"
	ResultDropped = "dropped"
)

// Errors returned by Machine and script loading.
var (
	ErrUnknownOp      = errors.New("unknown operation")
	ErrUnknownTarget  = errors.New("unknown target")
	ErrDuplicateName  = errors.New("name already in use")
	ErrInvalidStep    = errors.New("invalid step")
	ErrInvalidScript  = errors.New("invalid script")
	ErrExpectation    = errors.New("expectation not met")
	ErrFatal          = errors.New("fatal error in primitive")
	ErrWrongGoroutine = errors.New("machine used from another goroutine")
)

// Step is one operation against a named target.
type Step struct {
	// Op is the operation to perform.
	Op Op `yaml:"op" json:"op"`

	// Target names the cell, handle or view the operation acts on.
	Target string `yaml:"target,omitempty" json:"target,omitempty"`

	// As names the cell, handle or view the operation creates.
	As string `yaml:"as,omitempty" json:"as,omitempty"`

	// Value is the operand of set, write, replace and the new_* operations.
	Value *int64 `yaml:"value,omitempty" json:"value,omitempty"`

	// Expect, if set, is checked against the resulting Event: a result name
	// (ok, busy, fatal, dropped), a borrow state (unshared, shared(n),
	// exclusive) or an integer the observed value must equal.
	Expect string `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// Event records what a single step observed.
type Event struct {
	Seq    int    `json:"seq"`
	Op     Op     `json:"op"`
	Target string `json:"target,omitempty"`
	As     string `json:"as,omitempty"`
	Result string `json:"result"`
	Value  *int64 `json:"value,omitempty"`
	State  string `json:"state,omitempty"`
	Count  *int   `json:"count,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// String formats the event as a single line.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%3d %-11s", e.Seq, e.Op)
	subject := e.Target
	if e.As != "" {
		if subject != "" {
			subject += " -> "
		}
		subject += e.As
	}
	fmt.Fprintf(&b, " %-12s %s", subject, e.Result)
	if e.Value != nil {
		b.WriteString(" value=" + strconv.FormatInt(*e.Value, 10))
	}
	if e.Count != nil {
		b.WriteString(" count=" + strconv.Itoa(*e.Count))
	}
	if e.State != "" {
		b.WriteString(" state=" + e.State)
	}
	if e.Detail != "" {
		b.WriteString(" (" + e.Detail + ")")
	}
	return b.String()
}

// matches reports whether the event satisfies expect.
func (e Event) matches(expect string) bool {
	switch expect {
	case "":
		return true
	case ResultOK, ResultBusy, ResultFatal, ResultDropped:
		return e.Result == expect
	}
	if n, err := strconv.ParseInt(expect, 10, 64); err == nil {
		return e.Value != nil && *e.Value == n
	}
	return e.State == expect
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }
