package trace

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCommand parses one line of the interactive shell into a Step.
//
//	new_checked c 1
//	borrow c as r1 expect 1
//	write w 2
//	drop h
//
// For the new_* operations the first argument is the name to create and the
// optional second one its initial value. For every other operation the first
// argument is the target; "as NAME" names the result, "expect X" sets the
// expectation and a bare integer is the value.
func ParseCommand(line string) (Step, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Step{}, fmt.Errorf("%w: empty command", ErrInvalidStep)
	}

	step := Step{Op: Op(strings.ReplaceAll(fields[0], "-", "_"))}
	if !knownOps[step.Op] {
		return Step{}, fmt.Errorf("%w: %q", ErrUnknownOp, fields[0])
	}
	if len(fields) < 2 {
		return Step{}, fmt.Errorf("%w: %s needs an argument", ErrInvalidStep, step.Op)
	}

	switch step.Op {
	case OpNewMutable, OpNewCounted, OpNewChecked:
		step.As = fields[1]
	default:
		step.Target = fields[1]
	}

	rest := fields[2:]
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "as", "expect":
			if i+1 >= len(rest) {
				return Step{}, fmt.Errorf("%w: %q needs an argument", ErrInvalidStep, rest[i])
			}
			if rest[i] == "as" {
				step.As = rest[i+1]
			} else {
				step.Expect = rest[i+1]
			}
			i++
		default:
			n, err := strconv.ParseInt(rest[i], 10, 64)
			if err != nil {
				return Step{}, fmt.Errorf("%w: unexpected %q", ErrInvalidStep, rest[i])
			}
			if step.Value != nil {
				return Step{}, fmt.Errorf("%w: more than one value", ErrInvalidStep)
			}
			step.Value = int64Ptr(n)
		}
	}
	return step, nil
}
