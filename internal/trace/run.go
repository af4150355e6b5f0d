package trace

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Run statuses.
const (
	StatusPassed   = "passed"
	StatusFailed   = "failed"
	StatusAborted  = "aborted"
	StatusCanceled = "canceled"
)

// Result is the outcome of running a Script.
type Result struct {
	Script      string    `json:"script"`
	Status      string    `json:"status"`
	Events      []Event   `json:"events"`
	Outstanding []string  `json:"outstanding,omitempty"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Run executes the script's steps in order on a fresh Machine. It stops at the
// first step that returns an error, after a fatal step, or when ctx is done.
// The returned Result is complete in every case; the error is non-nil unless
// the status is passed, or aborted by a fatal step the script expected.
func Run(ctx context.Context, s *Script, opts ...Option) (Result, error) {
	res := Result{Script: s.Name, StartedAt: time.Now().UTC()}

	err := Session(func(m *Machine) error {
		defer func() { res.Outstanding = m.Outstanding() }()

		for i, step := range s.Steps {
			if err := ctx.Err(); err != nil {
				return err
			}
			if m.Halted() {
				return fmt.Errorf("%w: %d steps not run", ErrFatal, len(s.Steps)-i)
			}
			ev, err := m.Exec(step)
			if ev.Seq > 0 {
				res.Events = append(res.Events, ev)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}, opts...)

	res.FinishedAt = time.Now().UTC()
	switch {
	case err == nil && len(res.Events) > 0 && res.Events[len(res.Events)-1].Result == ResultFatal:
		res.Status = StatusAborted
	case err == nil:
		res.Status = StatusPassed
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		res.Status = StatusCanceled
	case errors.Is(err, ErrFatal):
		res.Status = StatusAborted
	default:
		res.Status = StatusFailed
	}
	if err != nil {
		res.Error = err.Error()
	}
	return res, err
}
