package trace

import (
	"fmt"
	"log"
	"sort"

	"github.com/jtolds/gls"

	"github.com/mesh-intelligence/cellar/pkg/cells"
)

// Payload is the value held by counted handles created through a Machine.
type Payload struct {
	Name string
	Bar  int64

	onDrop func(name string)
}

// Drop records that the last handle on the payload was released.
func (p *Payload) Drop() {
	if p.onDrop != nil {
		p.onDrop(p.Name)
	}
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger passes l to every counted handle the machine creates.
func WithLogger(l *log.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

type sharedRef struct {
	cell string
	view *cells.SharedView[int64]
}

type exclusiveRef struct {
	cell string
	view *cells.ExclusiveView[int64]
}

// Machine owns a set of named primitives and applies Steps to them. A Machine
// is bound to the goroutine that Session ran it on; Exec from any other
// goroutine fails with ErrWrongGoroutine.
type Machine struct {
	owner  uint
	logger *log.Logger
	seq    int
	halted bool

	mutables  map[string]*cells.MutableCell[int64]
	handles   map[string]*cells.CountedHandle[*Payload]
	checked   map[string]*cells.CheckedCell[int64]
	shared    map[string]sharedRef
	exclusive map[string]exclusiveRef

	drops []string
}

// Session creates a Machine bound to the calling goroutine and passes it to fn.
// The machine must not be used after fn returns.
func Session(fn func(m *Machine) error, opts ...Option) error {
	var err error
	gls.EnsureGoroutineId(func(gid uint) {
		err = fn(newMachine(gid, opts...))
	})
	return err
}

func newMachine(owner uint, opts ...Option) *Machine {
	m := &Machine{
		owner:     owner,
		mutables:  make(map[string]*cells.MutableCell[int64]),
		handles:   make(map[string]*cells.CountedHandle[*Payload]),
		checked:   make(map[string]*cells.CheckedCell[int64]),
		shared:    make(map[string]sharedRef),
		exclusive: make(map[string]exclusiveRef),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Halted reports whether a primitive has panicked. A halted machine rejects
// every further step.
func (m *Machine) Halted() bool {
	return m.halted
}

// Outstanding returns the names of counted handles and views that have not
// been released, sorted.
func (m *Machine) Outstanding() []string {
	var names []string
	for name := range m.handles {
		names = append(names, name)
	}
	for name := range m.shared {
		names = append(names, name)
	}
	for name := range m.exclusive {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Exec applies step and returns the event it produced. A panic raised by a
// primitive halts the machine and is reported as a fatal event together with
// an error wrapping ErrFatal, unless the step expected it.
func (m *Machine) Exec(step Step) (ev Event, err error) {
	if gid, ok := gls.GetGoroutineId(); !ok || gid != m.owner {
		return Event{}, ErrWrongGoroutine
	}
	if m.halted {
		return Event{}, fmt.Errorf("%w: machine halted", ErrFatal)
	}
	if !knownOps[step.Op] {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownOp, step.Op)
	}

	m.seq++
	ev = Event{Seq: m.seq, Op: step.Op, Target: step.Target, As: step.As}

	defer func() {
		r := recover()
		if r == nil {
			return
		}
		m.halted = true
		ev.Result = ResultFatal
		ev.Detail = fmt.Sprint(r)
		if step.Expect == ResultFatal {
			err = nil
			return
		}
		err = fmt.Errorf("%w: step %d (%s): %v", ErrFatal, ev.Seq, step.Op, r)
	}()

	if err := m.apply(step, &ev); err != nil {
		return ev, err
	}
	if !ev.matches(step.Expect) {
		return ev, fmt.Errorf("%w: step %d (%s): want %s, got %s", ErrExpectation, ev.Seq, step.Op, step.Expect, ev.summary())
	}
	return ev, nil
}

func (e Event) summary() string {
	s := e.Result
	if e.Value != nil {
		s += fmt.Sprintf(" value=%d", *e.Value)
	}
	if e.State != "" {
		s += " state=" + e.State
	}
	return s
}

func (m *Machine) apply(step Step, ev *Event) error {
	ev.Result = ResultOK

	switch step.Op {
	case OpNewMutable, OpNewCounted, OpNewChecked:
		return m.create(step, ev)

	case OpGet, OpSet:
		c, ok := m.mutables[step.Target]
		if !ok {
			return m.unknown(step)
		}
		if step.Op == OpSet {
			if step.Value == nil {
				return fmt.Errorf("%w: set needs a value", ErrInvalidStep)
			}
			c.Set(*step.Value)
		}
		ev.Value = int64Ptr(c.Get())

	case OpClone:
		h, ok := m.handles[step.Target]
		if !ok {
			return m.unknown(step)
		}
		if err := m.claim(step.As); err != nil {
			return err
		}
		c := h.Clone()
		m.handles[step.As] = c
		ev.Count = intPtr(c.Count())

	case OpDrop:
		h, ok := m.handles[step.Target]
		if !ok {
			return m.unknown(step)
		}
		remaining := h.Count() - 1
		delete(m.handles, step.Target)
		h.Release()
		ev.Count = intPtr(remaining)
		if len(m.drops) > 0 {
			ev.Result = ResultDropped
			ev.Detail = "payload " + m.drops[0] + " dropped"
			m.drops = m.drops[:0]
		}

	case OpValue, OpCount:
		h, ok := m.handles[step.Target]
		if !ok {
			return m.unknown(step)
		}
		if step.Op == OpValue {
			ev.Value = int64Ptr(h.Value().Bar)
		}
		ev.Count = intPtr(h.Count())

	case OpBorrow, OpBorrowMut:
		return m.borrow(step, ev)

	case OpRelease:
		if r, ok := m.shared[step.Target]; ok {
			delete(m.shared, step.Target)
			r.view.Release()
			ev.State = m.checked[r.cell].State().String()
			return nil
		}
		if w, ok := m.exclusive[step.Target]; ok {
			delete(m.exclusive, step.Target)
			w.view.Release()
			ev.State = m.checked[w.cell].State().String()
			return nil
		}
		return m.unknown(step)

	case OpRead:
		return m.read(step, ev)

	case OpWrite:
		return m.write(step, ev)

	case OpReplace:
		c, ok := m.checked[step.Target]
		if !ok {
			return m.unknown(step)
		}
		if step.Value == nil {
			return fmt.Errorf("%w: replace needs a value", ErrInvalidStep)
		}
		ev.Value = int64Ptr(c.Replace(*step.Value))
		ev.State = c.State().String()

	case OpState:
		c, ok := m.checked[step.Target]
		if !ok {
			return m.unknown(step)
		}
		ev.State = c.State().String()
	}
	return nil
}

func (m *Machine) create(step Step, ev *Event) error {
	if err := m.claim(step.As); err != nil {
		return err
	}
	var v int64
	if step.Value != nil {
		v = *step.Value
	}
	ev.Value = int64Ptr(v)

	switch step.Op {
	case OpNewMutable:
		m.mutables[step.As] = cells.NewMutableCell(v)
	case OpNewCounted:
		opts := []cells.HandleOption{cells.WithLabel(step.As)}
		if m.logger != nil {
			opts = append(opts, cells.WithLogger(m.logger))
		}
		p := &Payload{Name: step.As, Bar: v, onDrop: m.recordDrop}
		h := cells.NewCountedHandle(p, opts...)
		m.handles[step.As] = h
		ev.Count = intPtr(h.Count())
	case OpNewChecked:
		c := cells.NewCheckedCell(v)
		m.checked[step.As] = c
		ev.State = c.State().String()
	}
	return nil
}

func (m *Machine) borrow(step Step, ev *Event) error {
	c, ok := m.checked[step.Target]
	if !ok {
		return m.unknown(step)
	}
	if err := m.claim(step.As); err != nil {
		return err
	}

	if step.Op == OpBorrow {
		if r, ok := c.Borrow(); ok {
			m.shared[step.As] = sharedRef{cell: step.Target, view: r}
			ev.Value = int64Ptr(r.Value())
		} else {
			ev.Result = ResultBusy
		}
	} else {
		if w, ok := c.BorrowMut(); ok {
			m.exclusive[step.As] = exclusiveRef{cell: step.Target, view: w}
			ev.Value = int64Ptr(w.Value())
		} else {
			ev.Result = ResultBusy
		}
	}
	ev.State = c.State().String()
	return nil
}

func (m *Machine) read(step Step, ev *Event) error {
	if r, ok := m.shared[step.Target]; ok {
		ev.Value = int64Ptr(r.view.Value())
		return nil
	}
	if w, ok := m.exclusive[step.Target]; ok {
		ev.Value = int64Ptr(w.view.Value())
		return nil
	}
	c, ok := m.checked[step.Target]
	if !ok {
		return m.unknown(step)
	}
	if !c.Read(func(v int64) { ev.Value = int64Ptr(v) }) {
		ev.Result = ResultBusy
	}
	ev.State = c.State().String()
	return nil
}

func (m *Machine) write(step Step, ev *Event) error {
	if step.Value == nil {
		return fmt.Errorf("%w: write needs a value", ErrInvalidStep)
	}
	v := *step.Value
	if w, ok := m.exclusive[step.Target]; ok {
		w.view.Set(v)
		ev.Value = int64Ptr(v)
		return nil
	}
	if _, ok := m.shared[step.Target]; ok {
		return fmt.Errorf("%w: %s is a shared view", ErrInvalidStep, step.Target)
	}
	c, ok := m.checked[step.Target]
	if !ok {
		return m.unknown(step)
	}
	if c.Write(func(p *int64) { *p = v }) {
		ev.Value = int64Ptr(v)
	} else {
		ev.Result = ResultBusy
	}
	ev.State = c.State().String()
	return nil
}

// claim checks that name is usable for a new cell, handle or view.
func (m *Machine) claim(name string) error {
	if name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidStep)
	}
	_, a := m.mutables[name]
	_, b := m.handles[name]
	_, c := m.checked[name]
	_, d := m.shared[name]
	_, e := m.exclusive[name]
	if a || b || c || d || e {
		return fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	return nil
}

func (m *Machine) unknown(step Step) error {
	return fmt.Errorf("%w: %s %q", ErrUnknownTarget, step.Op, step.Target)
}

func (m *Machine) recordDrop(name string) {
	m.drops = append(m.drops, name)
}
