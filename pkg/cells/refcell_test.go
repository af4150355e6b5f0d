package cells

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedCell_Scenario(t *testing.T) {
	cell := NewCheckedCell(1)

	// Two readers at once.
	borrow1, ok := cell.Borrow()
	require.True(t, ok)
	assert.Equal(t, 1, borrow1.Value())

	borrow2, ok := cell.Borrow()
	require.True(t, ok)
	assert.Equal(t, 1, borrow2.Value())
	assert.Equal(t, Shared(2), cell.State())

	// No writer while they are alive.
	w, ok := cell.BorrowMut()
	assert.False(t, ok)
	assert.Nil(t, w)

	borrow1.Release()
	borrow2.Release()
	assert.Equal(t, Unshared(), cell.State())

	// Writer once they are gone.
	w, ok = cell.BorrowMut()
	require.True(t, ok)
	w.Set(2)
	w.Release()

	r, ok := cell.Borrow()
	require.True(t, ok)
	assert.Equal(t, 2, r.Value())
	r.Release()

	// Replace on an unborrowed cell.
	assert.Equal(t, 2, cell.Replace(3))
	r, ok = cell.Borrow()
	require.True(t, ok)
	assert.Equal(t, 3, r.Value())
	r.Release()
}

func TestCheckedCell_Transitions(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(c *CheckedCell[int]) func()
		wantShared bool
		wantExcl   bool
	}{
		{
			name:       "unshared",
			setup:      func(c *CheckedCell[int]) func() { return func() {} },
			wantShared: true,
			wantExcl:   true,
		},
		{
			name: "shared",
			setup: func(c *CheckedCell[int]) func() {
				r, _ := c.Borrow()
				return r.Release
			},
			wantShared: true,
			wantExcl:   false,
		},
		{
			name: "exclusive",
			setup: func(c *CheckedCell[int]) func() {
				w, _ := c.BorrowMut()
				return w.Release
			},
			wantShared: false,
			wantExcl:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/borrow", func(t *testing.T) {
			c := NewCheckedCell(0)
			done := tt.setup(c)
			r, ok := c.Borrow()
			assert.Equal(t, tt.wantShared, ok)
			if ok {
				r.Release()
			}
			done()
			assert.Equal(t, Unshared(), c.State())
		})
		t.Run(tt.name+"/borrow_mut", func(t *testing.T) {
			c := NewCheckedCell(0)
			done := tt.setup(c)
			w, ok := c.BorrowMut()
			assert.Equal(t, tt.wantExcl, ok)
			if ok {
				w.Release()
			}
			done()
			assert.Equal(t, Unshared(), c.State())
		})
	}
}

func TestCheckedCell_ManyReaders(t *testing.T) {
	c := NewCheckedCell("v")
	views := make([]*SharedView[string], 0, 10)
	for i := 1; i <= 10; i++ {
		r, ok := c.Borrow()
		require.True(t, ok)
		assert.Equal(t, "v", r.Value())
		assert.Equal(t, Shared(i), c.State())
		views = append(views, r)
	}

	for i, r := range views {
		r.Release()
		if left := len(views) - i - 1; left > 0 {
			assert.Equal(t, Shared(left), c.State())
		}
	}
	assert.Equal(t, Unshared(), c.State())
}

func TestCheckedCell_ReplaceWhileBorrowedPanics(t *testing.T) {
	c := NewCheckedCell(1)

	r, _ := c.Borrow()
	err := recoverPanic(func() { c.Replace(2) })
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)
	r.Release()

	w, _ := c.BorrowMut()
	err = recoverPanic(func() { c.Replace(2) })
	assert.ErrorIs(t, err, ErrAlreadyBorrowed)
	w.Release()

	assert.Equal(t, 1, c.Replace(5), "failed replaces must leave the value untouched")
	assert.Equal(t, Unshared(), c.State())
}

func TestCheckedCell_ReadWrite(t *testing.T) {
	c := NewCheckedCell([]string{"a"})

	ok := c.Write(func(v *[]string) { *v = append(*v, "b") })
	require.True(t, ok)

	var got []string
	ok = c.Read(func(v []string) { got = v })
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, Unshared(), c.State())

	w, _ := c.BorrowMut()
	called := false
	assert.False(t, c.Read(func([]string) { called = true }))
	assert.False(t, c.Write(func(*[]string) { called = true }))
	assert.False(t, called)
	w.Release()
}

func TestCheckedCell_WriteReleasesOnPanic(t *testing.T) {
	c := NewCheckedCell(0)
	boom := errors.New("boom")

	err := recoverPanic(func() {
		c.Write(func(v *int) {
			*v = 9
			panic(boom)
		})
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Unshared(), c.State())

	err = recoverPanic(func() {
		c.Read(func(int) { panic(boom) })
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, Unshared(), c.State())
	assert.Equal(t, 9, c.Replace(0))
}

func TestCheckedCell_ExclusiveViewMutate(t *testing.T) {
	type counter struct{ n int }
	c := NewCheckedCell(counter{})

	w, ok := c.BorrowMut()
	require.True(t, ok)
	w.Mutate(func(v *counter) { v.n += 2 })
	assert.Equal(t, counter{n: 2}, w.Value())
	w.Release()
}

func TestViews_ReleaseIdempotent(t *testing.T) {
	c := NewCheckedCell(0)

	r1, _ := c.Borrow()
	r2, _ := c.Borrow()
	r1.Release()
	r1.Release()
	assert.Equal(t, Shared(1), c.State(), "double release must not drop another reader")
	r2.Release()

	w, _ := c.BorrowMut()
	w.Release()
	w.Release()
	assert.Equal(t, Unshared(), c.State())
	assert.True(t, w.Released())
}

func TestViews_UseAfterRelease(t *testing.T) {
	c := NewCheckedCell(0)

	r, _ := c.Borrow()
	r.Release()
	assert.True(t, r.Released())
	assert.ErrorIs(t, recoverPanic(func() { r.Value() }), ErrReleased)

	w, _ := c.BorrowMut()
	w.Release()
	assert.ErrorIs(t, recoverPanic(func() { w.Value() }), ErrReleased)
	assert.ErrorIs(t, recoverPanic(func() { w.Set(1) }), ErrReleased)
	assert.ErrorIs(t, recoverPanic(func() { w.Mutate(func(*int) {}) }), ErrReleased)
}

func TestViews_CorruptStatePanics(t *testing.T) {
	tests := []struct {
		name    string
		corrupt RefState
		shared  bool
	}{
		{name: "shared view sees unshared", corrupt: Unshared(), shared: true},
		{name: "shared view sees exclusive", corrupt: Exclusive(), shared: true},
		{name: "exclusive view sees unshared", corrupt: Unshared(), shared: false},
		{name: "exclusive view sees shared", corrupt: Shared(2), shared: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCheckedCell(0)
			var release func()
			if tt.shared {
				r, _ := c.Borrow()
				release = r.Release
			} else {
				w, _ := c.BorrowMut()
				release = w.Release
			}
			c.state.Set(tt.corrupt)
			assert.ErrorIs(t, recoverPanic(release), ErrInvalidState)
		})
	}
}
