package cells

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutableCell_GetSet(t *testing.T) {
	c := NewMutableCell(1)
	assert.Equal(t, 1, c.Get())

	c.Set(2)
	assert.Equal(t, 2, c.Get())
}

func TestMutableCell_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		first  string
		second string
	}{
		{name: "distinct values", first: "a", second: "b"},
		{name: "same value", first: "x", second: "x"},
		{name: "empty to non-empty", first: "", second: "filled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewMutableCell(tt.first)
			assert.Equal(t, tt.first, c.Get())
			c.Set(tt.second)
			assert.Equal(t, tt.second, c.Get())
		})
	}
}

func TestMutableCell_GetReturnsCopy(t *testing.T) {
	type point struct{ X, Y int }

	c := NewMutableCell(point{X: 1, Y: 2})
	p := c.Get()
	p.X = 100

	assert.Equal(t, point{X: 1, Y: 2}, c.Get(), "mutating the copy must not reach the cell")
}

func TestMutableCell_Replace(t *testing.T) {
	c := NewMutableCell(10)

	old := c.Replace(20)
	assert.Equal(t, 10, old)
	assert.Equal(t, 20, c.Get())
}

func TestMutableCell_Take(t *testing.T) {
	c := NewMutableCell([]int{1, 2, 3})

	got := c.Take()
	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Nil(t, c.Get())
}
