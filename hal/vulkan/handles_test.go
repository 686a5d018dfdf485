package vulkan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/emberkit/ember/hal"
)

func TestTableNeverReusesHandles(t *testing.T) {
	var tb table[string]
	a := tb.put("a")
	b := tb.put("b")
	assert.NotEqual(t, hal.Handle(0), a)
	assert.NotEqual(t, a, b)

	v, ok := tb.take(a)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	_, ok = tb.get(a)
	assert.False(t, ok)
	_, ok = tb.take(a)
	assert.False(t, ok)

	c := tb.put("c")
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, tb.len())
}

func TestLookupDropsUnknown(t *testing.T) {
	var tb table[int]
	one := hal.Fence(tb.put(1))
	two := hal.Fence(tb.put(2))
	assert.Equal(t, []int{2, 1}, lookup(&tb, []hal.Fence{two, 99, one}))
	assert.Empty(t, lookup(&tb, []hal.Fence(nil)))
}

func TestExtent(t *testing.T) {
	assert.Equal(t, hal.Extent2D{Width: 640, Height: 480}, extent(core1_0.Extent2D{Width: 640, Height: 480}))
	assert.Equal(t, hal.UndefinedExtent, extent(core1_0.Extent2D{Width: -1, Height: -1}))
}
