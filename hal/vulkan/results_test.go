package vulkan

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/emberkit/ember/hal"
)

func TestCheckMarksSentinels(t *testing.T) {
	cause := errors.New("driver said no")
	tests := []struct {
		name string
		res  common.VkResult
		mark error
	}{
		{"device memory", core1_0.VKErrorOutOfDeviceMemory, hal.ErrOutOfMemory},
		{"host memory", core1_0.VKErrorOutOfHostMemory, hal.ErrOutOfMemory},
		{"device lost", core1_0.VKErrorDeviceLost, hal.ErrDeviceLost},
		{"fragmented pool", vkErrorFragmentedPool, hal.ErrPoolExhausted},
		{"out of pool memory", vkErrorOutOfPoolMemory, hal.ErrPoolExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := check(tt.res, cause, "allocate")
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.mark))
			assert.True(t, errors.Is(err, cause))
			assert.Contains(t, err.Error(), "allocate")
		})
	}
}

func TestCheckPassesThrough(t *testing.T) {
	assert.NoError(t, check(core1_0.VKSuccess, nil, "op"))

	err := check(vkErrorMemoryMapFailed, errors.New("map"), "map memory")
	require.Error(t, err)
	assert.False(t, errors.Is(err, hal.ErrOutOfMemory))
	assert.False(t, errors.Is(err, hal.ErrDeviceLost))
}

func TestPresentStatus(t *testing.T) {
	status, err := presentStatus(khr_swapchain.VKErrorOutOfDate, errors.New("out of date"), "present")
	assert.NoError(t, err)
	assert.Equal(t, hal.StatusOutOfDate, status)

	status, err = presentStatus(khr_swapchain.VKSuboptimal, nil, "present")
	assert.NoError(t, err)
	assert.Equal(t, hal.StatusSuboptimal, status)

	status, err = presentStatus(core1_0.VKSuccess, nil, "present")
	assert.NoError(t, err)
	assert.Equal(t, hal.StatusOK, status)

	_, err = presentStatus(core1_0.VKErrorDeviceLost, errors.New("lost"), "present")
	assert.True(t, errors.Is(err, hal.ErrDeviceLost))
}
