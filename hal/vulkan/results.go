package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/emberkit/ember/hal"
)

const (
	vkErrorMemoryMapFailed common.VkResult = -5
	vkErrorFragmentedPool  common.VkResult = -12
	// VK_ERROR_OUT_OF_POOL_MEMORY, promoted to core in 1.1.
	vkErrorOutOfPoolMemory common.VkResult = -1000069000
)

// check turns a failed call into an error marked with the hal sentinel the
// device layer branches on.
func check(res common.VkResult, err error, op string) error {
	if err == nil {
		return nil
	}
	err = errors.Wrap(err, op)
	switch res {
	case core1_0.VKErrorOutOfDeviceMemory, core1_0.VKErrorOutOfHostMemory:
		return errors.Mark(err, hal.ErrOutOfMemory)
	case core1_0.VKErrorDeviceLost:
		return errors.Mark(err, hal.ErrDeviceLost)
	case vkErrorFragmentedPool, vkErrorOutOfPoolMemory:
		return errors.Mark(err, hal.ErrPoolExhausted)
	}
	return err
}

// presentStatus maps the results of acquire and present that are not
// failures of the frame.
func presentStatus(res common.VkResult, err error, op string) (hal.PresentStatus, error) {
	switch res {
	case khr_swapchain.VKErrorOutOfDate:
		return hal.StatusOutOfDate, nil
	case khr_swapchain.VKSuboptimal:
		return hal.StatusSuboptimal, nil
	}
	if err != nil {
		return hal.StatusOK, check(res, err, op)
	}
	return hal.StatusOK, nil
}
