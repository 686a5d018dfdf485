package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/emberkit/ember/hal"
)

// swapchain remembers the image handles it handed out. They are owned by
// the swapchain and go away with it.
type swapchain struct {
	sc     khr_swapchain.Swapchain
	images []hal.Image
}

func (d *Device) chain(h hal.Swapchain) (*swapchain, error) {
	sc, ok := d.swapchains.get(hal.Handle(h))
	if !ok {
		return nil, errors.Newf("unknown swapchain %d", h)
	}
	return sc, nil
}

func (d *Device) CreateSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	surface, err := d.inst.surface(desc.Surface)
	if err != nil {
		return 0, err
	}
	caps, err := d.adapter.capabilities(desc.Surface)
	if err != nil {
		return 0, err
	}

	sharing := core1_0.SharingModeExclusive
	var families []int
	seen := map[int]bool{}
	for _, f := range desc.QueueFamilies {
		if !seen[f] {
			seen[f] = true
			families = append(families, f)
		}
	}
	if len(families) > 1 {
		sharing = core1_0.SharingModeConcurrent
	} else {
		families = nil
	}

	sc, res, err := d.swapchainExt.CreateSwapchain(nil, khr_swapchain.SwapchainCreateInfo{
		Surface: surface,

		MinImageCount:    desc.MinImageCount,
		ImageFormat:      core1_0.Format(desc.Format.Format),
		ImageColorSpace:  khr_surface.ColorSpace(desc.Format.ColorSpace),
		ImageExtent:      core1_0.Extent2D{Width: desc.Extent.Width, Height: desc.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharing,
		QueueFamilyIndices: families,

		PreTransform:   caps.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    khr_surface.PresentMode(desc.PresentMode),
		Clipped:        true,
	})
	if err != nil {
		return 0, check(res, err, "create swapchain")
	}
	return hal.Swapchain(d.swapchains.put(&swapchain{sc: sc})), nil
}

func (d *Device) SwapchainImages(h hal.Swapchain) ([]hal.Image, error) {
	sc, err := d.chain(h)
	if err != nil {
		return nil, err
	}
	if sc.images != nil {
		return sc.images, nil
	}
	images, res, err := d.swapchainExt.GetSwapchainImages(sc.sc)
	if err != nil {
		return nil, check(res, err, "get swapchain images")
	}
	for _, img := range images {
		sc.images = append(sc.images, hal.Image(d.images.put(img)))
	}
	return sc.images, nil
}

func (d *Device) DestroySwapchain(h hal.Swapchain) {
	sc, ok := d.swapchains.take(hal.Handle(h))
	if !ok {
		return
	}
	for _, img := range sc.images {
		d.images.take(hal.Handle(img))
	}
	d.swapchainExt.DestroySwapchain(sc.sc, nil)
}

func (d *Device) AcquireNextImage(h hal.Swapchain, signal hal.Semaphore) (int, hal.PresentStatus, error) {
	sc, err := d.chain(h)
	if err != nil {
		return 0, hal.StatusOK, err
	}
	sem, ok := d.semaphores.get(hal.Handle(signal))
	if !ok {
		return 0, hal.StatusOK, errors.Newf("unknown semaphore %d", signal)
	}
	index, res, err := d.swapchainExt.AcquireNextImage(sc.sc, common.NoTimeout, &sem, nil)
	status, err := presentStatus(res, err, "acquire swapchain image")
	return index, status, err
}

func (d *Device) QueuePresent(q hal.Queue, h hal.Swapchain, image int, wait ...hal.Semaphore) (hal.PresentStatus, error) {
	queue, err := d.queue(q)
	if err != nil {
		return hal.StatusOK, err
	}
	sc, err := d.chain(h)
	if err != nil {
		return hal.StatusOK, err
	}
	res, err := d.swapchainExt.QueuePresent(queue, khr_swapchain.PresentInfo{
		WaitSemaphores: lookup(&d.semaphores, wait),
		Swapchains:     []khr_swapchain.Swapchain{sc.sc},
		ImageIndices:   []int{image},
	})
	return presentStatus(res, err, "present")
}
