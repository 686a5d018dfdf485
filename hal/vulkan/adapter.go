package vulkan

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/emberkit/ember/hal"
)

// Adapter snapshots the static properties of a physical device when it is
// enumerated.
type Adapter struct {
	inst *Instance
	pd   core1_0.PhysicalDevice

	props    hal.AdapterProperties
	features hal.Features
	memory   []hal.MemoryType
	families []hal.QueueFamily
}

func newAdapter(inst *Instance, pd core1_0.PhysicalDevice) (*Adapter, error) {
	props, err := inst.driver.GetPhysicalDeviceProperties(pd)
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		inst: inst,
		pd:   pd,
		props: hal.AdapterProperties{
			Name:                 props.DeviceName,
			VendorID:             props.VendorID,
			DeviceID:             props.DeviceID,
			PipelineCacheUUID:    props.PipelineCacheUUID,
			MaxSamplerAnisotropy: props.Limits.MaxSamplerAnisotropy,
		},
	}
	a.features.SamplerAnisotropy = inst.driver.GetPhysicalDeviceFeatures(pd).SamplerAnisotropy
	for _, t := range inst.driver.GetPhysicalDeviceMemoryProperties(pd).MemoryTypes {
		a.memory = append(a.memory, hal.MemoryType{Properties: hal.MemoryPropertyFlags(t.PropertyFlags)})
	}
	for _, f := range inst.driver.GetPhysicalDeviceQueueFamilyProperties(pd) {
		a.families = append(a.families, hal.QueueFamily{Flags: hal.QueueFlags(f.QueueFlags), Count: f.QueueCount})
	}
	return a, nil
}

func (a *Adapter) Properties() hal.AdapterProperties { return a.props }
func (a *Adapter) Features() hal.Features            { return a.features }
func (a *Adapter) MemoryTypes() []hal.MemoryType     { return a.memory }
func (a *Adapter) QueueFamilies() []hal.QueueFamily  { return a.families }

func (a *Adapter) Extensions() (map[string]struct{}, error) {
	exts, res, err := a.inst.driver.EnumerateDeviceExtensionProperties(a.pd)
	if err != nil {
		return nil, check(res, err, "enumerate device extensions")
	}
	return keys(exts), nil
}

func (a *Adapter) FormatFeatures(f hal.Format) hal.FormatFeatureFlags {
	props := a.inst.driver.GetPhysicalDeviceFormatProperties(a.pd, core1_0.Format(f))
	return hal.FormatFeatureFlags(props.OptimalTilingFeatures)
}

func (a *Adapter) surface(s hal.Surface) (khr_surface.ExtensionDriver, khr_surface.Surface, error) {
	ext, err := a.inst.surfaceDriver()
	if err != nil {
		return nil, khr_surface.Surface{}, err
	}
	surface, err := a.inst.surface(s)
	return ext, surface, err
}

func (a *Adapter) SurfaceSupport(s hal.Surface, family int) (bool, error) {
	ext, surface, err := a.surface(s)
	if err != nil {
		return false, err
	}
	ok, res, err := ext.GetPhysicalDeviceSurfaceSupport(surface, a.pd, family)
	if err != nil {
		return false, check(res, err, "query surface support")
	}
	return ok, nil
}

func extent(e core1_0.Extent2D) hal.Extent2D {
	if e.Width == -1 {
		return hal.UndefinedExtent
	}
	return hal.Extent2D{Width: e.Width, Height: e.Height}
}

func (a *Adapter) capabilities(s hal.Surface) (*khr_surface.SurfaceCapabilities, error) {
	ext, surface, err := a.surface(s)
	if err != nil {
		return nil, err
	}
	caps, res, err := ext.GetPhysicalDeviceSurfaceCapabilities(surface, a.pd)
	if err != nil {
		return nil, check(res, err, "query surface capabilities")
	}
	return caps, nil
}

func (a *Adapter) SurfaceCapabilities(s hal.Surface) (hal.SurfaceCapabilities, error) {
	caps, err := a.capabilities(s)
	if err != nil {
		return hal.SurfaceCapabilities{}, err
	}
	return hal.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  extent(caps.CurrentExtent),
		MinImageExtent: extent(caps.MinImageExtent),
		MaxImageExtent: extent(caps.MaxImageExtent),
	}, nil
}

func (a *Adapter) SurfaceFormats(s hal.Surface) ([]hal.SurfaceFormat, error) {
	ext, surface, err := a.surface(s)
	if err != nil {
		return nil, err
	}
	formats, res, err := ext.GetPhysicalDeviceSurfaceFormats(surface, a.pd)
	if err != nil {
		return nil, check(res, err, "query surface formats")
	}
	out := make([]hal.SurfaceFormat, 0, len(formats))
	for _, f := range formats {
		out = append(out, hal.SurfaceFormat{Format: hal.Format(f.Format), ColorSpace: hal.ColorSpace(f.ColorSpace)})
	}
	return out, nil
}

func (a *Adapter) PresentModes(s hal.Surface) ([]hal.PresentMode, error) {
	ext, surface, err := a.surface(s)
	if err != nil {
		return nil, err
	}
	modes, res, err := ext.GetPhysicalDeviceSurfacePresentModes(surface, a.pd)
	if err != nil {
		return nil, check(res, err, "query present modes")
	}
	out := make([]hal.PresentMode, 0, len(modes))
	for _, m := range modes {
		out = append(out, hal.PresentMode(m))
	}
	return out, nil
}
