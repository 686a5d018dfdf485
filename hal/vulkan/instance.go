package vulkan

import (
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/emberkit/ember/hal"
)

type Instance struct {
	driver     core1_0.CoreInstanceDriver
	extensions []string

	debug     ext_debug_utils.ExtensionDriver
	messenger ext_debug_utils.DebugUtilsMessenger

	surfaceExt khr_surface.ExtensionDriver
	surfaces   table[khr_surface.Surface]
	adapters   []hal.Adapter
}

func (i *Instance) surfaceDriver() (khr_surface.ExtensionDriver, error) {
	if i.surfaceExt == nil {
		if !slices.Contains(i.extensions, hal.ExtensionSurface) {
			return nil, errors.Newf("instance was created without %s", hal.ExtensionSurface)
		}
		i.surfaceExt = khr_surface.CreateExtensionDriverFromCoreDriver(i.driver)
	}
	return i.surfaceExt, nil
}

func (i *Instance) surface(s hal.Surface) (khr_surface.Surface, error) {
	surface, ok := i.surfaces.get(hal.Handle(s))
	if !ok {
		return khr_surface.Surface{}, errors.Newf("unknown surface %d", s)
	}
	return surface, nil
}

func (i *Instance) CreateSurface(win hal.Window) (hal.Surface, error) {
	sdlWin, ok := win.Handle().(*sdl.Window)
	if !ok {
		return 0, errors.Newf("window handle %T is not an SDL window", win.Handle())
	}
	ext, err := i.surfaceDriver()
	if err != nil {
		return 0, err
	}
	surface, err := vkng_sdl2.CreateSurface(i.driver.Instance(), ext, sdlWin)
	if err != nil {
		return 0, errors.Wrap(err, "create surface")
	}
	return hal.Surface(i.surfaces.put(surface)), nil
}

func (i *Instance) DestroySurface(s hal.Surface) {
	if surface, ok := i.surfaces.take(hal.Handle(s)); ok {
		i.surfaceExt.DestroySurface(surface, nil)
	}
}

func (i *Instance) Adapters() ([]hal.Adapter, error) {
	if i.adapters != nil {
		return i.adapters, nil
	}
	devices, res, err := i.driver.EnumeratePhysicalDevices()
	if err != nil {
		return nil, check(res, err, "enumerate physical devices")
	}
	for _, pd := range devices {
		a, err := newAdapter(i, pd)
		if err != nil {
			return nil, err
		}
		i.adapters = append(i.adapters, a)
	}
	return i.adapters, nil
}

func (i *Instance) Destroy() {
	for h, s := range i.surfaces.objs {
		i.surfaceExt.DestroySurface(s, nil)
		delete(i.surfaces.objs, h)
	}
	if i.messenger.Initialized() {
		i.debug.DestroyDebugUtilsMessenger(i.messenger, nil)
		i.messenger = ext_debug_utils.DebugUtilsMessenger{}
	}
	if i.driver != nil {
		i.driver.DestroyInstance(nil)
		i.driver = nil
	}
}
