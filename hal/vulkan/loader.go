// Package vulkan implements hal on top of vkngwrapper. Surfaces are created
// from SDL2 windows; the loader is resolved through SDL so the window
// must exist before NewLoader is called.
package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"

	"github.com/emberkit/ember/hal"
)

type Loader struct {
	driver core1_0.GlobalDriver
}

var _ hal.Loader = (*Loader)(nil)

// NewLoader resolves the Vulkan entry points SDL loaded for its windows.
func NewLoader() (*Loader, error) {
	driver, err := core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}
	return &Loader{driver: driver}, nil
}

func keys[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func (l *Loader) AvailableLayers() (map[string]struct{}, error) {
	layers, res, err := l.driver.AvailableLayers()
	if err != nil {
		return nil, check(res, err, "enumerate layers")
	}
	return keys(layers), nil
}

func (l *Loader) AvailableExtensions() (map[string]struct{}, error) {
	exts, res, err := l.driver.AvailableExtensions()
	if err != nil {
		return nil, check(res, err, "enumerate instance extensions")
	}
	return keys(exts), nil
}

func debugSeverity(s ext_debug_utils.DebugUtilsMessageSeverityFlags) hal.DebugSeverity {
	switch {
	case s&ext_debug_utils.SeverityError != 0:
		return hal.SeverityError
	case s&ext_debug_utils.SeverityWarning != 0:
		return hal.SeverityWarning
	case s&ext_debug_utils.SeverityInfo != 0:
		return hal.SeverityInfo
	}
	return hal.SeverityVerbose
}

func messengerInfo(cb hal.DebugCallback) ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning |
			ext_debug_utils.SeverityInfo | ext_debug_utils.SeverityVerbose,
		MessageType: ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback: func(kind ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
			cb(debugSeverity(severity), kind.String(), data.Message)
			return false
		},
	}
}

func (l *Loader) CreateInstance(desc hal.InstanceDesc) (hal.Instance, error) {
	info := core1_0.InstanceCreateInfo{
		ApplicationName:       desc.AppName,
		ApplicationVersion:    common.CreateVersion(1, 0, 0),
		EngineName:            "ember",
		EngineVersion:         common.CreateVersion(0, 1, 0),
		APIVersion:            common.Vulkan1_2,
		EnabledLayerNames:     desc.Layers,
		EnabledExtensionNames: desc.Extensions,
	}
	if desc.PortabilityEnumeration {
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}
	if desc.Debug != nil {
		// Chained so instance creation and destruction are covered too.
		info.Next = messengerInfo(desc.Debug)
	}

	driver, res, err := l.driver.CreateInstance(nil, info)
	if err != nil {
		return nil, check(res, err, "create instance")
	}
	inst := &Instance{driver: driver, extensions: desc.Extensions}
	if desc.Debug != nil {
		inst.debug = ext_debug_utils.CreateExtensionDriverFromCoreDriver(driver)
		inst.messenger, res, err = inst.debug.CreateDebugUtilsMessenger(nil, messengerInfo(desc.Debug))
		if err != nil {
			driver.DestroyInstance(nil)
			return nil, check(res, err, "create debug messenger")
		}
	}
	return inst, nil
}
