package gfx

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

// InstanceConfig selects what CreateInstance asks the loader for.
type InstanceConfig struct {
	AppName string

	// Validation enables the validation layers and routes their messages
	// to the gfx logger.
	Validation bool
	// Layers overrides the validation layers. Defaults to the Khronos layer.
	Layers []string
	// Extensions are instance extensions required on top of what the
	// window system needs.
	Extensions []string
}

// Instance owns the API instance, its debug messenger and the surface.
// It is created first and destroyed last.
type Instance struct {
	hal        hal.Instance
	surface    *Surface
	layers     []string
	extensions []string

	devices  []*PhysicalDeviceInfo
	selected *PhysicalDeviceInfo

	warnings atomic.Int64
	errs     atomic.Int64
}

func appendUnique(list []string, names ...string) []string {
	for _, n := range names {
		found := false
		for _, have := range list {
			if have == n {
				found = true
				break
			}
		}
		if !found {
			list = append(list, n)
		}
	}
	return list
}

// CreateInstance checks every requested layer and extension against what
// the loader offers, creates the instance and the window surface.
func CreateInstance(loader hal.Loader, win hal.Window, cfg InstanceConfig) (*Instance, error) {
	inst := &Instance{}

	if cfg.Validation {
		layers := cfg.Layers
		if len(layers) == 0 {
			layers = []string{hal.LayerValidation}
		}
		available, err := loader.AvailableLayers()
		if err != nil {
			return nil, errors.Wrap(err, "enumerate instance layers")
		}
		for _, name := range layers {
			if _, ok := available[name]; !ok {
				return nil, errors.Wrapf(ErrUnsupportedLayer, "layer %s", name)
			}
		}
		inst.layers = appendUnique(nil, layers...)
	}

	available, err := loader.AvailableExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate instance extensions")
	}
	exts := appendUnique(nil, win.InstanceExtensions()...)
	exts = appendUnique(exts, cfg.Extensions...)
	if cfg.Validation {
		exts = appendUnique(exts, hal.ExtensionDebugUtils)
	}
	for _, name := range exts {
		if _, ok := available[name]; !ok {
			return nil, errors.Wrapf(ErrUnsupportedExtension, "instance extension %s", name)
		}
	}
	_, portability := available[hal.ExtensionPortabilityEnumeration]
	if portability {
		exts = appendUnique(exts, hal.ExtensionPortabilityEnumeration)
	}
	inst.extensions = exts

	desc := hal.InstanceDesc{
		AppName:                cfg.AppName,
		Layers:                 inst.layers,
		Extensions:             inst.extensions,
		PortabilityEnumeration: portability,
	}
	if cfg.Validation {
		desc.Debug = inst.routeDebug
	}
	inst.hal, err = loader.CreateInstance(desc)
	if err != nil {
		return nil, classify(err, "create instance")
	}

	inst.surface, err = createSurface(inst.hal, win)
	if err != nil {
		inst.hal.Destroy()
		return nil, err
	}

	Logger().Info("instance created",
		"layers", strings.Join(inst.layers, ","),
		"extensions", strings.Join(inst.extensions, ","),
		"portability", portability)
	return inst, nil
}

// routeDebug maps validation severities onto log levels. Warnings and
// errors are also counted, and go to slog.Default while no logger is set.
func (i *Instance) routeDebug(severity hal.DebugSeverity, kind, message string) {
	l := Logger()
	switch severity {
	case hal.SeverityError:
		i.errs.Add(1)
		loud(l).Error("validation", "type", kind, "message", message)
	case hal.SeverityWarning:
		i.warnings.Add(1)
		loud(l).Warn("validation", "type", kind, "message", message)
	case hal.SeverityInfo:
		l.Info("validation", "type", kind, "message", message)
	default:
		l.Debug("validation", "type", kind, "message", message)
	}
}

// ValidationIssues returns how many validation warnings and errors were
// reported so far.
func (i *Instance) ValidationIssues() (warnings, errs int64) {
	return i.warnings.Load(), i.errs.Load()
}

func (i *Instance) Surface() *Surface { return i.surface }

func (i *Instance) Layers() []string { return i.layers }

func (i *Instance) Extensions() []string { return i.extensions }

// PhysicalDevices returns the snapshots taken by SelectPhysicalDevice.
func (i *Instance) PhysicalDevices() []*PhysicalDeviceInfo { return i.devices }

// Selected returns the physical device chosen by SelectPhysicalDevice.
func (i *Instance) Selected() *PhysicalDeviceInfo { return i.selected }

// SelectPhysicalDevice snapshots every adapter and picks the first that
// supports the swapchain extension plus required, offers at least one surface
// format and present mode, and has both a graphics and a present family.
func (i *Instance) SelectPhysicalDevice(required []string) (*PhysicalDeviceInfo, error) {
	adapters, err := i.hal.Adapters()
	if err != nil {
		return nil, classify(err, "enumerate physical devices")
	}
	required = appendUnique([]string{hal.ExtensionSwapchain}, required...)

	i.devices = i.devices[:0]
	i.selected = nil
	var reasons []string
	for _, a := range adapters {
		pd, err := snapshotAdapter(a, i.surface.handle)
		if err != nil {
			return nil, err
		}
		i.devices = append(i.devices, pd)

		if reason := pd.rejection(required); reason != "" {
			Logger().Warn("physical device rejected", "name", pd.Name, "reason", reason)
			reasons = append(reasons, fmt.Sprintf("%s: %s", pd.Name, reason))
			continue
		}
		if i.selected == nil {
			i.selected = pd
		}
	}
	if i.selected == nil {
		err := errors.Wrapf(ErrNoSuitableDevice, "%d adapters considered", len(adapters))
		if len(reasons) > 0 {
			err = errors.WithDetail(err, strings.Join(reasons, "\n"))
		}
		return nil, err
	}

	pd := i.selected
	Logger().Info("physical device selected",
		"name", pd.Name,
		"vendor", fmt.Sprintf("%#04x", pd.VendorID),
		"device", fmt.Sprintf("%#04x", pd.DeviceID),
		"graphics_family", pd.Queues.Graphics,
		"present_family", pd.Queues.Present)
	return pd, nil
}

// Destroy releases the surface and the instance. Every LogicalDevice made
// from this instance must be destroyed first.
func (i *Instance) Destroy() {
	if i.hal == nil {
		return
	}
	i.surface.destroy()
	i.hal.Destroy()
	i.hal = nil
}
