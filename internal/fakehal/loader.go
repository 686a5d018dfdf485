// Package fakehal is an in-memory hal backend for tests. It simulates
// device memory, buffer and image copies, layout transitions, fences,
// semaphores and swapchain acquire/present, and counts every live object so
// tests can assert that nothing leaked.
//
// Commands recorded into a command buffer run when the buffer is submitted.
// Fences signal at submission, or at the first host wait with
// Device.DeferCompletion. Misuse a real driver would hang or crash on
// (waiting on a fence nobody will signal, submitting with a signaled fence,
// presenting an image that never left the render pass) is reported as an
// error instead.
package fakehal

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/emberkit/ember/hal"
)

// Window is a fixed-size stand-in for a platform window.
type Window struct {
	Width, Height int
	Extensions    []string
}

func (w *Window) Handle() any                  { return w }
func (w *Window) PixelSize() (int, int)        { return w.Width, w.Height }
func (w *Window) InstanceExtensions() []string { return w.Extensions }

// Loader scripts what the "driver" offers.
type Loader struct {
	Layers     []string
	Extensions []string
	Adapters   []*Adapter

	mu        sync.Mutex
	instances []*Instance
}

// NewLoader returns a loader with the validation layer, the surface and
// debug extensions and one suitable adapter.
func NewLoader() *Loader {
	return &Loader{
		Layers:     []string{hal.LayerValidation},
		Extensions: []string{hal.ExtensionSurface, hal.ExtensionDebugUtils, "VK_KHR_xlib_surface"},
		Adapters:   []*Adapter{NewAdapter("fake gpu")},
	}
}

func toSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func (l *Loader) AvailableLayers() (map[string]struct{}, error) {
	return toSet(l.Layers), nil
}

func (l *Loader) AvailableExtensions() (map[string]struct{}, error) {
	return toSet(l.Extensions), nil
}

func (l *Loader) CreateInstance(desc hal.InstanceDesc) (hal.Instance, error) {
	layers := toSet(l.Layers)
	for _, name := range desc.Layers {
		if _, ok := layers[name]; !ok {
			return nil, errors.Newf("fakehal: layer not present: %s", name)
		}
	}
	exts := toSet(l.Extensions)
	for _, name := range desc.Extensions {
		if _, ok := exts[name]; !ok {
			return nil, errors.Newf("fakehal: extension not present: %s", name)
		}
	}

	inst := &Instance{Desc: desc, loader: l, surfaces: map[hal.Surface]bool{}}
	l.mu.Lock()
	l.instances = append(l.instances, inst)
	l.mu.Unlock()
	return inst, nil
}

// LastInstance returns the most recently created instance.
func (l *Loader) LastInstance() *Instance {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.instances) == 0 {
		return nil
	}
	return l.instances[len(l.instances)-1]
}

type Instance struct {
	Desc hal.InstanceDesc

	loader    *Loader
	surfaces  map[hal.Surface]bool
	next      hal.Handle
	devices   []*Device
	destroyed bool
}

func (i *Instance) CreateSurface(win hal.Window) (hal.Surface, error) {
	if win == nil || win.Handle() == nil {
		return 0, errors.New("fakehal: nil window")
	}
	i.next++
	s := hal.Surface(i.next)
	i.surfaces[s] = true
	return s, nil
}

func (i *Instance) DestroySurface(s hal.Surface) {
	delete(i.surfaces, s)
}

func (i *Instance) Adapters() ([]hal.Adapter, error) {
	out := make([]hal.Adapter, len(i.loader.Adapters))
	for idx, a := range i.loader.Adapters {
		out[idx] = a
	}
	return out, nil
}

func (i *Instance) CreateDevice(adapter hal.Adapter, desc hal.DeviceDesc) (hal.Device, error) {
	a, ok := adapter.(*Adapter)
	if !ok {
		return nil, errors.New("fakehal: foreign adapter")
	}
	for _, ext := range desc.Extensions {
		if _, ok := a.Exts[ext]; !ok {
			return nil, errors.Newf("fakehal: device extension not present: %s", ext)
		}
	}
	seen := map[int]bool{}
	for _, f := range desc.QueueFamilies {
		if seen[f] {
			return nil, errors.Newf("fakehal: queue family %d requested twice", f)
		}
		seen[f] = true
	}
	d := newDevice(a, desc)
	i.devices = append(i.devices, d)
	return d, nil
}

func (i *Instance) Destroy() { i.destroyed = true }

// Destroyed reports whether Destroy was called.
func (i *Instance) Destroyed() bool { return i.destroyed }

// LiveSurfaces counts surfaces not yet destroyed.
func (i *Instance) LiveSurfaces() int { return len(i.surfaces) }

// Device returns the most recently created device.
func (i *Instance) Device() *Device {
	if len(i.devices) == 0 {
		return nil
	}
	return i.devices[len(i.devices)-1]
}

// EmitDebug delivers a message through the installed debug callback as the
// validation layer would.
func (i *Instance) EmitDebug(severity hal.DebugSeverity, message string) bool {
	if i.Desc.Debug == nil {
		return false
	}
	i.Desc.Debug(severity, "validation", message)
	return true
}

// Adapter is a scripted physical device. Fields may be changed between
// calls to simulate surface changes such as a window resize.
type Adapter struct {
	Props         hal.AdapterProperties
	Feats         hal.Features
	Memory        []hal.MemoryType
	Families      []hal.QueueFamily
	PresentFamily map[int]bool
	Exts          map[string]struct{}
	Caps          hal.SurfaceCapabilities
	Formats       []hal.SurfaceFormat
	Modes         []hal.PresentMode
	FormatFlags   map[hal.Format]hal.FormatFeatureFlags
}

// NewAdapter returns an adapter with a single graphics+present family, one
// device-local and one host-visible memory type, an 800x800 surface with a
// minimum of two images and no maximum.
func NewAdapter(name string) *Adapter {
	return &Adapter{
		Props: hal.AdapterProperties{
			Name:                 name,
			VendorID:             0x10de,
			DeviceID:             0x2204,
			PipelineCacheUUID:    uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
			MaxSamplerAnisotropy: 16,
		},
		Feats: hal.Features{SamplerAnisotropy: true},
		Memory: []hal.MemoryType{
			{Properties: hal.MemoryDeviceLocal},
			{Properties: hal.MemoryHostVisible | hal.MemoryHostCoherent},
		},
		Families:      []hal.QueueFamily{{Flags: hal.QueueGraphics | hal.QueueTransfer, Count: 1}},
		PresentFamily: map[int]bool{0: true},
		Exts:          toSet([]string{hal.ExtensionSwapchain}),
		Caps: hal.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  0,
			CurrentExtent:  hal.Extent2D{Width: 800, Height: 800},
			MinImageExtent: hal.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: hal.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []hal.SurfaceFormat{
			{Format: hal.FormatB8G8R8A8UNorm, ColorSpace: hal.ColorSpaceSRGBNonlinear},
			{Format: hal.FormatB8G8R8A8SRGB, ColorSpace: hal.ColorSpaceSRGBNonlinear},
		},
		Modes: []hal.PresentMode{hal.PresentModeFIFO, hal.PresentModeMailbox},
		FormatFlags: map[hal.Format]hal.FormatFeatureFlags{
			hal.FormatD32SFloat:     hal.FormatFeatureDepthStencilAttachment,
			hal.FormatR8G8B8A8SRGB:  hal.FormatFeatureSampledImage,
			hal.FormatB8G8R8A8SRGB:  hal.FormatFeatureSampledImage,
			hal.FormatR8G8B8A8UNorm: hal.FormatFeatureSampledImage,
		},
	}
}

// Resize simulates the window system changing the surface size.
func (a *Adapter) Resize(width, height int) {
	a.Caps.CurrentExtent = hal.Extent2D{Width: width, Height: height}
}

func (a *Adapter) Properties() hal.AdapterProperties { return a.Props }
func (a *Adapter) Features() hal.Features            { return a.Feats }
func (a *Adapter) MemoryTypes() []hal.MemoryType     { return a.Memory }
func (a *Adapter) QueueFamilies() []hal.QueueFamily  { return a.Families }

func (a *Adapter) Extensions() (map[string]struct{}, error) {
	return a.Exts, nil
}

func (a *Adapter) FormatFeatures(f hal.Format) hal.FormatFeatureFlags {
	return a.FormatFlags[f]
}

func (a *Adapter) SurfaceSupport(_ hal.Surface, family int) (bool, error) {
	return a.PresentFamily[family], nil
}

func (a *Adapter) SurfaceCapabilities(hal.Surface) (hal.SurfaceCapabilities, error) {
	return a.Caps, nil
}

func (a *Adapter) SurfaceFormats(hal.Surface) ([]hal.SurfaceFormat, error) {
	return a.Formats, nil
}

func (a *Adapter) PresentModes(hal.Surface) ([]hal.PresentMode, error) {
	return a.Modes, nil
}
