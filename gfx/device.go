package gfx

import (
	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

// DeviceConfig controls logical device creation.
type DeviceConfig struct {
	// Extensions are device extensions required on top of the swapchain.
	Extensions []string
	// MaxFramesInFlight is the number of frame contexts. Defaults to 2.
	MaxFramesInFlight int
	// PresentMode is used when offered; FIFO otherwise. Nil means mailbox.
	PresentMode *hal.PresentMode
	ClearColor  [4]float32
	// MaxMaterials bounds the per-material descriptor pool.
	MaxMaterials int
	// Debug enables the fence and descriptor invariant checks.
	Debug bool
}

func (c DeviceConfig) withDefaults() DeviceConfig {
	if c.MaxFramesInFlight <= 0 {
		c.MaxFramesInFlight = 2
	}
	if c.MaxMaterials <= 0 {
		c.MaxMaterials = 64
	}
	if c.PresentMode == nil {
		mode := hal.PresentModeMailbox
		c.PresentMode = &mode
	}
	return c
}

// LogicalDevice owns every device-level object. It must be destroyed before
// its Instance.
type LogicalDevice struct {
	hal  hal.Device
	inst *Instance
	pd   *PhysicalDeviceInfo
	cfg  DeviceConfig

	debug         bool
	graphicsQueue hal.Queue
	presentQueue  hal.Queue

	commandPool    *CommandPool
	setLayouts     [setTierCount]*DescriptorSetLayout
	pipelineLayout *PipelineLayout
	renderPass     *RenderPass
	swapchain      *Swapchain
	materialPool   *DescriptorPool
	pipelineCache  *PipelineCache
	frames         *FrameLoop
}

// CreateLogicalDevice creates the device with one queue per distinct family
// and then everything that hangs off it, in order: command pool, descriptor
// set layouts, pipeline layout, render pass, swapchain, material descriptor
// pool, pipeline cache and frame contexts. If any step fails, what was
// built is destroyed.
func CreateLogicalDevice(inst *Instance, pd *PhysicalDeviceInfo, cfg DeviceConfig) (_ *LogicalDevice, err error) {
	cfg = cfg.withDefaults()
	if !pd.Queues.Complete() {
		return nil, errors.Wrap(ErrNoSuitableDevice, "queue families unresolved")
	}

	exts := appendUnique([]string{hal.ExtensionSwapchain}, cfg.Extensions...)
	for _, ext := range exts {
		if !pd.HasExtension(ext) {
			return nil, errors.Wrapf(ErrUnsupportedExtension, "device extension %s", ext)
		}
	}
	if pd.HasExtension(hal.ExtensionPortabilitySubset) {
		exts = appendUnique(exts, hal.ExtensionPortabilitySubset)
	}

	h, err := inst.hal.CreateDevice(pd.adapter, hal.DeviceDesc{
		QueueFamilies: pd.Queues.Unique(),
		Extensions:    exts,
		Features:      hal.Features{SamplerAnisotropy: pd.Features.SamplerAnisotropy},
	})
	if err != nil {
		return nil, classify(err, "create logical device")
	}

	d := &LogicalDevice{
		hal:           h,
		inst:          inst,
		pd:            pd,
		cfg:           cfg,
		debug:         cfg.Debug,
		graphicsQueue: h.Queue(pd.Queues.Graphics),
		presentQueue:  h.Queue(pd.Queues.Present),
	}
	defer func() {
		if err != nil {
			d.Destroy()
		}
	}()

	if d.commandPool, err = d.createCommandPool(pd.Queues.Graphics); err != nil {
		return nil, err
	}
	for t := 0; t < setTierCount; t++ {
		if d.setLayouts[t], err = d.createSetLayout(Tier(t), tierBindings[t]); err != nil {
			return nil, err
		}
	}
	if d.pipelineLayout, err = d.createPipelineLayout(d.setLayouts); err != nil {
		return nil, err
	}

	depth, err := pd.DepthFormat()
	if err != nil {
		return nil, err
	}
	color := ChooseSurfaceFormat(pd.Formats).Format
	if d.renderPass, err = d.createRenderPass(color, depth); err != nil {
		return nil, err
	}
	if d.swapchain, err = d.createSwapchain(); err != nil {
		return nil, err
	}

	matBindings := len(tierBindings[TierPerMaterial])
	if d.materialPool, err = d.createDescriptorPool(cfg.MaxMaterials, []hal.DescriptorPoolSize{
		{Type: hal.DescriptorCombinedImageSampler, Count: cfg.MaxMaterials * matBindings},
	}); err != nil {
		return nil, err
	}
	d.pipelineCache = newPipelineCache(d)
	if d.frames, err = d.createFrameLoop(cfg.MaxFramesInFlight); err != nil {
		return nil, err
	}

	Logger().Info("logical device created",
		"device", pd.Name,
		"queue_families", pd.Queues.Unique(),
		"frames_in_flight", cfg.MaxFramesInFlight,
		"depth_format", int(depth))
	return d, nil
}

func (d *LogicalDevice) HAL() hal.Device                     { return d.hal }
func (d *LogicalDevice) PhysicalDevice() *PhysicalDeviceInfo { return d.pd }
func (d *LogicalDevice) Config() DeviceConfig                { return d.cfg }
func (d *LogicalDevice) GraphicsQueue() hal.Queue            { return d.graphicsQueue }
func (d *LogicalDevice) PresentQueue() hal.Queue             { return d.presentQueue }
func (d *LogicalDevice) CommandPool() *CommandPool           { return d.commandPool }
func (d *LogicalDevice) PipelineLayout() *PipelineLayout     { return d.pipelineLayout }
func (d *LogicalDevice) RenderPass() *RenderPass             { return d.renderPass }
func (d *LogicalDevice) Swapchain() *Swapchain               { return d.swapchain }
func (d *LogicalDevice) MaterialPool() *DescriptorPool       { return d.materialPool }
func (d *LogicalDevice) PipelineCache() *PipelineCache       { return d.pipelineCache }
func (d *LogicalDevice) FrameLoop() *FrameLoop               { return d.frames }

// SetLayout returns the descriptor set layout of a set tier.
func (d *LogicalDevice) SetLayout(t Tier) *DescriptorSetLayout {
	return d.pipelineLayout.SetLayout(t)
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *LogicalDevice) WaitIdle() error {
	return classify(d.hal.WaitIdle(), "wait for device idle")
}

// Destroy waits for the device to go idle and destroys everything it owns
// in reverse creation order. Resources created by callers (buffers,
// textures, shader stages, material sets) must be destroyed first.
func (d *LogicalDevice) Destroy() {
	if d == nil || d.hal == nil {
		return
	}
	if err := d.hal.WaitIdle(); err != nil {
		Logger().Warn("wait idle before destroy", "err", err)
	}
	if d.frames != nil {
		d.frames.destroy()
	}
	d.pipelineCache.Destroy()
	d.materialPool.Destroy()
	d.swapchain.Destroy()
	d.renderPass.Destroy()
	d.pipelineLayout.Destroy()
	for i := len(d.setLayouts) - 1; i >= 0; i-- {
		d.setLayouts[i].Destroy()
	}
	d.commandPool.Destroy()
	d.hal.Destroy()
	d.hal = nil
	Logger().Debug("logical device destroyed")
}
