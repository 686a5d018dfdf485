package gfx

import (
	"encoding/binary"
	"math"

	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

type SwapchainState int

const (
	SwapchainUninitialized SwapchainState = iota
	SwapchainReady
	SwapchainStale
	SwapchainDestroyed
)

func (s SwapchainState) String() string {
	switch s {
	case SwapchainUninitialized:
		return "uninitialized"
	case SwapchainReady:
		return "ready"
	case SwapchainStale:
		return "stale"
	case SwapchainDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// ChooseSurfaceFormat prefers B8G8R8A8_SRGB with the sRGB non-linear color
// space and otherwise takes the first format offered.
func ChooseSurfaceFormat(formats []hal.SurfaceFormat) hal.SurfaceFormat {
	for _, f := range formats {
		if f.Format == hal.FormatB8G8R8A8SRGB && f.ColorSpace == hal.ColorSpaceSRGBNonlinear {
			return f
		}
	}
	if len(formats) == 0 {
		return hal.SurfaceFormat{}
	}
	return formats[0]
}

// ChoosePresentMode returns preferred if it is offered, otherwise FIFO,
// which every implementation supports.
func ChoosePresentMode(available []hal.PresentMode, preferred hal.PresentMode) hal.PresentMode {
	for _, m := range available {
		if m == preferred {
			return m
		}
	}
	return hal.PresentModeFIFO
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ChooseExtent uses the surface's current extent when it is defined and
// otherwise clamps the window's pixel size into the supported range.
func ChooseExtent(caps hal.SurfaceCapabilities, width, height int) hal.Extent2D {
	if caps.CurrentExtent.Width != -1 {
		return caps.CurrentExtent
	}
	return hal.Extent2D{
		Width:  clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ChooseImageCount asks for one image more than the minimum, capped by the
// maximum when there is one.
func ChooseImageCount(caps hal.SurfaceCapabilities) int {
	n := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && n > caps.MaxImageCount {
		n = caps.MaxImageCount
	}
	return n
}

// Swapchain owns the presentable images and everything sized by them: one
// view and framebuffer per image, the depth attachment, and the per-image
// frame and pass descriptor sets. It is recreated in place.
type Swapchain struct {
	dev   *LogicalDevice
	state SwapchainState

	handle      hal.Swapchain
	format      hal.SurfaceFormat
	extent      hal.Extent2D
	presentMode hal.PresentMode

	images       []hal.Image
	views        []hal.ImageView
	framebuffers []hal.Framebuffer
	depth        *imageAttachment

	descriptors *DescriptorPool
	frameSets   []*DescriptorSet
	passSets    []*DescriptorSet
	passBuffers []*Buffer

	generation  int
	recreations int
	stale       bool
}

func (d *LogicalDevice) createSwapchain() (*Swapchain, error) {
	sc := &Swapchain{dev: d}
	if err := sc.build(); err != nil {
		sc.teardown()
		return nil, err
	}
	return sc, nil
}

func (sc *Swapchain) State() SwapchainState           { return sc.state }
func (sc *Swapchain) Handle() hal.Swapchain           { return sc.handle }
func (sc *Swapchain) Format() hal.SurfaceFormat       { return sc.format }
func (sc *Swapchain) Extent() hal.Extent2D            { return sc.extent }
func (sc *Swapchain) PresentMode() hal.PresentMode    { return sc.presentMode }
func (sc *Swapchain) Images() []hal.Image             { return sc.images }
func (sc *Swapchain) Views() []hal.ImageView          { return sc.views }
func (sc *Swapchain) Framebuffers() []hal.Framebuffer { return sc.framebuffers }

// ImageCount is the number of presentable images. Zero while stale.
func (sc *Swapchain) ImageCount() int { return len(sc.images) }

// Generation increases every time the image set is rebuilt.
func (sc *Swapchain) Generation() int { return sc.generation }

// Recreations counts successful rebuilds after the first.
func (sc *Swapchain) Recreations() int { return sc.recreations }

// FrameSet and PassSet return the per-image descriptor sets.
func (sc *Swapchain) FrameSet(image int) *DescriptorSet { return sc.frameSets[image] }
func (sc *Swapchain) PassSet(image int) *DescriptorSet  { return sc.passSets[image] }

// MarkStale records that the surface changed size. The frame loop rebuilds
// the swapchain at its next safe point.
func (sc *Swapchain) MarkStale() {
	if sc.state == SwapchainDestroyed {
		return
	}
	sc.stale = true
	if sc.state == SwapchainReady {
		sc.state = SwapchainStale
	}
}

// NeedsRecreate reports whether a rebuild is pending.
func (sc *Swapchain) NeedsRecreate() bool {
	return sc.stale || sc.state != SwapchainReady
}

// Recreate waits for the device to go idle, tears down the image-sized
// resources in reverse creation order and builds them again. The render
// pass and pipelines are kept. While the window has a zero-sized drawable
// the swapchain stays stale and Recreate returns nil.
func (sc *Swapchain) Recreate() error {
	if sc.state == SwapchainDestroyed {
		return errors.New("recreate of a destroyed swapchain")
	}
	if err := sc.dev.hal.WaitIdle(); err != nil {
		return classify(err, "wait for device idle")
	}
	prev := sc.generation
	sc.teardown()
	if err := sc.build(); err != nil {
		sc.teardown()
		sc.state = SwapchainStale
		return err
	}
	if sc.state == SwapchainReady && prev > 0 {
		sc.recreations++
		Logger().Info("swapchain recreated",
			"width", sc.extent.Width, "height", sc.extent.Height, "images", len(sc.images))
	}
	return nil
}

func (sc *Swapchain) build() error {
	d := sc.dev
	adapter := d.pd.adapter
	surface := d.inst.surface

	w, h := surface.PixelSize()
	if w == 0 || h == 0 {
		sc.state = SwapchainStale
		Logger().Debug("swapchain deferred: window has no drawable area")
		return nil
	}

	caps, err := adapter.SurfaceCapabilities(surface.handle)
	if err != nil {
		return classify(err, "query surface capabilities")
	}
	if caps.CurrentExtent.Width == 0 || caps.CurrentExtent.Height == 0 {
		sc.state = SwapchainStale
		return nil
	}
	formats, err := adapter.SurfaceFormats(surface.handle)
	if err != nil {
		return classify(err, "query surface formats")
	}
	modes, err := adapter.PresentModes(surface.handle)
	if err != nil {
		return classify(err, "query present modes")
	}

	sc.format = ChooseSurfaceFormat(formats)
	if sc.format.Format != d.renderPass.colorFormat {
		return errors.Wrapf(ErrIncompatibleSurface, "render pass format %d, surface format %d",
			d.renderPass.colorFormat, sc.format.Format)
	}
	sc.presentMode = ChoosePresentMode(modes, *d.cfg.PresentMode)
	sc.extent = ChooseExtent(caps, w, h)
	count := ChooseImageCount(caps)

	sc.handle, err = d.hal.CreateSwapchain(hal.SwapchainDesc{
		Surface:       surface.handle,
		MinImageCount: count,
		Format:        sc.format,
		Extent:        sc.extent,
		PresentMode:   sc.presentMode,
		QueueFamilies: d.pd.Queues.Unique(),
	})
	if err != nil {
		return classify(err, "create swapchain")
	}
	if sc.images, err = d.hal.SwapchainImages(sc.handle); err != nil {
		return classify(err, "get swapchain images")
	}

	for _, img := range sc.images {
		v, err := d.hal.CreateImageView(hal.ImageViewDesc{Image: img, Format: sc.format.Format, Aspect: hal.AspectColor})
		if err != nil {
			return classify(err, "create swapchain image view")
		}
		sc.views = append(sc.views, v)
	}

	aspect := hal.AspectDepth
	if d.renderPass.depthFormat.HasStencil() {
		aspect |= hal.AspectStencil
	}
	if sc.depth, err = d.createImage(sc.extent.Width, sc.extent.Height, d.renderPass.depthFormat,
		hal.ImageUsageDepthStencilAttachment, aspect); err != nil {
		return errors.Wrap(err, "create depth attachment")
	}

	for _, v := range sc.views {
		fb, err := d.hal.CreateFramebuffer(hal.FramebufferDesc{
			RenderPass:  d.renderPass.handle,
			Attachments: []hal.ImageView{v, sc.depth.view},
			Extent:      sc.extent,
		})
		if err != nil {
			return classify(err, "create framebuffer")
		}
		sc.framebuffers = append(sc.framebuffers, fb)
	}

	if err := sc.buildDescriptors(); err != nil {
		return err
	}

	sc.generation++
	sc.state = SwapchainReady
	sc.stale = false
	Logger().Info("swapchain created",
		"width", sc.extent.Width,
		"height", sc.extent.Height,
		"images", len(sc.images),
		"present_mode", sc.presentMode.String())
	return nil
}

// buildDescriptors allocates a frame set and a pass set per image from a
// pool sized exactly for them, and fills each pass buffer with the extent.
func (sc *Swapchain) buildDescriptors() error {
	d := sc.dev
	n := len(sc.images)
	perImage := len(tierBindings[TierPerFrame]) + len(tierBindings[TierPerPass])

	var err error
	sc.descriptors, err = d.createDescriptorPool(2*n, []hal.DescriptorPoolSize{
		{Type: hal.DescriptorUniformBuffer, Count: n * perImage},
	})
	if err != nil {
		return err
	}

	pass := make([]byte, PassUniformSize)
	w, h := float32(sc.extent.Width), float32(sc.extent.Height)
	for i, v := range []float32{w, h, 1 / w, 1 / h} {
		binary.LittleEndian.PutUint32(pass[i*4:], math.Float32bits(v))
	}

	for i := 0; i < n; i++ {
		fs, err := sc.descriptors.Allocate(d.setLayouts[TierPerFrame])
		if err != nil {
			return err
		}
		sc.frameSets = append(sc.frameSets, fs)

		ps, err := sc.descriptors.Allocate(d.setLayouts[TierPerPass])
		if err != nil {
			return err
		}
		sc.passSets = append(sc.passSets, ps)

		buf, err := d.UploadBuffer(BufferUniform, pass)
		if err != nil {
			return err
		}
		sc.passBuffers = append(sc.passBuffers, buf)
		if err := ps.WriteBuffer(0, buf); err != nil {
			return err
		}
	}
	return nil
}

// teardown destroys image-sized resources in reverse creation order.
func (sc *Swapchain) teardown() {
	d := sc.dev
	for _, b := range sc.passBuffers {
		b.Destroy()
	}
	sc.passBuffers, sc.frameSets, sc.passSets = nil, nil, nil
	sc.descriptors.Destroy()
	sc.descriptors = nil

	for _, fb := range sc.framebuffers {
		d.hal.DestroyFramebuffer(fb)
	}
	sc.framebuffers = nil
	sc.depth.destroy()
	sc.depth = nil
	for _, v := range sc.views {
		d.hal.DestroyImageView(v)
	}
	sc.views = nil
	if sc.handle != 0 {
		d.hal.DestroySwapchain(sc.handle)
		sc.handle = 0
	}
	sc.images = nil
	if sc.state == SwapchainReady {
		sc.state = SwapchainStale
	}
}

// Destroy releases everything. The device must be idle.
func (sc *Swapchain) Destroy() {
	if sc == nil || sc.state == SwapchainDestroyed {
		return
	}
	sc.teardown()
	sc.state = SwapchainDestroyed
}
