package gfx

import (
	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

// FrameContext is the host-side state of one frame in flight. Its fence is
// created signaled so the first wait returns at once.
type FrameContext struct {
	Index          int
	InFlight       *Fence
	ImageAvailable *Semaphore
	RenderFinished *Semaphore
	Uniforms       *Buffer
	Commands       *CommandBuffer
}

func (d *LogicalDevice) createFrameContext(idx int) (*FrameContext, error) {
	fc := &FrameContext{Index: idx}
	var err error
	if fc.InFlight, err = d.createFence(true); err != nil {
		return nil, err
	}
	if fc.ImageAvailable, err = d.createSemaphore(); err != nil {
		fc.destroy()
		return nil, err
	}
	if fc.RenderFinished, err = d.createSemaphore(); err != nil {
		fc.destroy()
		return nil, err
	}
	if fc.Uniforms, err = d.CreateBuffer(BufferUniform, FrameUniformSize); err != nil {
		fc.destroy()
		return nil, err
	}
	if fc.Commands, err = d.commandPool.Allocate(); err != nil {
		fc.destroy()
		return nil, err
	}
	return fc, nil
}

func (fc *FrameContext) destroy() {
	fc.Commands.Free()
	fc.Uniforms.Destroy()
	fc.RenderFinished.Destroy()
	fc.ImageAvailable.Destroy()
	fc.InFlight.Destroy()
}

// Frame is one acquired swapchain image being recorded.
type Frame struct {
	Context    *FrameContext
	ImageIndex int
	Extent     hal.Extent2D

	frameSet   *DescriptorSet
	passSet    *DescriptorSet
	generation int
	suboptimal bool
}

// WriteUniforms fills this frame's uniform buffer. It is safe to call any
// time between Begin and End because Begin waited on the slot's fence.
func (f *Frame) WriteUniforms(data []byte) error {
	return f.Context.Uniforms.Write(data)
}

// RecordFunc records the draw commands of a frame inside the render pass,
// after the viewport and scissor are set.
type RecordFunc func(r *Recorder) error

// FrameStats counts frame loop outcomes.
type FrameStats struct {
	Presented   int
	Abandoned   int
	Recreations int
}

// FrameLoop drives acquire, wait, record, submit and present over a fixed
// ring of frame contexts. The ring size is independent of the number of
// swapchain images.
type FrameLoop struct {
	dev     *LogicalDevice
	frames  []*FrameContext
	current int

	// imagesInFlight maps a swapchain image to the fence of the frame that
	// last rendered to it.
	imagesInFlight []*Fence
	generation     int

	active *Frame
	stats  FrameStats
	// failed is the first fatal error. A failed End can leave a semaphore
	// signaled or a fence reset with nothing to signal it, so the loop
	// cannot continue.
	failed error
}

func (d *LogicalDevice) createFrameLoop(n int) (*FrameLoop, error) {
	l := &FrameLoop{dev: d}
	for i := 0; i < n; i++ {
		fc, err := d.createFrameContext(i)
		if err != nil {
			l.destroy()
			return nil, err
		}
		l.frames = append(l.frames, fc)
	}
	return l, nil
}

func (l *FrameLoop) Frames() []*FrameContext { return l.frames }

// Current is the index of the frame context the next Begin uses.
func (l *FrameLoop) Current() int { return l.current }

func (l *FrameLoop) Active() *Frame { return l.active }

// Err returns the fatal error that stopped the loop, if any.
func (l *FrameLoop) Err() error { return l.failed }

func (l *FrameLoop) fail(err error) error {
	if l.failed == nil {
		l.failed = err
	}
	return err
}

func (l *FrameLoop) Stats() FrameStats {
	s := l.stats
	s.Recreations = l.dev.swapchain.recreations
	return s
}

func (l *FrameLoop) syncImages(sc *Swapchain) {
	if l.generation == sc.generation && len(l.imagesInFlight) == len(sc.images) {
		return
	}
	l.imagesInFlight = make([]*Fence, len(sc.images))
	l.generation = sc.generation
}

// Begin runs the first half of a frame: wait for the slot's fence, acquire
// an image and wait for whichever frame last used that image. It returns a
// nil frame without error when the frame was abandoned because the
// swapchain had to be rebuilt or the window is minimized. After a fatal
// error every later Begin returns that error.
func (l *FrameLoop) Begin() (*Frame, error) {
	if l.failed != nil {
		return nil, errors.Wrap(l.failed, "frame loop stopped")
	}
	if l.active != nil {
		return nil, errors.Wrap(ErrSyncMisuse, "begin frame while another is active")
	}
	ctx := l.frames[l.current]
	if err := ctx.InFlight.Wait(); err != nil {
		return nil, errors.Wrap(err, "wait for frame in flight")
	}

	sc := l.dev.swapchain
	if sc.NeedsRecreate() {
		if err := sc.Recreate(); err != nil {
			return nil, errors.Wrap(err, "recreate swapchain")
		}
		if sc.state != SwapchainReady {
			l.stats.Abandoned++
			return nil, nil
		}
	}
	l.syncImages(sc)

	idx, status, err := l.dev.hal.AcquireNextImage(sc.handle, ctx.ImageAvailable.handle)
	if err != nil {
		return nil, l.fail(classify(err, "acquire next image"))
	}
	if status == hal.StatusOutOfDate {
		Logger().Debug("acquire out of date; frame abandoned")
		if err := sc.Recreate(); err != nil {
			return nil, errors.Wrap(err, "recreate swapchain")
		}
		l.stats.Abandoned++
		return nil, nil
	}

	if prev := l.imagesInFlight[idx]; prev != nil && prev != ctx.InFlight {
		if err := prev.Wait(); err != nil {
			return nil, l.fail(errors.Wrap(err, "wait for image in flight"))
		}
	}
	l.imagesInFlight[idx] = ctx.InFlight

	l.active = &Frame{
		Context:    ctx,
		ImageIndex: idx,
		Extent:     sc.extent,
		frameSet:   sc.frameSets[idx],
		passSet:    sc.passSets[idx],
		generation: sc.generation,
		suboptimal: status == hal.StatusSuboptimal,
	}
	return l.active, nil
}

// End records the frame's command buffer, submits it and presents. The
// submission waits on image-available at color attachment output and
// signals render-finished and the slot's fence; present waits on
// render-finished. An out-of-date or suboptimal swapchain is rebuilt after
// present. A failed rebuild is retried by the next Begin; any other error,
// except ending a frame that is not active, stops the loop.
func (l *FrameLoop) End(f *Frame, record RecordFunc) error {
	if f == nil || f != l.active {
		return errors.Wrap(ErrSyncMisuse, "end of a frame that is not active")
	}
	l.active = nil
	d := l.dev
	sc := d.swapchain
	ctx := f.Context
	if f.generation != sc.generation {
		return l.fail(errors.Wrap(ErrSyncMisuse, "swapchain was rebuilt during the frame"))
	}

	if err := f.frameSet.WriteBuffer(0, ctx.Uniforms); err != nil {
		return l.fail(errors.Wrap(err, "bind frame uniforms"))
	}
	if err := l.record(f, record); err != nil {
		return l.fail(err)
	}

	if err := ctx.InFlight.Reset(); err != nil {
		return l.fail(err)
	}
	err := d.hal.QueueSubmit(d.graphicsQueue, ctx.InFlight.handle, hal.SubmitInfo{
		WaitSemaphores:   []hal.Semaphore{ctx.ImageAvailable.handle},
		WaitStages:       []hal.PipelineStageFlags{hal.StageColorAttachmentOutput},
		CommandBuffers:   []hal.CommandBuffer{ctx.Commands.handle},
		SignalSemaphores: []hal.Semaphore{ctx.RenderFinished.handle},
	})
	if err != nil {
		return l.fail(classify(err, "submit frame"))
	}
	ctx.InFlight.submitted()

	status, err := d.hal.QueuePresent(d.presentQueue, sc.handle, f.ImageIndex, ctx.RenderFinished.handle)
	l.current = (l.current + 1) % len(l.frames)
	if err != nil {
		return l.fail(classify(err, "present"))
	}
	if status == hal.StatusOutOfDate {
		l.stats.Abandoned++
	} else {
		l.stats.Presented++
	}
	if status != hal.StatusOK || f.suboptimal || sc.stale {
		if err := sc.Recreate(); err != nil {
			return errors.Wrap(err, "recreate swapchain")
		}
	}
	return nil
}

func (l *FrameLoop) record(f *Frame, record RecordFunc) error {
	d := l.dev
	cb := f.Context.Commands
	if err := cb.Reset(); err != nil {
		return err
	}
	if err := cb.Begin(false); err != nil {
		return err
	}
	h := cb.handle
	d.hal.CmdBeginRenderPass(h, hal.RenderPassBegin{
		RenderPass:  d.renderPass.handle,
		Framebuffer: d.swapchain.framebuffers[f.ImageIndex],
		Extent:      f.Extent,
		ClearColor:  d.cfg.ClearColor,
		ClearDepth:  1,
	})
	d.hal.CmdSetViewport(h, hal.Viewport{
		Width:    float32(f.Extent.Width),
		Height:   float32(f.Extent.Height),
		MaxDepth: 1,
	})
	d.hal.CmdSetScissor(h, f.Extent)

	if record != nil {
		r := &Recorder{dev: d, cb: h, frame: f}
		if err := record(r); err != nil {
			d.hal.CmdEndRenderPass(h)
			_ = cb.End()
			return errors.Wrap(err, "record frame")
		}
	}
	d.hal.CmdEndRenderPass(h)
	return cb.End()
}

func (l *FrameLoop) destroy() {
	for _, fc := range l.frames {
		fc.destroy()
	}
	l.frames = nil
	l.imagesInFlight = nil
}

// Recorder records draw commands against the pipeline layout shared by
// every pipeline.
type Recorder struct {
	dev      *LogicalDevice
	cb       hal.CommandBuffer
	frame    *Frame
	pipeline *Pipeline
	draws    int
}

func (r *Recorder) Frame() *Frame { return r.frame }

// Draws is the number of draws recorded so far.
func (r *Recorder) Draws() int { return r.draws }

// BindPipeline binds p together with the frame and pass sets. Rebinding
// the current pipeline is a no-op.
func (r *Recorder) BindPipeline(p *Pipeline) error {
	if r.pipeline == p {
		return nil
	}
	if r.dev.debug {
		if err := r.frame.frameSet.Validate(); err != nil {
			return err
		}
		if err := r.frame.passSet.Validate(); err != nil {
			return err
		}
	}
	r.dev.hal.CmdBindPipeline(r.cb, p.handle)
	r.dev.hal.CmdBindDescriptorSets(r.cb, p.layout.handle, int(TierPerFrame),
		r.frame.frameSet.handle, r.frame.passSet.handle)
	r.pipeline = p
	return nil
}

// BindMaterial binds the per-material set.
func (r *Recorder) BindMaterial(set *DescriptorSet) error {
	if r.pipeline == nil {
		return errors.New("bind material before pipeline")
	}
	if r.dev.debug {
		if err := set.Validate(); err != nil {
			return err
		}
	}
	r.dev.hal.CmdBindDescriptorSets(r.cb, r.pipeline.layout.handle, int(TierPerMaterial), set.handle)
	return nil
}

// PushObject pushes the per-object block, a column-major model matrix.
func (r *Recorder) PushObject(data []byte) error {
	if r.pipeline == nil {
		return errors.New("push constants before pipeline")
	}
	if len(data) > ObjectPushSize {
		return errors.Newf("object block of %d bytes exceeds %d", len(data), ObjectPushSize)
	}
	r.dev.hal.CmdPushConstants(r.cb, r.pipeline.layout.handle, hal.ShaderStageVertex, 0, data)
	return nil
}

// DrawIndexed binds the vertex and index buffers and draws indexCount
// 32-bit indices.
func (r *Recorder) DrawIndexed(vertices, indices *Buffer, indexCount int) error {
	if r.pipeline == nil {
		return errors.New("draw before pipeline")
	}
	if vertices.usage != BufferVertex || indices.usage != BufferIndex {
		return errors.Newf("draw with %s/%s buffers", vertices.usage, indices.usage)
	}
	r.dev.hal.CmdBindVertexBuffer(r.cb, vertices.handle, 0)
	r.dev.hal.CmdBindIndexBuffer(r.cb, indices.handle, 0)
	r.dev.hal.CmdDrawIndexed(r.cb, indexCount, 0, 0)
	r.draws++
	return nil
}
