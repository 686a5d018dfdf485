package fakehal

import (
	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

type recording struct {
	err      error
	pipeline hal.Pipeline
	vertex   hal.Buffer
	index    hal.Buffer
}

func (d *Device) CreateSwapchain(desc hal.SwapchainDesc) (hal.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	caps := d.adapter.Caps
	if desc.MinImageCount < caps.MinImageCount || (caps.MaxImageCount > 0 && desc.MinImageCount > caps.MaxImageCount) {
		return 0, errors.Newf("fakehal: image count %d outside [%d,%d]", desc.MinImageCount, caps.MinImageCount, caps.MaxImageCount)
	}
	e := desc.Extent
	if e.Width < caps.MinImageExtent.Width || e.Height < caps.MinImageExtent.Height ||
		e.Width > caps.MaxImageExtent.Width || e.Height > caps.MaxImageExtent.Height {
		return 0, errors.Newf("fakehal: extent %dx%d outside surface bounds", e.Width, e.Height)
	}

	sc := hal.Swapchain(d.alloc(KindSwapchain))
	state := &swapchain{desc: desc}
	for i := 0; i < desc.MinImageCount; i++ {
		img := hal.Image(d.alloc(""))
		d.images[img] = &image{
			desc:      hal.ImageDesc{Width: e.Width, Height: e.Height, Format: desc.Format.Format},
			layout:    hal.LayoutUndefined,
			swapchain: true,
		}
		state.images = append(state.images, img)
	}
	d.swapchains[sc] = state
	d.stats.SwapchainsBuilt++
	return sc, nil
}

func (d *Device) SwapchainImages(sc hal.Swapchain) ([]hal.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !ok {
		return nil, errors.New("fakehal: unknown swapchain")
	}
	return append([]hal.Image(nil), s.images...), nil
}

func (d *Device) DestroySwapchain(sc hal.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.swapchains[sc]; ok {
		for _, img := range s.images {
			delete(d.images, img)
		}
	}
	delete(d.swapchains, sc)
	d.release(hal.Handle(sc))
}

func popStatus(script *[]hal.PresentStatus) hal.PresentStatus {
	if len(*script) == 0 {
		return hal.StatusOK
	}
	st := (*script)[0]
	*script = (*script)[1:]
	return st
}

func (d *Device) surfaceChanged(s *swapchain) bool {
	cur := d.adapter.Caps.CurrentExtent
	return cur.Width != -1 && cur != s.desc.Extent
}

func (d *Device) AcquireNextImage(sc hal.Swapchain, signal hal.Semaphore) (int, hal.PresentStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !ok {
		return 0, hal.StatusOK, errors.New("fakehal: acquire from unknown swapchain")
	}
	d.stats.Acquires++
	status := popStatus(&d.AcquireScript)
	if status == hal.StatusOutOfDate || d.surfaceChanged(s) {
		return 0, hal.StatusOutOfDate, nil
	}
	signaled, ok := d.semaphores[signal]
	if !ok {
		return 0, hal.StatusOK, errors.New("fakehal: acquire signals unknown semaphore")
	}
	if signaled {
		return 0, hal.StatusOK, errors.New("fakehal: acquire signals a semaphore that is already signaled")
	}
	d.semaphores[signal] = true
	idx := s.next
	s.next = (s.next + 1) % len(s.images)
	return idx, status, nil
}

func (d *Device) consume(waits []hal.Semaphore) error {
	for _, w := range waits {
		signaled, ok := d.semaphores[w]
		if !ok {
			return errors.New("fakehal: wait on unknown semaphore")
		}
		if !signaled {
			return errors.New("fakehal: wait on a semaphore with no pending signal")
		}
		d.semaphores[w] = false
	}
	return nil
}

func (d *Device) QueuePresent(_ hal.Queue, sc hal.Swapchain, idx int, wait ...hal.Semaphore) (hal.PresentStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.swapchains[sc]
	if !ok {
		return hal.StatusOK, errors.New("fakehal: present to unknown swapchain")
	}
	if idx < 0 || idx >= len(s.images) {
		return hal.StatusOK, errors.Newf("fakehal: present of image %d out of range", idx)
	}
	if err := d.consume(wait); err != nil {
		return hal.StatusOK, err
	}
	status := popStatus(&d.PresentScript)
	if status == hal.StatusOutOfDate || d.surfaceChanged(s) {
		return hal.StatusOutOfDate, nil
	}
	img := d.images[s.images[idx]]
	if img.layout != hal.LayoutPresentSrc {
		return hal.StatusOK, errors.Newf("fakehal: presented image is in layout %s", img.layout)
	}
	d.stats.Presents++
	d.presented = append(d.presented, idx)
	return status, nil
}

func (d *Device) CreateCommandPool(family int) (hal.CommandPool, error) {
	if family < 0 || family >= len(d.adapter.Families) {
		return 0, errors.Newf("fakehal: queue family %d out of range", family)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return hal.CommandPool(d.alloc(KindCommandPool)), nil
}

func (d *Device) DestroyCommandPool(p hal.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, cb := range d.cmdBuffers {
		if cb.pool == p {
			delete(d.cmdBuffers, h)
			d.release(hal.Handle(h))
		}
	}
	d.release(hal.Handle(p))
}

func (d *Device) AllocateCommandBuffer(pool hal.CommandPool) (hal.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live[hal.Handle(pool)] != KindCommandPool {
		return 0, errors.New("fakehal: allocate from unknown command pool")
	}
	cb := hal.CommandBuffer(d.alloc(KindCommandBuffer))
	d.cmdBuffers[cb] = &commandBuffer{pool: pool}
	return cb, nil
}

func (d *Device) FreeCommandBuffer(cb hal.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cmdBuffers, cb)
	d.release(hal.Handle(cb))
}

func (d *Device) inFlight(cb *commandBuffer) bool {
	if cb.lastFence == 0 {
		return false
	}
	f, ok := d.fences[cb.lastFence]
	return ok && !f.signaled
}

func (d *Device) ResetCommandBuffer(h hal.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmdBuffers[h]
	if !ok {
		return errors.New("fakehal: reset unknown command buffer")
	}
	if d.inFlight(cb) {
		return errors.New("fakehal: reset of a command buffer still in flight")
	}
	cb.ops = nil
	cb.recording = false
	return nil
}

func (d *Device) BeginCommandBuffer(h hal.CommandBuffer, _ bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmdBuffers[h]
	if !ok {
		return errors.New("fakehal: begin unknown command buffer")
	}
	if cb.recording {
		return errors.New("fakehal: command buffer is already recording")
	}
	if d.inFlight(cb) {
		return errors.New("fakehal: begin of a command buffer still in flight")
	}
	cb.ops = nil
	cb.recording = true
	cb.inPass = nil
	cb.rec = recording{}
	return nil
}

func (d *Device) EndCommandBuffer(h hal.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmdBuffers[h]
	if !ok || !cb.recording {
		return errors.New("fakehal: end of a command buffer that is not recording")
	}
	cb.recording = false
	if cb.inPass != nil {
		return errors.New("fakehal: command buffer ended inside a render pass")
	}
	return cb.rec.err
}

// record appends an op to a recording command buffer. check runs at record
// time with the lock held and may veto the command.
func (d *Device) record(h hal.CommandBuffer, check func(cb *commandBuffer, r *recording) error, op func() error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cb, ok := d.cmdBuffers[h]
	if !ok || !cb.recording {
		return
	}
	r := &cb.rec
	if r.err != nil {
		return
	}
	if check != nil {
		if err := check(cb, r); err != nil {
			r.err = err
			return
		}
	}
	if op != nil {
		cb.ops = append(cb.ops, op)
	}
}

func (d *Device) CmdBeginRenderPass(h hal.CommandBuffer, begin hal.RenderPassBegin) {
	var fb *framebuffer
	d.record(h, func(cb *commandBuffer, _ *recording) error {
		if cb.inPass != nil {
			return errors.New("fakehal: nested render pass")
		}
		var ok bool
		fb, ok = d.framebuffers[begin.Framebuffer]
		if !ok {
			return errors.New("fakehal: render pass with unknown framebuffer")
		}
		cb.inPass = fb
		return nil
	}, func() error {
		d.stats.RenderPasses++
		for i, v := range fb.desc.Attachments {
			img, ok := d.images[d.views[v]]
			if !ok {
				return errors.New("fakehal: framebuffer attachment was destroyed")
			}
			if i == 0 {
				img.layout = hal.LayoutColorAttachment
			} else {
				img.layout = hal.LayoutDepthStencilAttachment
			}
		}
		return nil
	})
}

func (d *Device) CmdEndRenderPass(h hal.CommandBuffer) {
	var fb *framebuffer
	d.record(h, func(cb *commandBuffer, _ *recording) error {
		if cb.inPass == nil {
			return errors.New("fakehal: end of render pass that never began")
		}
		fb = cb.inPass
		cb.inPass = nil
		return nil
	}, func() error {
		if len(fb.desc.Attachments) == 0 {
			return nil
		}
		if img, ok := d.images[d.views[fb.desc.Attachments[0]]]; ok {
			img.layout = hal.LayoutPresentSrc
		}
		return nil
	})
}

func (d *Device) inPassCheck(cb *commandBuffer, _ *recording) error {
	if cb.inPass == nil {
		return errors.New("fakehal: command requires an active render pass")
	}
	return nil
}

func (d *Device) CmdSetViewport(h hal.CommandBuffer, _ hal.Viewport) {
	d.record(h, d.inPassCheck, nil)
}

func (d *Device) CmdSetScissor(h hal.CommandBuffer, _ hal.Extent2D) {
	d.record(h, d.inPassCheck, nil)
}

func (d *Device) CmdBindPipeline(h hal.CommandBuffer, p hal.Pipeline) {
	d.record(h, func(_ *commandBuffer, r *recording) error {
		if d.live[hal.Handle(p)] != KindPipeline {
			return errors.New("fakehal: bind of unknown pipeline")
		}
		r.pipeline = p
		return nil
	}, nil)
}

func (d *Device) CmdBindDescriptorSets(h hal.CommandBuffer, _ hal.PipelineLayout, _ int, sets ...hal.DescriptorSet) {
	d.record(h, func(*commandBuffer, *recording) error {
		for _, s := range sets {
			if _, ok := d.sets[s]; !ok {
				return errors.New("fakehal: bind of unknown descriptor set")
			}
		}
		return nil
	}, nil)
}

func (d *Device) CmdPushConstants(h hal.CommandBuffer, _ hal.PipelineLayout, _ hal.ShaderStageFlags, offset int, data []byte) {
	d.record(h, func(*commandBuffer, *recording) error {
		if offset+len(data) > 128 {
			return errors.New("fakehal: push constants exceed 128 bytes")
		}
		return nil
	}, nil)
}

func (d *Device) CmdBindVertexBuffer(h hal.CommandBuffer, b hal.Buffer, _ int) {
	d.record(h, func(_ *commandBuffer, r *recording) error {
		buf, ok := d.buffers[b]
		if !ok || buf.usage&hal.BufferUsageVertex == 0 {
			return errors.New("fakehal: bind of a buffer without vertex usage")
		}
		r.vertex = b
		return nil
	}, nil)
}

func (d *Device) CmdBindIndexBuffer(h hal.CommandBuffer, b hal.Buffer, _ int) {
	d.record(h, func(_ *commandBuffer, r *recording) error {
		buf, ok := d.buffers[b]
		if !ok || buf.usage&hal.BufferUsageIndex == 0 {
			return errors.New("fakehal: bind of a buffer without index usage")
		}
		r.index = b
		return nil
	}, nil)
}

func (d *Device) CmdDrawIndexed(h hal.CommandBuffer, indexCount, _, _ int) {
	d.record(h, func(cb *commandBuffer, r *recording) error {
		if err := d.inPassCheck(cb, r); err != nil {
			return err
		}
		if r.pipeline == 0 || r.vertex == 0 || r.index == 0 {
			return errors.New("fakehal: draw without pipeline, vertex and index buffer bound")
		}
		if indexCount <= 0 {
			return errors.New("fakehal: draw of zero indices")
		}
		return nil
	}, func() error {
		d.stats.Draws++
		return nil
	})
}

func (d *Device) bufferBytes(b hal.Buffer) ([]byte, *buffer, error) {
	buf, ok := d.buffers[b]
	if !ok {
		return nil, nil, errors.New("fakehal: unknown buffer")
	}
	mem, ok := d.memories[buf.mem]
	if !ok {
		return nil, nil, errors.New("fakehal: buffer has no memory bound")
	}
	return mem.data[:buf.size], buf, nil
}

func (d *Device) CmdCopyBuffer(h hal.CommandBuffer, src, dst hal.Buffer, size int) {
	d.record(h, func(cb *commandBuffer, _ *recording) error {
		if cb.inPass != nil {
			return errors.New("fakehal: copy inside a render pass")
		}
		return nil
	}, func() error {
		from, sb, err := d.bufferBytes(src)
		if err != nil {
			return err
		}
		to, db, err := d.bufferBytes(dst)
		if err != nil {
			return err
		}
		if sb.usage&hal.BufferUsageTransferSrc == 0 || db.usage&hal.BufferUsageTransferDst == 0 {
			return errors.New("fakehal: copy between buffers without transfer usage")
		}
		if size > len(from) || size > len(to) {
			return errors.Newf("fakehal: copy of %d bytes overruns a buffer", size)
		}
		copy(to[:size], from[:size])
		d.stats.BufferCopies++
		return nil
	})
}

func (d *Device) CmdCopyBufferToImage(h hal.CommandBuffer, src hal.Buffer, dst hal.Image, width, height int) {
	d.record(h, nil, func() error {
		from, _, err := d.bufferBytes(src)
		if err != nil {
			return err
		}
		img, ok := d.images[dst]
		if !ok {
			return errors.New("fakehal: copy to unknown image")
		}
		if img.layout != hal.LayoutTransferDst {
			return errors.Newf("fakehal: copy to image in layout %s", img.layout)
		}
		n := width * height * 4
		if n > len(from) || n > len(img.data) {
			return errors.New("fakehal: image copy overruns")
		}
		copy(img.data[:n], from[:n])
		d.stats.ImageCopies++
		return nil
	})
}

func (d *Device) CmdImageBarrier(h hal.CommandBuffer, barrier hal.ImageBarrier) {
	d.record(h, nil, func() error {
		img, ok := d.images[barrier.Image]
		if !ok {
			return errors.New("fakehal: barrier on unknown image")
		}
		if barrier.OldLayout != hal.LayoutUndefined && barrier.OldLayout != img.layout {
			return errors.Newf("fakehal: barrier expects %s but image is %s", barrier.OldLayout, img.layout)
		}
		img.layout = barrier.NewLayout
		d.barriers = append(d.barriers, barrier)
		return nil
	})
}

// QueueSubmit runs the submitted command buffers to completion and then
// signals the semaphores and the fence.
func (d *Device) QueueSubmit(_ hal.Queue, fence hal.Fence, submits ...hal.SubmitInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fence != 0 {
		f, ok := d.fences[fence]
		if !ok {
			return errors.New("fakehal: submit with unknown fence")
		}
		if f.signaled || f.pending {
			return errors.New("fakehal: submit with a fence that is still signaled")
		}
	}
	for _, s := range submits {
		if err := d.consume(s.WaitSemaphores); err != nil {
			return err
		}
		for _, h := range s.CommandBuffers {
			cb, ok := d.cmdBuffers[h]
			if !ok {
				return errors.New("fakehal: submit of unknown command buffer")
			}
			if cb.recording {
				return errors.New("fakehal: submit of a command buffer that is still recording")
			}
			for _, op := range cb.ops {
				if err := op(); err != nil {
					return err
				}
			}
			cb.lastFence = fence
		}
		for _, sig := range s.SignalSemaphores {
			signaled, ok := d.semaphores[sig]
			if !ok {
				return errors.New("fakehal: signal of unknown semaphore")
			}
			if signaled {
				return errors.New("fakehal: signal of a semaphore that is already signaled")
			}
			d.semaphores[sig] = true
		}
	}
	if fence != 0 {
		if d.DeferCompletion {
			d.fences[fence].pending = true
		} else {
			d.fences[fence].signaled = true
		}
	}
	d.stats.Submits++
	return nil
}
