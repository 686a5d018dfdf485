package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/emberkit/ember/hal"
)

// commandBuffer keeps the first error hit while recording so
// EndCommandBuffer can report it.
type commandBuffer struct {
	cb  core1_0.CommandBuffer
	err error
}

func (c *commandBuffer) note(err error, op string) {
	if err != nil && c.err == nil {
		c.err = errors.Wrap(err, op)
	}
}

func (d *Device) cmd(h hal.CommandBuffer) *commandBuffer {
	if c, ok := d.commandBuffers.get(hal.Handle(h)); ok {
		return c
	}
	d.noteErr(errors.Newf("recording into unknown command buffer %d", h))
	return &commandBuffer{}
}

func (d *Device) CreateCommandPool(family int) (hal.CommandPool, error) {
	pool, res, err := d.driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: family,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	})
	if err != nil {
		return 0, check(res, err, "create command pool")
	}
	return hal.CommandPool(d.commandPools.put(pool)), nil
}

func (d *Device) DestroyCommandPool(p hal.CommandPool) {
	if pool, ok := d.commandPools.take(hal.Handle(p)); ok {
		d.driver.DestroyCommandPool(pool, nil)
	}
}

func (d *Device) AllocateCommandBuffer(p hal.CommandPool) (hal.CommandBuffer, error) {
	pool, ok := d.commandPools.get(hal.Handle(p))
	if !ok {
		return 0, errors.Newf("unknown command pool %d", p)
	}
	buffers, res, err := d.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return 0, check(res, err, "allocate command buffer")
	}
	return hal.CommandBuffer(d.commandBuffers.put(&commandBuffer{cb: buffers[0]})), nil
}

func (d *Device) FreeCommandBuffer(cb hal.CommandBuffer) {
	if c, ok := d.commandBuffers.take(hal.Handle(cb)); ok {
		d.driver.FreeCommandBuffers(c.cb)
	}
}

func (d *Device) ResetCommandBuffer(cb hal.CommandBuffer) error {
	c := d.cmd(cb)
	c.err = nil
	res, err := d.driver.ResetCommandBuffer(c.cb, 0)
	return check(res, err, "reset command buffer")
}

func (d *Device) BeginCommandBuffer(cb hal.CommandBuffer, oneTime bool) error {
	var flags core1_0.CommandBufferUsageFlags
	if oneTime {
		flags = core1_0.CommandBufferUsageOneTimeSubmit
	}
	c := d.cmd(cb)
	c.err = nil
	res, err := d.driver.BeginCommandBuffer(c.cb, core1_0.CommandBufferBeginInfo{Flags: flags})
	return check(res, err, "begin command buffer")
}

func (d *Device) EndCommandBuffer(cb hal.CommandBuffer) error {
	c := d.cmd(cb)
	res, err := d.driver.EndCommandBuffer(c.cb)
	if c.err != nil {
		return c.err
	}
	return check(res, err, "end command buffer")
}

func (d *Device) CmdBeginRenderPass(cb hal.CommandBuffer, begin hal.RenderPassBegin) {
	c := d.cmd(cb)
	rp, _ := d.renderPasses.get(hal.Handle(begin.RenderPass))
	fb, _ := d.framebuffers.get(hal.Handle(begin.Framebuffer))
	extent := core1_0.Extent2D{Width: begin.Extent.Width, Height: begin.Extent.Height}
	err := d.driver.CmdBeginRenderPass(c.cb, core1_0.SubpassContentsInline, core1_0.RenderPassBeginInfo{
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea:  core1_0.Rect2D{Extent: extent},
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat(begin.ClearColor),
			core1_0.ClearValueDepthStencil{Depth: begin.ClearDepth},
		},
	})
	c.note(err, "begin render pass")
}

func (d *Device) CmdEndRenderPass(cb hal.CommandBuffer) {
	d.driver.CmdEndRenderPass(d.cmd(cb).cb)
}

func (d *Device) CmdSetViewport(cb hal.CommandBuffer, vp hal.Viewport) {
	d.driver.CmdSetViewport(d.cmd(cb).cb, core1_0.Viewport{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	})
}

func (d *Device) CmdSetScissor(cb hal.CommandBuffer, extent hal.Extent2D) {
	d.driver.CmdSetScissor(d.cmd(cb).cb, core1_0.Rect2D{
		Extent: core1_0.Extent2D{Width: extent.Width, Height: extent.Height},
	})
}

func (d *Device) CmdBindPipeline(cb hal.CommandBuffer, p hal.Pipeline) {
	pipeline, _ := d.pipelines.get(hal.Handle(p))
	d.driver.CmdBindPipeline(d.cmd(cb).cb, core1_0.PipelineBindPointGraphics, pipeline)
}

func (d *Device) CmdBindDescriptorSets(cb hal.CommandBuffer, layout hal.PipelineLayout, firstSet int, sets ...hal.DescriptorSet) {
	l, _ := d.pipeLayouts.get(hal.Handle(layout))
	resolved := lookup(&d.sets, sets)
	vs := make([]core1_0.DescriptorSet, len(resolved))
	for i, s := range resolved {
		vs[i] = s.set
	}
	d.driver.CmdBindDescriptorSets(d.cmd(cb).cb, core1_0.PipelineBindPointGraphics, l, firstSet, vs, nil)
}

func (d *Device) CmdPushConstants(cb hal.CommandBuffer, layout hal.PipelineLayout, stages hal.ShaderStageFlags, offset int, data []byte) {
	l, _ := d.pipeLayouts.get(hal.Handle(layout))
	d.driver.CmdPushConstants(d.cmd(cb).cb, l, core1_0.ShaderStageFlags(stages), offset, data)
}

func (d *Device) CmdBindVertexBuffer(cb hal.CommandBuffer, b hal.Buffer, offset int) {
	buf, _ := d.buffers.get(hal.Handle(b))
	d.driver.CmdBindVertexBuffers(d.cmd(cb).cb, 0, []core1_0.Buffer{buf}, []int{offset})
}

func (d *Device) CmdBindIndexBuffer(cb hal.CommandBuffer, b hal.Buffer, offset int) {
	buf, _ := d.buffers.get(hal.Handle(b))
	d.driver.CmdBindIndexBuffer(d.cmd(cb).cb, buf, offset, core1_0.IndexTypeUInt32)
}

func (d *Device) CmdDrawIndexed(cb hal.CommandBuffer, indexCount, firstIndex, vertexOffset int) {
	d.driver.CmdDrawIndexed(d.cmd(cb).cb, indexCount, 1, firstIndex, vertexOffset, 0)
}

func (d *Device) CmdCopyBuffer(cb hal.CommandBuffer, src, dst hal.Buffer, size int) {
	c := d.cmd(cb)
	s, _ := d.buffers.get(hal.Handle(src))
	t, _ := d.buffers.get(hal.Handle(dst))
	c.note(d.driver.CmdCopyBuffer(c.cb, s, t, core1_0.BufferCopy{Size: size}), "copy buffer")
}

func (d *Device) CmdCopyBufferToImage(cb hal.CommandBuffer, src hal.Buffer, dst hal.Image, width, height int) {
	c := d.cmd(cb)
	buf, _ := d.buffers.get(hal.Handle(src))
	img, _ := d.images.get(hal.Handle(dst))
	err := d.driver.CmdCopyBufferToImage(c.cb, buf, img, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			ImageSubresource: core1_0.ImageSubresourceLayers{
				AspectMask: core1_0.ImageAspectColor,
				LayerCount: 1,
			},
			ImageExtent: core1_0.Extent3D{Width: width, Height: height, Depth: 1},
		})
	c.note(err, "copy buffer to image")
}

func (d *Device) CmdImageBarrier(cb hal.CommandBuffer, b hal.ImageBarrier) {
	c := d.cmd(cb)
	img, _ := d.images.get(hal.Handle(b.Image))
	err := d.driver.CmdPipelineBarrier(c.cb,
		core1_0.PipelineStageFlags(b.SrcStage), core1_0.PipelineStageFlags(b.DstStage), 0, nil, nil,
		[]core1_0.ImageMemoryBarrier{{
			OldLayout:           core1_0.ImageLayout(b.OldLayout),
			NewLayout:           core1_0.ImageLayout(b.NewLayout),
			SrcQueueFamilyIndex: -1,
			DstQueueFamilyIndex: -1,
			Image:               img,
			SubresourceRange: core1_0.ImageSubresourceRange{
				AspectMask: core1_0.ImageAspectFlags(b.Aspect),
				LevelCount: 1,
				LayerCount: 1,
			},
			SrcAccessMask: core1_0.AccessFlags(b.SrcAccess),
			DstAccessMask: core1_0.AccessFlags(b.DstAccess),
		}})
	c.note(err, "image barrier")
}
