package gfx

import (
	"github.com/emberkit/ember/hal"
)

// CommandPool allocates command buffers for the graphics family.
type CommandPool struct {
	dev    *LogicalDevice
	handle hal.CommandPool
}

func (d *LogicalDevice) createCommandPool(family int) (*CommandPool, error) {
	h, err := d.hal.CreateCommandPool(family)
	if err != nil {
		return nil, classify(err, "create command pool")
	}
	return &CommandPool{dev: d, handle: h}, nil
}

func (p *CommandPool) Allocate() (*CommandBuffer, error) {
	h, err := p.dev.hal.AllocateCommandBuffer(p.handle)
	if err != nil {
		return nil, classify(err, "allocate command buffer")
	}
	return &CommandBuffer{dev: p.dev, handle: h}, nil
}

func (p *CommandPool) Destroy() {
	if p == nil || p.handle == 0 {
		return
	}
	p.dev.hal.DestroyCommandPool(p.handle)
	p.handle = 0
}

type CommandBuffer struct {
	dev    *LogicalDevice
	handle hal.CommandBuffer
}

func (cb *CommandBuffer) Handle() hal.CommandBuffer { return cb.handle }

func (cb *CommandBuffer) Reset() error {
	return classify(cb.dev.hal.ResetCommandBuffer(cb.handle), "reset command buffer")
}

func (cb *CommandBuffer) Begin(oneTime bool) error {
	return classify(cb.dev.hal.BeginCommandBuffer(cb.handle, oneTime), "begin command buffer")
}

func (cb *CommandBuffer) End() error {
	return classify(cb.dev.hal.EndCommandBuffer(cb.handle), "end command buffer")
}

func (cb *CommandBuffer) Free() {
	if cb == nil || cb.handle == 0 {
		return
	}
	cb.dev.hal.FreeCommandBuffer(cb.handle)
	cb.handle = 0
}

// submitOnce records a one-time command buffer, submits it to the graphics
// queue and waits on a fence for it to finish.
func (d *LogicalDevice) submitOnce(op string, record func(cb hal.CommandBuffer)) error {
	cb, err := d.commandPool.Allocate()
	if err != nil {
		return err
	}
	defer cb.Free()

	if err := cb.Begin(true); err != nil {
		return err
	}
	record(cb.handle)
	if err := cb.End(); err != nil {
		return classify(err, op)
	}

	fence, err := d.createFence(false)
	if err != nil {
		return err
	}
	defer fence.Destroy()

	err = d.hal.QueueSubmit(d.graphicsQueue, fence.handle, hal.SubmitInfo{
		CommandBuffers: []hal.CommandBuffer{cb.handle},
	})
	if err != nil {
		return classify(err, op)
	}
	fence.submitted()
	return fence.Wait()
}
