package gfx

import (
	"github.com/emberkit/ember/hal"
)

// RenderPass has one color attachment that ends in PRESENT_SRC and one
// depth attachment. It outlives swapchain recreation as long as the surface
// format does not change.
type RenderPass struct {
	dev         *LogicalDevice
	handle      hal.RenderPass
	colorFormat hal.Format
	depthFormat hal.Format
}

func (d *LogicalDevice) createRenderPass(color, depth hal.Format) (*RenderPass, error) {
	h, err := d.hal.CreateRenderPass(hal.RenderPassDesc{ColorFormat: color, DepthFormat: depth})
	if err != nil {
		return nil, classify(err, "create render pass")
	}
	return &RenderPass{dev: d, handle: h, colorFormat: color, depthFormat: depth}, nil
}

func (rp *RenderPass) Handle() hal.RenderPass  { return rp.handle }
func (rp *RenderPass) ColorFormat() hal.Format { return rp.colorFormat }
func (rp *RenderPass) DepthFormat() hal.Format { return rp.depthFormat }

func (rp *RenderPass) Destroy() {
	if rp == nil || rp.handle == 0 {
		return
	}
	rp.dev.hal.DestroyRenderPass(rp.handle)
	rp.handle = 0
}
