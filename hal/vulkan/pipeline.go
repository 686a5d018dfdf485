package vulkan

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/emberkit/ember/hal"
)

// CreateRenderPass builds the single-subpass forward pass: a cleared color
// attachment handed to present and a cleared depth attachment whose
// contents are discarded.
func (d *Device) CreateRenderPass(desc hal.RenderPassDesc) (hal.RenderPass, error) {
	rp, res, err := d.driver.CreateRenderPass(nil, core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         core1_0.Format(desc.ColorFormat),
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         core1_0.Format(desc.DepthFormat),
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{Attachment: 0, Layout: core1_0.ImageLayoutColorAttachmentOptimal},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass:    core1_0.SubpassExternal,
				DstSubpass:    0,
				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput | core1_0.PipelineStageEarlyFragmentTests,
				DstAccessMask: core1_0.AccessColorAttachmentWrite | core1_0.AccessDepthStencilAttachmentWrite,
			},
		},
	})
	if err != nil {
		return 0, check(res, err, "create render pass")
	}
	return hal.RenderPass(d.renderPasses.put(rp)), nil
}

func (d *Device) DestroyRenderPass(rp hal.RenderPass) {
	if pass, ok := d.renderPasses.take(hal.Handle(rp)); ok {
		d.driver.DestroyRenderPass(pass, nil)
	}
}

func (d *Device) CreateFramebuffer(desc hal.FramebufferDesc) (hal.Framebuffer, error) {
	rp, ok := d.renderPasses.get(hal.Handle(desc.RenderPass))
	if !ok {
		return 0, errors.Newf("unknown render pass %d", desc.RenderPass)
	}
	fb, res, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  rp,
		Layers:      1,
		Attachments: lookup(&d.views, desc.Attachments),
		Width:       desc.Extent.Width,
		Height:      desc.Extent.Height,
	})
	if err != nil {
		return 0, check(res, err, "create framebuffer")
	}
	return hal.Framebuffer(d.framebuffers.put(fb)), nil
}

func (d *Device) DestroyFramebuffer(fb hal.Framebuffer) {
	if f, ok := d.framebuffers.take(hal.Handle(fb)); ok {
		d.driver.DestroyFramebuffer(f, nil)
	}
}

func (d *Device) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	m, res, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{Code: code})
	if err != nil {
		return 0, check(res, err, "create shader module")
	}
	return hal.ShaderModule(d.modules.put(m)), nil
}

func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	if mod, ok := d.modules.take(hal.Handle(m)); ok {
		d.driver.DestroyShaderModule(mod, nil)
	}
}

func (d *Device) CreatePipelineLayout(desc hal.PipelineLayoutDesc) (hal.PipelineLayout, error) {
	var ranges []core1_0.PushConstantRange
	for _, r := range desc.PushConstants {
		ranges = append(ranges, core1_0.PushConstantRange{
			StageFlags: core1_0.ShaderStageFlags(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		})
	}
	l, res, err := d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts:         lookup(&d.setLayouts, desc.SetLayouts),
		PushConstantRanges: ranges,
	})
	if err != nil {
		return 0, check(res, err, "create pipeline layout")
	}
	return hal.PipelineLayout(d.pipeLayouts.put(l)), nil
}

func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	if layout, ok := d.pipeLayouts.take(hal.Handle(l)); ok {
		d.driver.DestroyPipelineLayout(layout, nil)
	}
}

func colorBlend(blend bool) core1_0.PipelineColorBlendAttachmentState {
	state := core1_0.PipelineColorBlendAttachmentState{
		ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen |
			core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
	}
	if blend {
		state.BlendEnabled = true
		state.SrcColorBlendFactor = core1_0.BlendFactorSrcAlpha
		state.DstColorBlendFactor = core1_0.BlendFactorOneMinusSrcAlpha
		state.ColorBlendOp = core1_0.BlendOpAdd
		state.SrcAlphaBlendFactor = core1_0.BlendFactorOne
		state.DstAlphaBlendFactor = core1_0.BlendFactorZero
		state.AlphaBlendOp = core1_0.BlendOpAdd
	}
	return state
}

// CreateGraphicsPipeline builds a triangle-list pipeline with one
// interleaved vertex binding. Viewport and scissor are dynamic so the
// pipeline outlives swapchain recreation.
func (d *Device) CreateGraphicsPipeline(desc hal.GraphicsPipelineDesc) (hal.Pipeline, error) {
	vert, ok := d.modules.get(hal.Handle(desc.Vertex))
	if !ok {
		return 0, errors.Newf("unknown vertex module %d", desc.Vertex)
	}
	frag, ok := d.modules.get(hal.Handle(desc.Fragment))
	if !ok {
		return 0, errors.Newf("unknown fragment module %d", desc.Fragment)
	}
	layout, ok := d.pipeLayouts.get(hal.Handle(desc.Layout))
	if !ok {
		return 0, errors.Newf("unknown pipeline layout %d", desc.Layout)
	}
	rp, ok := d.renderPasses.get(hal.Handle(desc.RenderPass))
	if !ok {
		return 0, errors.Newf("unknown render pass %d", desc.RenderPass)
	}

	attrs := make([]core1_0.VertexInputAttributeDescription, 0, len(desc.Attributes))
	for _, a := range desc.Attributes {
		attrs = append(attrs, core1_0.VertexInputAttributeDescription{
			Binding:  0,
			Location: a.Location,
			Format:   core1_0.Format(a.Format),
			Offset:   a.Offset,
		})
	}

	pipelines, res, err := d.driver.CreateGraphicsPipelines(nil, nil, core1_0.GraphicsPipelineCreateInfo{
		Stages: []core1_0.PipelineShaderStageCreateInfo{
			{Stage: core1_0.StageVertex, Module: vert, Name: "main"},
			{Stage: core1_0.StageFragment, Module: frag, Name: "main"},
		},
		VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions: []core1_0.VertexInputBindingDescription{
				{Binding: 0, Stride: desc.VertexStride, InputRate: core1_0.VertexInputRateVertex},
			},
			VertexAttributeDescriptions: attrs,
		},
		InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology: core1_0.PrimitiveTopologyTriangleList,
		},
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: []core1_0.Viewport{{Width: 1, Height: 1, MaxDepth: 1}},
			Scissors:  []core1_0.Rect2D{{Extent: core1_0.Extent2D{Width: 1, Height: 1}}},
		},
		RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
			PolygonMode: core1_0.PolygonModeFill,
			CullMode:    core1_0.CullModeFlags(desc.CullMode),
			FrontFace:   core1_0.FrontFace(desc.FrontFace),
			LineWidth:   1,
		},
		MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1,
		},
		DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:  desc.DepthTest,
			DepthWriteEnable: desc.DepthTest && !desc.Blend,
			DepthCompareOp:   core1_0.CompareOpLess,
		},
		ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
			LogicOp:     core1_0.LogicOpCopy,
			Attachments: []core1_0.PipelineColorBlendAttachmentState{colorBlend(desc.Blend)},
		},
		DynamicState: &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: []core1_0.DynamicState{core1_0.DynamicStateViewport, core1_0.DynamicStateScissor},
		},
		Layout:            layout,
		RenderPass:        rp,
		Subpass:           0,
		BasePipelineIndex: -1,
	})
	if err != nil {
		return 0, check(res, err, "create graphics pipeline")
	}
	return hal.Pipeline(d.pipelines.put(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(p hal.Pipeline) {
	if pipeline, ok := d.pipelines.take(hal.Handle(p)); ok {
		d.driver.DestroyPipeline(pipeline, nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	out := make([]core1_0.DescriptorSetLayoutBinding, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, core1_0.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  core1_0.DescriptorType(b.Type),
			DescriptorCount: b.Count,
			StageFlags:      core1_0.ShaderStageFlags(b.Stages),
		})
	}
	l, res, err := d.driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{Bindings: out})
	if err != nil {
		return 0, check(res, err, "create descriptor set layout")
	}
	return hal.DescriptorSetLayout(d.setLayouts.put(l)), nil
}

func (d *Device) DestroyDescriptorSetLayout(l hal.DescriptorSetLayout) {
	if layout, ok := d.setLayouts.take(hal.Handle(l)); ok {
		d.driver.DestroyDescriptorSetLayout(layout, nil)
	}
}

func (d *Device) CreateDescriptorPool(desc hal.DescriptorPoolDesc) (hal.DescriptorPool, error) {
	sizes := make([]core1_0.DescriptorPoolSize, 0, len(desc.Sizes))
	for _, s := range desc.Sizes {
		sizes = append(sizes, core1_0.DescriptorPoolSize{Type: core1_0.DescriptorType(s.Type), DescriptorCount: s.Count})
	}
	p, res, err := d.driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   desc.MaxSets,
		PoolSizes: sizes,
	})
	if err != nil {
		return 0, check(res, err, "create descriptor pool")
	}
	return hal.DescriptorPool(d.pools.put(p)), nil
}

// DestroyDescriptorPool also forgets the sets allocated from the pool, which
// the driver frees with it.
func (d *Device) DestroyDescriptorPool(p hal.DescriptorPool) {
	pool, ok := d.pools.take(hal.Handle(p))
	if !ok {
		return
	}
	d.sets.mu.Lock()
	for h, s := range d.sets.objs {
		if s.pool == p {
			delete(d.sets.objs, h)
		}
	}
	d.sets.mu.Unlock()
	d.driver.DestroyDescriptorPool(pool, nil)
}

type descriptorSet struct {
	set  core1_0.DescriptorSet
	pool hal.DescriptorPool
}

func (d *Device) AllocateDescriptorSets(p hal.DescriptorPool, layouts ...hal.DescriptorSetLayout) ([]hal.DescriptorSet, error) {
	pool, ok := d.pools.get(hal.Handle(p))
	if !ok {
		return nil, errors.Newf("unknown descriptor pool %d", p)
	}
	sets, res, err := d.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: pool,
		SetLayouts:     lookup(&d.setLayouts, layouts),
	})
	if err != nil {
		return nil, check(res, err, "allocate descriptor sets")
	}
	out := make([]hal.DescriptorSet, len(sets))
	for i, s := range sets {
		out[i] = hal.DescriptorSet(d.sets.put(descriptorSet{set: s, pool: p}))
	}
	return out, nil
}

func (d *Device) UpdateDescriptorSets(writes ...hal.DescriptorWrite) {
	out := make([]core1_0.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.sets.get(hal.Handle(w.Set))
		if !ok {
			d.noteErr(errors.Newf("update of unknown descriptor set %d", w.Set))
			continue
		}
		write := core1_0.WriteDescriptorSet{
			DstSet:         set.set,
			DstBinding:     w.Binding,
			DescriptorType: core1_0.DescriptorType(w.Type),
		}
		switch w.Type {
		case hal.DescriptorUniformBuffer:
			buf, _ := d.buffers.get(hal.Handle(w.Buffer))
			write.BufferInfo = []core1_0.DescriptorBufferInfo{{Buffer: buf, Offset: w.Offset, Range: w.Range}}
		case hal.DescriptorCombinedImageSampler:
			view, _ := d.views.get(hal.Handle(w.ImageView))
			sampler, _ := d.samplers.get(hal.Handle(w.Sampler))
			write.ImageInfo = []core1_0.DescriptorImageInfo{{
				ImageView:   view,
				Sampler:     sampler,
				ImageLayout: core1_0.ImageLayoutShaderReadOnlyOptimal,
			}}
		}
		out = append(out, write)
	}
	d.noteErr(errors.Wrap(d.driver.UpdateDescriptorSets(out, nil), "update descriptor sets"))
}
