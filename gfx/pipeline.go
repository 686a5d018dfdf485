package gfx

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/emberkit/ember/hal"
	"github.com/emberkit/ember/shader"
)

// PipelineLayout aggregates the per-frame, per-pass and per-material set
// layouts with the per-object push constant range.
type PipelineLayout struct {
	dev     *LogicalDevice
	handle  hal.PipelineLayout
	sets    [setTierCount]*DescriptorSetLayout
	objects hal.PushConstantRange
}

func (d *LogicalDevice) createPipelineLayout(sets [setTierCount]*DescriptorSetLayout) (*PipelineLayout, error) {
	handles := make([]hal.DescriptorSetLayout, len(sets))
	for i, s := range sets {
		handles[i] = s.handle
	}
	push := hal.PushConstantRange{Stages: hal.ShaderStageVertex, Offset: 0, Size: ObjectPushSize}
	h, err := d.hal.CreatePipelineLayout(hal.PipelineLayoutDesc{
		SetLayouts:    handles,
		PushConstants: []hal.PushConstantRange{push},
	})
	if err != nil {
		return nil, classify(err, "create pipeline layout")
	}
	return &PipelineLayout{dev: d, handle: h, sets: sets, objects: push}, nil
}

func (l *PipelineLayout) Handle() hal.PipelineLayout { return l.handle }

// SetLayout returns the descriptor set layout of a set tier.
func (l *PipelineLayout) SetLayout(t Tier) *DescriptorSetLayout {
	if t < 0 || int(t) >= setTierCount {
		return nil
	}
	return l.sets[t]
}

func (l *PipelineLayout) Destroy() {
	if l == nil || l.handle == 0 {
		return
	}
	l.dev.hal.DestroyPipelineLayout(l.handle)
	l.handle = 0
}

// ShaderStages holds the vertex and fragment modules of a compiled program.
// They stay alive while pipelines may still be built from them.
type ShaderStages struct {
	dev      *LogicalDevice
	id       uuid.UUID
	layout   shader.VertexLayout
	blend    bool
	cull     hal.CullMode
	vertex   hal.ShaderModule
	fragment hal.ShaderModule
}

// CreateShaderStages creates shader modules for a compiled program. On
// failure nothing is left behind.
func (d *LogicalDevice) CreateShaderStages(c *shader.Compiled, p shader.Program) (*ShaderStages, error) {
	s := &ShaderStages{dev: d, id: c.ID, layout: p.Layout, blend: p.Blend, cull: hal.CullBack}
	if p.DoubleSided {
		s.cull = hal.CullNone
	}
	var err error
	if s.vertex, err = d.hal.CreateShaderModule(c.Vertex); err != nil {
		return nil, classify(err, "create vertex shader module")
	}
	if s.fragment, err = d.hal.CreateShaderModule(c.Fragment); err != nil {
		s.Destroy()
		return nil, classify(err, "create fragment shader module")
	}
	return s, nil
}

func (s *ShaderStages) ID() uuid.UUID { return s.id }

func (s *ShaderStages) Destroy() {
	if s == nil {
		return
	}
	if s.vertex != 0 {
		s.dev.hal.DestroyShaderModule(s.vertex)
	}
	if s.fragment != 0 {
		s.dev.hal.DestroyShaderModule(s.fragment)
	}
	s.vertex, s.fragment = 0, 0
}

// PipelineKey identifies a pipeline in the cache.
type PipelineKey struct {
	Shader       uuid.UUID
	VertexLayout string
	RenderPass   hal.RenderPass
}

// Pipeline is immutable graphics state. Viewport and scissor are dynamic so
// a pipeline survives swapchain recreation.
type Pipeline struct {
	dev    *LogicalDevice
	handle hal.Pipeline
	key    PipelineKey
	layout *PipelineLayout
	refs   int
}

func (p *Pipeline) Handle() hal.Pipeline    { return p.handle }
func (p *Pipeline) Key() PipelineKey        { return p.key }
func (p *Pipeline) Layout() *PipelineLayout { return p.layout }

// PipelineCache shares pipelines between materials that would build the
// same one. Entries are reference counted.
type PipelineCache struct {
	dev     *LogicalDevice
	entries map[PipelineKey]*Pipeline
	created int
}

func newPipelineCache(d *LogicalDevice) *PipelineCache {
	return &PipelineCache{dev: d, entries: map[PipelineKey]*Pipeline{}}
}

// Acquire returns the pipeline for stages drawn into the device's render
// pass, creating it on first use.
func (c *PipelineCache) Acquire(stages *ShaderStages) (*Pipeline, error) {
	d := c.dev
	key := PipelineKey{Shader: stages.id, VertexLayout: stages.layout.Key(), RenderPass: d.renderPass.handle}
	if p, ok := c.entries[key]; ok {
		p.refs++
		return p, nil
	}
	if stages.vertex == 0 || stages.fragment == 0 {
		return nil, errors.New("create pipeline: shader stages were destroyed")
	}

	h, err := d.hal.CreateGraphicsPipeline(hal.GraphicsPipelineDesc{
		Vertex:       stages.vertex,
		Fragment:     stages.fragment,
		VertexStride: stages.layout.Stride(),
		Attributes:   stages.layout.HalAttributes(),
		CullMode:     stages.cull,
		FrontFace:    hal.FrontFaceCounterClockwise,
		DepthTest:    true,
		Blend:        stages.blend,
		Layout:       d.pipelineLayout.handle,
		RenderPass:   d.renderPass.handle,
	})
	if err != nil {
		return nil, classify(err, "create graphics pipeline")
	}
	p := &Pipeline{dev: d, handle: h, key: key, layout: d.pipelineLayout, refs: 1}
	c.entries[key] = p
	c.created++
	Logger().Debug("pipeline created", "shader", key.Shader, "layout", key.VertexLayout)
	return p, nil
}

// Release drops one reference and destroys the pipeline with the last.
func (c *PipelineCache) Release(p *Pipeline) {
	if p == nil || p.refs == 0 {
		return
	}
	p.refs--
	if p.refs > 0 {
		return
	}
	delete(c.entries, p.key)
	c.dev.hal.DestroyPipeline(p.handle)
	p.handle = 0
}

// Len is the number of live pipelines.
func (c *PipelineCache) Len() int { return len(c.entries) }

// Created counts pipelines built over the cache's lifetime.
func (c *PipelineCache) Created() int { return c.created }

func (c *PipelineCache) Destroy() {
	if c == nil {
		return
	}
	for k, p := range c.entries {
		c.dev.hal.DestroyPipeline(p.handle)
		p.handle, p.refs = 0, 0
		delete(c.entries, k)
	}
}
