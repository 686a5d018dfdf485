package gfx

import (
	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

// Tier is the update frequency of a group of shader resources. The first
// three tiers are descriptor set indices; PerObject data travels as push
// constants.
type Tier int

const (
	TierPerFrame Tier = iota
	TierPerPass
	TierPerMaterial
	TierPerObject

	setTierCount = int(TierPerObject)
)

func (t Tier) String() string {
	switch t {
	case TierPerFrame:
		return "per-frame"
	case TierPerPass:
		return "per-pass"
	case TierPerMaterial:
		return "per-material"
	case TierPerObject:
		return "per-object"
	}
	return "unknown"
}

// Uniform block sizes for the frame and pass tiers, and the per-object push
// constant block (one column-major mat4).
const (
	FrameUniformSize = 144 // view mat4, projection mat4, time vec4
	PassUniformSize  = 16  // width, height, 1/width, 1/height
	ObjectPushSize   = 64
)

// tierBindings is the fixed resource model: frame and pass data as uniform
// buffers, material data as one combined image sampler.
var tierBindings = [setTierCount][]hal.DescriptorBinding{
	TierPerFrame:    {{Binding: 0, Type: hal.DescriptorUniformBuffer, Count: 1, Stages: hal.ShaderStageVertex | hal.ShaderStageFragment}},
	TierPerPass:     {{Binding: 0, Type: hal.DescriptorUniformBuffer, Count: 1, Stages: hal.ShaderStageVertex | hal.ShaderStageFragment}},
	TierPerMaterial: {{Binding: 0, Type: hal.DescriptorCombinedImageSampler, Count: 1, Stages: hal.ShaderStageFragment}},
}

// DescriptorSetLayout is immutable once created.
type DescriptorSetLayout struct {
	dev      *LogicalDevice
	handle   hal.DescriptorSetLayout
	tier     Tier
	bindings []hal.DescriptorBinding
}

func (d *LogicalDevice) createSetLayout(tier Tier, bindings []hal.DescriptorBinding) (*DescriptorSetLayout, error) {
	h, err := d.hal.CreateDescriptorSetLayout(bindings)
	if err != nil {
		return nil, classify(err, "create "+tier.String()+" set layout")
	}
	return &DescriptorSetLayout{dev: d, handle: h, tier: tier, bindings: bindings}, nil
}

func (l *DescriptorSetLayout) Handle() hal.DescriptorSetLayout   { return l.handle }
func (l *DescriptorSetLayout) Tier() Tier                        { return l.tier }
func (l *DescriptorSetLayout) Bindings() []hal.DescriptorBinding { return l.bindings }

func (l *DescriptorSetLayout) Destroy() {
	if l == nil || l.handle == 0 {
		return
	}
	l.dev.hal.DestroyDescriptorSetLayout(l.handle)
	l.handle = 0
}

// DescriptorPool hands out sets up to a fixed capacity. Released sets are
// kept and handed out again for the same layout.
type DescriptorPool struct {
	dev      *LogicalDevice
	handle   hal.DescriptorPool
	maxSets  int
	capacity map[hal.DescriptorType]int
	used     map[hal.DescriptorType]int
	sets     int
	free     map[*DescriptorSetLayout][]*DescriptorSet
}

func (d *LogicalDevice) createDescriptorPool(maxSets int, sizes []hal.DescriptorPoolSize) (*DescriptorPool, error) {
	h, err := d.hal.CreateDescriptorPool(hal.DescriptorPoolDesc{MaxSets: maxSets, Sizes: sizes})
	if err != nil {
		return nil, classify(err, "create descriptor pool")
	}
	p := &DescriptorPool{
		dev:      d,
		handle:   h,
		maxSets:  maxSets,
		capacity: map[hal.DescriptorType]int{},
		used:     map[hal.DescriptorType]int{},
		free:     map[*DescriptorSetLayout][]*DescriptorSet{},
	}
	for _, s := range sizes {
		p.capacity[s.Type] += s.Count
	}
	return p, nil
}

// Allocate returns a set for layout, reusing a released one when possible.
// Exceeding the pool's capacity is ErrDescriptorPoolExhausted.
func (p *DescriptorPool) Allocate(layout *DescriptorSetLayout) (*DescriptorSet, error) {
	if free := p.free[layout]; len(free) > 0 {
		s := free[len(free)-1]
		p.free[layout] = free[:len(free)-1]
		s.released = false
		return s, nil
	}

	if p.sets >= p.maxSets {
		return nil, errors.Wrapf(ErrDescriptorPoolExhausted, "pool of %d sets is full", p.maxSets)
	}
	for _, b := range layout.bindings {
		if p.used[b.Type]+b.Count > p.capacity[b.Type] {
			return nil, errors.Wrapf(ErrDescriptorPoolExhausted, "pool has no %s descriptors left", b.Type)
		}
	}

	sets, err := p.dev.hal.AllocateDescriptorSets(p.handle, layout.handle)
	if err != nil {
		return nil, classify(err, "allocate descriptor set")
	}
	p.sets++
	for _, b := range layout.bindings {
		p.used[b.Type] += b.Count
	}
	return &DescriptorSet{
		dev:     p.dev,
		pool:    p,
		handle:  sets[0],
		layout:  layout,
		written: make([]bool, len(layout.bindings)),
	}, nil
}

// Available reports how many more sets can be allocated without reuse.
func (p *DescriptorPool) Available() int { return p.maxSets - p.sets }

func (p *DescriptorPool) Destroy() {
	if p == nil || p.handle == 0 {
		return
	}
	p.dev.hal.DestroyDescriptorPool(p.handle)
	p.handle = 0
}

// DescriptorSet remembers which bindings were written so an incomplete set
// can be caught before it is bound.
type DescriptorSet struct {
	dev      *LogicalDevice
	pool     *DescriptorPool
	handle   hal.DescriptorSet
	layout   *DescriptorSetLayout
	written  []bool
	released bool
}

func (s *DescriptorSet) Handle() hal.DescriptorSet    { return s.handle }
func (s *DescriptorSet) Layout() *DescriptorSetLayout { return s.layout }

func (s *DescriptorSet) binding(idx int, want hal.DescriptorType) (int, error) {
	for i, b := range s.layout.bindings {
		if b.Binding == idx {
			if b.Type != want {
				return -1, errors.Newf("binding %d is a %s, not a %s", idx, b.Type, want)
			}
			return i, nil
		}
	}
	return -1, errors.Newf("%s set has no binding %d", s.layout.tier, idx)
}

// WriteBuffer points a uniform buffer binding at buf.
func (s *DescriptorSet) WriteBuffer(binding int, buf *Buffer) error {
	i, err := s.binding(binding, hal.DescriptorUniformBuffer)
	if err != nil {
		return err
	}
	s.dev.hal.UpdateDescriptorSets(hal.DescriptorWrite{
		Set:     s.handle,
		Binding: binding,
		Type:    hal.DescriptorUniformBuffer,
		Buffer:  buf.handle,
		Range:   buf.size,
	})
	s.written[i] = true
	return nil
}

// WriteTexture points a combined image sampler binding at tex.
func (s *DescriptorSet) WriteTexture(binding int, tex *Texture) error {
	i, err := s.binding(binding, hal.DescriptorCombinedImageSampler)
	if err != nil {
		return err
	}
	s.dev.hal.UpdateDescriptorSets(hal.DescriptorWrite{
		Set:       s.handle,
		Binding:   binding,
		Type:      hal.DescriptorCombinedImageSampler,
		ImageView: tex.View(),
		Sampler:   tex.Sampler(),
	})
	s.written[i] = true
	return nil
}

// Validate fails with ErrUnwrittenBinding if any binding was never written.
func (s *DescriptorSet) Validate() error {
	for i, ok := range s.written {
		if !ok {
			return errors.Wrapf(ErrUnwrittenBinding, "%s set binding %d", s.layout.tier, s.layout.bindings[i].Binding)
		}
	}
	return nil
}

// Release hands the set back to its pool. Its writes are forgotten.
func (s *DescriptorSet) Release() {
	if s == nil || s.released {
		return
	}
	s.released = true
	for i := range s.written {
		s.written[i] = false
	}
	s.pool.free[s.layout] = append(s.pool.free[s.layout], s)
}
