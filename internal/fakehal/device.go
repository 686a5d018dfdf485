package fakehal

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

// Object kinds reported by Live.
const (
	KindBuffer              = "buffer"
	KindImage               = "image"
	KindImageView           = "image_view"
	KindSampler             = "sampler"
	KindMemory              = "memory"
	KindRenderPass          = "render_pass"
	KindFramebuffer         = "framebuffer"
	KindShaderModule        = "shader_module"
	KindPipelineLayout      = "pipeline_layout"
	KindPipeline            = "pipeline"
	KindDescriptorSetLayout = "descriptor_set_layout"
	KindDescriptorPool      = "descriptor_pool"
	KindCommandPool         = "command_pool"
	KindCommandBuffer       = "command_buffer"
	KindFence               = "fence"
	KindSemaphore           = "semaphore"
	KindSwapchain           = "swapchain"
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

type buffer struct {
	size  int
	usage hal.BufferUsageFlags
	mem   hal.Memory
}

type memory struct {
	data     []byte
	typeIdx  int
	mapped   bool
	hostView bool
}

type image struct {
	desc      hal.ImageDesc
	layout    hal.ImageLayout
	mem       hal.Memory
	data      []byte
	swapchain bool
}

type swapchain struct {
	desc   hal.SwapchainDesc
	images []hal.Image
	next   int
}

type commandBuffer struct {
	pool      hal.CommandPool
	recording bool
	ops       []func() error
	lastFence hal.Fence
	inPass    *framebuffer
	rec       recording
}

type framebuffer struct {
	desc hal.FramebufferDesc
}

type fence struct {
	signaled bool
	// pending is set by a submission under DeferCompletion; the fence
	// signals when it is first waited on.
	pending bool
}

type descriptorPool struct {
	desc      hal.DescriptorPoolDesc
	sets      int
	used      map[hal.DescriptorType]int
	allocated []hal.DescriptorSet
}

type descriptorSet struct {
	pool   hal.DescriptorPool
	layout hal.DescriptorSetLayout
	writes map[int]hal.DescriptorWrite
}

// Device is the simulated logical device.
type Device struct {
	Desc hal.DeviceDesc

	// AcquireScript and PresentScript are consumed one entry per call.
	// When empty, acquire and present succeed unless the surface extent
	// no longer matches the swapchain.
	AcquireScript []hal.PresentStatus
	PresentScript []hal.PresentStatus

	// FailAllocations makes AllocateMemory report out of memory.
	FailAllocations bool

	// DeferCompletion keeps submitted work running until the host waits
	// on its fence or on the device, instead of completing at submission.
	DeferCompletion bool

	mu      sync.Mutex
	adapter *Adapter
	next    hal.Handle
	live    map[hal.Handle]string

	buffers      map[hal.Buffer]*buffer
	memories     map[hal.Memory]*memory
	images       map[hal.Image]*image
	views        map[hal.ImageView]hal.Image
	framebuffers map[hal.Framebuffer]*framebuffer
	swapchains   map[hal.Swapchain]*swapchain
	cmdBuffers   map[hal.CommandBuffer]*commandBuffer
	fences       map[hal.Fence]*fence
	semaphores   map[hal.Semaphore]bool
	setLayouts   map[hal.DescriptorSetLayout][]hal.DescriptorBinding
	pools        map[hal.DescriptorPool]*descriptorPool
	sets         map[hal.DescriptorSet]*descriptorSet

	stats      Stats
	fenceWaits []hal.Fence
	barriers   []hal.ImageBarrier
	presented []int
	destroyed bool
}

// Stats counts work the device has executed.
type Stats struct {
	Submits          int
	RenderPasses     int
	Draws            int
	Presents         int
	Acquires         int
	PipelinesCreated int
	SwapchainsBuilt  int
	BufferCopies     int
	ImageCopies      int
}

func newDevice(a *Adapter, desc hal.DeviceDesc) *Device {
	return &Device{
		Desc:         desc,
		adapter:      a,
		live:         map[hal.Handle]string{},
		buffers:      map[hal.Buffer]*buffer{},
		memories:     map[hal.Memory]*memory{},
		images:       map[hal.Image]*image{},
		views:        map[hal.ImageView]hal.Image{},
		framebuffers: map[hal.Framebuffer]*framebuffer{},
		swapchains:   map[hal.Swapchain]*swapchain{},
		cmdBuffers:   map[hal.CommandBuffer]*commandBuffer{},
		fences:       map[hal.Fence]*fence{},
		semaphores:   map[hal.Semaphore]bool{},
		setLayouts:   map[hal.DescriptorSetLayout][]hal.DescriptorBinding{},
		pools:        map[hal.DescriptorPool]*descriptorPool{},
		sets:         map[hal.DescriptorSet]*descriptorSet{},
	}
}

func (d *Device) alloc(kind string) hal.Handle {
	d.next++
	if kind != "" {
		d.live[d.next] = kind
	}
	return d.next
}

func (d *Device) release(h hal.Handle) {
	delete(d.live, h)
}

// Live returns the number of live objects per kind. Kinds with no live
// objects are omitted.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[string]int{}
	for _, kind := range d.live {
		out[kind]++
	}
	return out
}

// LiveKinds lists the kinds that still have live objects, sorted.
func (d *Device) LiveKinds() []string {
	var kinds []string
	for k := range d.Live() {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Barriers returns every image barrier executed so far, in order.
func (d *Device) Barriers() []hal.ImageBarrier {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]hal.ImageBarrier(nil), d.barriers...)
}

// FenceWaits returns every fence passed to WaitForFences, in call order.
func (d *Device) FenceWaits() []hal.Fence {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]hal.Fence(nil), d.fenceWaits...)
}

// Presented returns the swapchain image index of every successful present.
func (d *Device) Presented() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.presented...)
}

// ImageLayout reports the current layout of an image.
func (d *Device) ImageLayout(img hal.Image) hal.ImageLayout {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i, ok := d.images[img]; ok {
		return i.layout
	}
	return hal.LayoutUndefined
}

// ImageData returns a copy of the image's texels, four bytes per texel.
func (d *Device) ImageData(img hal.Image) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.images[img]
	if !ok {
		return nil
	}
	return append([]byte(nil), i.data...)
}

// SetWrites returns the descriptor writes recorded for a set, by binding.
func (d *Device) SetWrites(set hal.DescriptorSet) map[int]hal.DescriptorWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[set]
	if !ok {
		return nil
	}
	out := make(map[int]hal.DescriptorWrite, len(s.writes))
	for k, v := range s.writes {
		out[k] = v
	}
	return out
}

// Destroyed reports whether Destroy was called.
func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

func (d *Device) Queue(family int) hal.Queue {
	return hal.Queue(family + 1)
}

// WaitIdle completes all deferred work.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.fences {
		if f.pending {
			f.pending = false
			f.signaled = true
		}
	}
	return nil
}

func (d *Device) QueueWaitIdle(hal.Queue) error { return d.WaitIdle() }

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroyed = true
}

func (d *Device) CreateBuffer(size int, usage hal.BufferUsageFlags) (hal.Buffer, error) {
	if size <= 0 {
		return 0, errors.Newf("fakehal: invalid buffer size %d", size)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	b := hal.Buffer(d.alloc(KindBuffer))
	d.buffers[b] = &buffer{size: size, usage: usage}
	return b, nil
}

func (d *Device) allTypes() uint32 {
	return uint32(1)<<len(d.adapter.Memory) - 1
}

func (d *Device) BufferMemoryRequirements(b hal.Buffer) hal.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hal.MemoryRequirements{Size: d.buffers[b].size, MemoryTypeBits: d.allTypes()}
}

func (d *Device) BindBufferMemory(b hal.Buffer, m hal.Memory) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf, ok := d.buffers[b]
	if !ok {
		return errors.New("fakehal: bind to unknown buffer")
	}
	mem, ok := d.memories[m]
	if !ok {
		return errors.New("fakehal: bind unknown memory")
	}
	if len(mem.data) < buf.size {
		return errors.New("fakehal: memory smaller than buffer")
	}
	buf.mem = m
	return nil
}

func (d *Device) DestroyBuffer(b hal.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.buffers, b)
	d.release(hal.Handle(b))
}

func (d *Device) CreateImage(desc hal.ImageDesc) (hal.Image, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return 0, errors.Newf("fakehal: invalid image size %dx%d", desc.Width, desc.Height)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	img := hal.Image(d.alloc(KindImage))
	d.images[img] = &image{desc: desc, layout: hal.LayoutUndefined}
	return img, nil
}

func (d *Device) ImageMemoryRequirements(img hal.Image) hal.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.images[img]
	return hal.MemoryRequirements{Size: i.desc.Width * i.desc.Height * 4, MemoryTypeBits: d.allTypes()}
}

func (d *Device) BindImageMemory(img hal.Image, m hal.Memory) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	i, ok := d.images[img]
	if !ok {
		return errors.New("fakehal: bind to unknown image")
	}
	mem, ok := d.memories[m]
	if !ok {
		return errors.New("fakehal: bind unknown memory")
	}
	i.mem = m
	i.data = mem.data
	return nil
}

func (d *Device) DestroyImage(img hal.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.images, img)
	d.release(hal.Handle(img))
}

func (d *Device) CreateImageView(desc hal.ImageViewDesc) (hal.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.images[desc.Image]; !ok {
		return 0, errors.New("fakehal: view of unknown image")
	}
	v := hal.ImageView(d.alloc(KindImageView))
	d.views[v] = desc.Image
	return v, nil
}

func (d *Device) DestroyImageView(v hal.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.views, v)
	d.release(hal.Handle(v))
}

func (d *Device) CreateSampler(hal.SamplerDesc) (hal.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return hal.Sampler(d.alloc(KindSampler)), nil
}

func (d *Device) DestroySampler(s hal.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(hal.Handle(s))
}

func (d *Device) AllocateMemory(size int, memoryType int) (hal.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailAllocations {
		return 0, errors.Mark(errors.Newf("fakehal: cannot allocate %d bytes", size), hal.ErrOutOfMemory)
	}
	if memoryType < 0 || memoryType >= len(d.adapter.Memory) {
		return 0, errors.Newf("fakehal: memory type %d out of range", memoryType)
	}
	m := hal.Memory(d.alloc(KindMemory))
	d.memories[m] = &memory{
		data:     make([]byte, size),
		typeIdx:  memoryType,
		hostView: d.adapter.Memory[memoryType].Properties&hal.MemoryHostVisible != 0,
	}
	return m, nil
}

func (d *Device) MapMemory(m hal.Memory, offset, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem, ok := d.memories[m]
	if !ok {
		return nil, errors.New("fakehal: map of unknown memory")
	}
	if !mem.hostView {
		return nil, errors.Wrap(hal.ErrNotMappable, "fakehal: map")
	}
	if mem.mapped {
		return nil, errors.New("fakehal: memory already mapped")
	}
	if offset < 0 || offset+size > len(mem.data) {
		return nil, errors.Newf("fakehal: map range [%d,%d) outside allocation of %d", offset, offset+size, len(mem.data))
	}
	mem.mapped = true
	return mem.data[offset : offset+size], nil
}

func (d *Device) UnmapMemory(m hal.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if mem, ok := d.memories[m]; ok {
		mem.mapped = false
	}
}

func (d *Device) FreeMemory(m hal.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.memories, m)
	d.release(hal.Handle(m))
}

func (d *Device) CreateRenderPass(desc hal.RenderPassDesc) (hal.RenderPass, error) {
	if desc.ColorFormat == hal.FormatUndefined {
		return 0, errors.New("fakehal: render pass without color format")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return hal.RenderPass(d.alloc(KindRenderPass)), nil
}

func (d *Device) DestroyRenderPass(rp hal.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(hal.Handle(rp))
}

func (d *Device) CreateFramebuffer(desc hal.FramebufferDesc) (hal.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, v := range desc.Attachments {
		if _, ok := d.views[v]; !ok {
			return 0, errors.New("fakehal: framebuffer attachment is not a live view")
		}
	}
	fb := hal.Framebuffer(d.alloc(KindFramebuffer))
	d.framebuffers[fb] = &framebuffer{desc: desc}
	return fb, nil
}

func (d *Device) DestroyFramebuffer(fb hal.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.framebuffers, fb)
	d.release(hal.Handle(fb))
}

func (d *Device) CreateShaderModule(code []uint32) (hal.ShaderModule, error) {
	if len(code) == 0 || code[0] != spirvMagic {
		return 0, errors.New("fakehal: shader code is not SPIR-V")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return hal.ShaderModule(d.alloc(KindShaderModule)), nil
}

func (d *Device) DestroyShaderModule(m hal.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(hal.Handle(m))
}

func (d *Device) CreatePipelineLayout(desc hal.PipelineLayoutDesc) (hal.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range desc.SetLayouts {
		if _, ok := d.setLayouts[l]; !ok {
			return 0, errors.New("fakehal: pipeline layout references unknown set layout")
		}
	}
	return hal.PipelineLayout(d.alloc(KindPipelineLayout)), nil
}

func (d *Device) DestroyPipelineLayout(l hal.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(hal.Handle(l))
}

func (d *Device) CreateGraphicsPipeline(desc hal.GraphicsPipelineDesc) (hal.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live[hal.Handle(desc.Vertex)] != KindShaderModule || d.live[hal.Handle(desc.Fragment)] != KindShaderModule {
		return 0, errors.New("fakehal: pipeline references a dead shader module")
	}
	if d.live[hal.Handle(desc.RenderPass)] != KindRenderPass {
		return 0, errors.New("fakehal: pipeline references a dead render pass")
	}
	d.stats.PipelinesCreated++
	return hal.Pipeline(d.alloc(KindPipeline)), nil
}

func (d *Device) DestroyPipeline(p hal.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(hal.Handle(p))
}

func (d *Device) CreateDescriptorSetLayout(bindings []hal.DescriptorBinding) (hal.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := hal.DescriptorSetLayout(d.alloc(KindDescriptorSetLayout))
	d.setLayouts[l] = append([]hal.DescriptorBinding(nil), bindings...)
	return l, nil
}

func (d *Device) DestroyDescriptorSetLayout(l hal.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.setLayouts, l)
	d.release(hal.Handle(l))
}

func (d *Device) CreateDescriptorPool(desc hal.DescriptorPoolDesc) (hal.DescriptorPool, error) {
	if desc.MaxSets <= 0 {
		return 0, errors.New("fakehal: descriptor pool with no sets")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	p := hal.DescriptorPool(d.alloc(KindDescriptorPool))
	d.pools[p] = &descriptorPool{desc: desc, used: map[hal.DescriptorType]int{}}
	return p, nil
}

func (d *Device) DestroyDescriptorPool(p hal.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if pool, ok := d.pools[p]; ok {
		for _, s := range pool.allocated {
			delete(d.sets, s)
		}
	}
	delete(d.pools, p)
	d.release(hal.Handle(p))
}

func (d *Device) AllocateDescriptorSets(p hal.DescriptorPool, layouts ...hal.DescriptorSetLayout) ([]hal.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pool, ok := d.pools[p]
	if !ok {
		return nil, errors.New("fakehal: allocate from unknown pool")
	}
	if pool.sets+len(layouts) > pool.desc.MaxSets {
		return nil, errors.Mark(errors.Newf("fakehal: pool holds %d sets", pool.desc.MaxSets), hal.ErrPoolExhausted)
	}
	need := map[hal.DescriptorType]int{}
	for _, l := range layouts {
		bindings, ok := d.setLayouts[l]
		if !ok {
			return nil, errors.New("fakehal: allocate against unknown layout")
		}
		for _, b := range bindings {
			need[b.Type] += b.Count
		}
	}
	for typ, n := range need {
		capacity := 0
		for _, s := range pool.desc.Sizes {
			if s.Type == typ {
				capacity += s.Count
			}
		}
		if pool.used[typ]+n > capacity {
			return nil, errors.Mark(errors.Newf("fakehal: pool out of %s descriptors", typ), hal.ErrPoolExhausted)
		}
	}
	for typ, n := range need {
		pool.used[typ] += n
	}
	pool.sets += len(layouts)

	out := make([]hal.DescriptorSet, len(layouts))
	for i, l := range layouts {
		s := hal.DescriptorSet(d.alloc(""))
		d.sets[s] = &descriptorSet{pool: p, layout: l, writes: map[int]hal.DescriptorWrite{}}
		pool.allocated = append(pool.allocated, s)
		out[i] = s
	}
	return out, nil
}

func (d *Device) UpdateDescriptorSets(writes ...hal.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		if s, ok := d.sets[w.Set]; ok {
			s.writes[w.Binding] = w
		}
	}
}

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := hal.Fence(d.alloc(KindFence))
	d.fences[f] = &fence{signaled: signaled}
	return f, nil
}

func (d *Device) DestroyFence(f hal.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.fences, f)
	d.release(hal.Handle(f))
}

// WaitForFences fails instead of blocking forever when a fence has no
// pending signal. Deferred work completes here.
func (d *Device) WaitForFences(fences ...hal.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range fences {
		f, ok := d.fences[h]
		if !ok {
			return errors.New("fakehal: wait on unknown fence")
		}
		d.fenceWaits = append(d.fenceWaits, h)
		if f.pending {
			f.pending = false
			f.signaled = true
		}
		if !f.signaled {
			return errors.New("fakehal: wait on a fence that will never signal")
		}
	}
	return nil
}

func (d *Device) ResetFences(fences ...hal.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range fences {
		f, ok := d.fences[h]
		if !ok {
			return errors.New("fakehal: reset unknown fence")
		}
		if f.pending {
			return errors.New("fakehal: reset of a fence whose work is still running")
		}
		f.signaled = false
	}
	return nil
}

func (d *Device) FenceSignaled(h hal.Fence) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.fences[h]
	if !ok {
		return false, errors.New("fakehal: query unknown fence")
	}
	return f.signaled, nil
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := hal.Semaphore(d.alloc(KindSemaphore))
	d.semaphores[s] = false
	return s, nil
}

func (d *Device) DestroySemaphore(s hal.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semaphores, s)
	d.release(hal.Handle(s))
}
