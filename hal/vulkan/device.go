package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/emberkit/ember/hal"
)

// Device owns a logical device and the handle tables for everything created
// on it. Commands that return nothing in hal but can fail in vkngwrapper
// record the failure; it is reported by the next EndCommandBuffer for
// recording commands and by the next QueueSubmit otherwise.
type Device struct {
	inst    *Instance
	adapter *Adapter
	driver  core1_0.CoreDeviceDriver

	swapchainExt khr_swapchain.ExtensionDriver
	queues       map[hal.Queue]core1_0.Queue

	buffers        table[core1_0.Buffer]
	images         table[core1_0.Image]
	views          table[core1_0.ImageView]
	samplers       table[core1_0.Sampler]
	memory         table[core1_0.DeviceMemory]
	renderPasses   table[core1_0.RenderPass]
	framebuffers   table[core1_0.Framebuffer]
	modules        table[core1_0.ShaderModule]
	setLayouts     table[core1_0.DescriptorSetLayout]
	pipeLayouts    table[core1_0.PipelineLayout]
	pipelines      table[core1_0.Pipeline]
	pools          table[core1_0.DescriptorPool]
	sets           table[descriptorSet]
	commandPools   table[core1_0.CommandPool]
	commandBuffers table[*commandBuffer]
	fences         table[core1_0.Fence]
	semaphores     table[core1_0.Semaphore]
	swapchains     table[*swapchain]

	deferred error
}

var _ hal.Device = (*Device)(nil)

func (i *Instance) CreateDevice(adapter hal.Adapter, desc hal.DeviceDesc) (hal.Device, error) {
	a, ok := adapter.(*Adapter)
	if !ok || a.inst != i {
		return nil, errors.Newf("adapter %T does not belong to this instance", adapter)
	}

	var queues []core1_0.DeviceQueueCreateInfo
	for _, family := range desc.QueueFamilies {
		queues = append(queues, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: family,
			QueuePriorities:  []float32{1},
		})
	}
	driver, res, err := i.driver.CreateDevice(a.pd, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queues,
		EnabledExtensionNames: desc.Extensions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: desc.Features.SamplerAnisotropy,
		},
	})
	if err != nil {
		return nil, check(res, err, "create device")
	}

	d := &Device{
		inst:         i,
		adapter:      a,
		driver:       driver,
		swapchainExt: khr_swapchain.CreateExtensionDriverFromCoreDriver(driver),
		queues:       map[hal.Queue]core1_0.Queue{},
	}
	for _, family := range desc.QueueFamilies {
		d.queues[hal.Queue(family+1)] = driver.GetQueue(family, 0)
	}
	return d, nil
}

// Queue returns the first queue of family. Its handle is family+1.
func (d *Device) Queue(family int) hal.Queue { return hal.Queue(family + 1) }

func (d *Device) queue(q hal.Queue) (core1_0.Queue, error) {
	queue, ok := d.queues[q]
	if !ok {
		return queue, errors.Newf("queue %d was not requested at device creation", q)
	}
	return queue, nil
}

func (d *Device) noteErr(err error) {
	if err != nil && d.deferred == nil {
		d.deferred = err
	}
}

func (d *Device) WaitIdle() error {
	res, err := d.driver.DeviceWaitIdle()
	return check(res, err, "wait for device idle")
}

func (d *Device) QueueWaitIdle(q hal.Queue) error {
	queue, err := d.queue(q)
	if err != nil {
		return err
	}
	res, err := d.driver.QueueWaitIdle(queue)
	return check(res, err, "wait for queue idle")
}

func (d *Device) QueueSubmit(q hal.Queue, fence hal.Fence, submits ...hal.SubmitInfo) error {
	if err := d.deferred; err != nil {
		d.deferred = nil
		return err
	}
	queue, err := d.queue(q)
	if err != nil {
		return err
	}
	infos := make([]core1_0.SubmitInfo, 0, len(submits))
	for _, s := range submits {
		stages := make([]core1_0.PipelineStageFlags, len(s.WaitStages))
		for i, st := range s.WaitStages {
			stages[i] = core1_0.PipelineStageFlags(st)
		}
		cbs := make([]core1_0.CommandBuffer, 0, len(s.CommandBuffers))
		for _, h := range s.CommandBuffers {
			if cb, ok := d.commandBuffers.get(hal.Handle(h)); ok {
				cbs = append(cbs, cb.cb)
			}
		}
		infos = append(infos, core1_0.SubmitInfo{
			WaitSemaphores:   lookup(&d.semaphores, s.WaitSemaphores),
			WaitDstStageMask: stages,
			CommandBuffers:   cbs,
			SignalSemaphores: lookup(&d.semaphores, s.SignalSemaphores),
		})
	}

	var f *core1_0.Fence
	if fence != 0 {
		vf, ok := d.fences.get(hal.Handle(fence))
		if !ok {
			return errors.Newf("unknown fence %d", fence)
		}
		f = &vf
	}
	res, err := d.driver.QueueSubmit(queue, f, infos...)
	return check(res, err, "queue submit")
}

func (d *Device) CreateBuffer(size int, usage hal.BufferUsageFlags) (hal.Buffer, error) {
	b, res, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       core1_0.BufferUsageFlags(usage),
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return 0, check(res, err, "create buffer")
	}
	return hal.Buffer(d.buffers.put(b)), nil
}

func requirements(r *core1_0.MemoryRequirements) hal.MemoryRequirements {
	return hal.MemoryRequirements{Size: r.Size, MemoryTypeBits: r.MemoryTypeBits}
}

func (d *Device) BufferMemoryRequirements(b hal.Buffer) hal.MemoryRequirements {
	buf, _ := d.buffers.get(hal.Handle(b))
	return requirements(d.driver.GetBufferMemoryRequirements(buf))
}

func (d *Device) BindBufferMemory(b hal.Buffer, m hal.Memory) error {
	buf, _ := d.buffers.get(hal.Handle(b))
	mem, _ := d.memory.get(hal.Handle(m))
	res, err := d.driver.BindBufferMemory(buf, mem, 0)
	return check(res, err, "bind buffer memory")
}

func (d *Device) DestroyBuffer(b hal.Buffer) {
	if buf, ok := d.buffers.take(hal.Handle(b)); ok {
		d.driver.DestroyBuffer(buf, nil)
	}
}

func (d *Device) CreateImage(desc hal.ImageDesc) (hal.Image, error) {
	img, res, err := d.driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType:     core1_0.ImageType2D,
		Extent:        core1_0.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        core1_0.Format(desc.Format),
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         core1_0.ImageUsageFlags(desc.Usage),
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return 0, check(res, err, "create image")
	}
	return hal.Image(d.images.put(img)), nil
}

func (d *Device) ImageMemoryRequirements(img hal.Image) hal.MemoryRequirements {
	image, _ := d.images.get(hal.Handle(img))
	return requirements(d.driver.GetImageMemoryRequirements(image))
}

func (d *Device) BindImageMemory(img hal.Image, m hal.Memory) error {
	image, _ := d.images.get(hal.Handle(img))
	mem, _ := d.memory.get(hal.Handle(m))
	res, err := d.driver.BindImageMemory(image, mem, 0)
	return check(res, err, "bind image memory")
}

func (d *Device) DestroyImage(img hal.Image) {
	if image, ok := d.images.take(hal.Handle(img)); ok {
		d.driver.DestroyImage(image, nil)
	}
}

func (d *Device) CreateImageView(desc hal.ImageViewDesc) (hal.ImageView, error) {
	image, ok := d.images.get(hal.Handle(desc.Image))
	if !ok {
		return 0, errors.Newf("unknown image %d", desc.Image)
	}
	view, res, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   core1_0.Format(desc.Format),
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask: core1_0.ImageAspectFlags(desc.Aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	})
	if err != nil {
		return 0, check(res, err, "create image view")
	}
	return hal.ImageView(d.views.put(view)), nil
}

func (d *Device) DestroyImageView(v hal.ImageView) {
	if view, ok := d.views.take(hal.Handle(v)); ok {
		d.driver.DestroyImageView(view, nil)
	}
}

func (d *Device) CreateSampler(desc hal.SamplerDesc) (hal.Sampler, error) {
	s, res, err := d.driver.CreateSampler(nil, core1_0.SamplerCreateInfo{
		MagFilter:    core1_0.FilterLinear,
		MinFilter:    core1_0.FilterLinear,
		AddressModeU: core1_0.SamplerAddressModeRepeat,
		AddressModeV: core1_0.SamplerAddressModeRepeat,
		AddressModeW: core1_0.SamplerAddressModeRepeat,

		AnisotropyEnable: desc.MaxAnisotropy > 1,
		MaxAnisotropy:    desc.MaxAnisotropy,

		BorderColor: core1_0.BorderColorIntOpaqueBlack,
		MipmapMode:  core1_0.SamplerMipmapModeLinear,
	})
	if err != nil {
		return 0, check(res, err, "create sampler")
	}
	return hal.Sampler(d.samplers.put(s)), nil
}

func (d *Device) DestroySampler(s hal.Sampler) {
	if sampler, ok := d.samplers.take(hal.Handle(s)); ok {
		d.driver.DestroySampler(sampler, nil)
	}
}

func (d *Device) AllocateMemory(size int, memoryType int) (hal.Memory, error) {
	mem, res, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: memoryType,
	})
	if err != nil {
		return 0, check(res, err, "allocate memory")
	}
	return hal.Memory(d.memory.put(mem)), nil
}

func (d *Device) MapMemory(m hal.Memory, offset, size int) ([]byte, error) {
	mem, ok := d.memory.get(hal.Handle(m))
	if !ok {
		return nil, errors.Newf("unknown memory %d", m)
	}
	ptr, res, err := d.driver.MapMemory(mem, offset, size, 0)
	if err != nil {
		if res == vkErrorMemoryMapFailed {
			return nil, errors.Mark(errors.Wrap(err, "map memory"), hal.ErrNotMappable)
		}
		return nil, check(res, err, "map memory")
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *Device) UnmapMemory(m hal.Memory) {
	if mem, ok := d.memory.get(hal.Handle(m)); ok {
		d.driver.UnmapMemory(mem)
	}
}

func (d *Device) FreeMemory(m hal.Memory) {
	if mem, ok := d.memory.take(hal.Handle(m)); ok {
		d.driver.FreeMemory(mem, nil)
	}
}

func (d *Device) CreateFence(signaled bool) (hal.Fence, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags = core1_0.FenceCreateSignaled
	}
	f, res, err := d.driver.CreateFence(nil, core1_0.FenceCreateInfo{Flags: flags})
	if err != nil {
		return 0, check(res, err, "create fence")
	}
	return hal.Fence(d.fences.put(f)), nil
}

func (d *Device) DestroyFence(f hal.Fence) {
	if fence, ok := d.fences.take(hal.Handle(f)); ok {
		d.driver.DestroyFence(fence, nil)
	}
}

func (d *Device) WaitForFences(fences ...hal.Fence) error {
	fs := lookup(&d.fences, fences)
	if len(fs) == 0 {
		return nil
	}
	res, err := d.driver.WaitForFences(true, common.NoTimeout, fs...)
	return check(res, err, "wait for fences")
}

func (d *Device) ResetFences(fences ...hal.Fence) error {
	fs := lookup(&d.fences, fences)
	if len(fs) == 0 {
		return nil
	}
	res, err := d.driver.ResetFences(fs...)
	return check(res, err, "reset fences")
}

func (d *Device) FenceSignaled(f hal.Fence) (bool, error) {
	fence, ok := d.fences.get(hal.Handle(f))
	if !ok {
		return false, errors.Newf("unknown fence %d", f)
	}
	res, err := d.driver.GetFenceStatus(fence)
	if err != nil {
		return false, check(res, err, "fence status")
	}
	return res == core1_0.VKSuccess, nil
}

func (d *Device) CreateSemaphore() (hal.Semaphore, error) {
	s, res, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return 0, check(res, err, "create semaphore")
	}
	return hal.Semaphore(d.semaphores.put(s)), nil
}

func (d *Device) DestroySemaphore(s hal.Semaphore) {
	if sem, ok := d.semaphores.take(hal.Handle(s)); ok {
		d.driver.DestroySemaphore(sem, nil)
	}
}

// Destroy destroys the logical device. Objects still alive are destroyed by
// the driver with it; the validation layer reports them.
func (d *Device) Destroy() {
	if d.driver == nil {
		return
	}
	d.driver.DestroyDevice(nil)
	d.driver = nil
}
