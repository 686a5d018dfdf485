// Package hal is the hardware abstraction the device layer is written
// against. It mirrors the shape of the Vulkan API: typed opaque handles,
// create/destroy pairs and Cmd* recording calls, with value types whose
// numeric values match their Vulkan counterparts.
//
// The vulkan sub-package implements it on top of vkngwrapper. Anything else
// implementing it (a software fake for tests, a capture layer) only needs
// to honour the same ordering rules a Vulkan driver would.
package hal

// Window is the surface boundary consumed from the windowing layer: an
// opaque per-platform handle plus a query for its current pixel size.
type Window interface {
	Handle() any
	PixelSize() (width, height int)
	// InstanceExtensions lists the instance extensions the window system
	// needs to create a presentable surface.
	InstanceExtensions() []string
}

// Loader is the entry point of a backend.
type Loader interface {
	AvailableLayers() (map[string]struct{}, error)
	AvailableExtensions() (map[string]struct{}, error)
	CreateInstance(desc InstanceDesc) (Instance, error)
}

type Instance interface {
	CreateSurface(win Window) (Surface, error)
	DestroySurface(s Surface)
	Adapters() ([]Adapter, error)
	CreateDevice(adapter Adapter, desc DeviceDesc) (Device, error)
	Destroy()
}

// Adapter is one physical device.
type Adapter interface {
	Properties() AdapterProperties
	Features() Features
	MemoryTypes() []MemoryType
	QueueFamilies() []QueueFamily
	Extensions() (map[string]struct{}, error)
	FormatFeatures(f Format) FormatFeatureFlags

	SurfaceSupport(s Surface, family int) (bool, error)
	SurfaceCapabilities(s Surface) (SurfaceCapabilities, error)
	SurfaceFormats(s Surface) ([]SurfaceFormat, error)
	PresentModes(s Surface) ([]PresentMode, error)
}

// Device is a logical device. Methods are not safe for concurrent use
// unless the backend documents otherwise.
type Device interface {
	Queue(family int) Queue
	WaitIdle() error
	QueueWaitIdle(q Queue) error
	QueueSubmit(q Queue, fence Fence, submits ...SubmitInfo) error

	CreateSwapchain(desc SwapchainDesc) (Swapchain, error)
	SwapchainImages(sc Swapchain) ([]Image, error)
	DestroySwapchain(sc Swapchain)
	// AcquireNextImage returns StatusOutOfDate with a nil error when the
	// surface changed underneath the swapchain.
	AcquireNextImage(sc Swapchain, signal Semaphore) (int, PresentStatus, error)
	QueuePresent(q Queue, sc Swapchain, image int, wait ...Semaphore) (PresentStatus, error)

	CreateBuffer(size int, usage BufferUsageFlags) (Buffer, error)
	BufferMemoryRequirements(b Buffer) MemoryRequirements
	BindBufferMemory(b Buffer, m Memory) error
	DestroyBuffer(b Buffer)

	CreateImage(desc ImageDesc) (Image, error)
	ImageMemoryRequirements(img Image) MemoryRequirements
	BindImageMemory(img Image, m Memory) error
	DestroyImage(img Image)
	CreateImageView(desc ImageViewDesc) (ImageView, error)
	DestroyImageView(v ImageView)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	DestroySampler(s Sampler)

	AllocateMemory(size int, memoryType int) (Memory, error)
	// MapMemory returns a window onto host-visible memory that stays valid
	// until UnmapMemory.
	MapMemory(m Memory, offset, size int) ([]byte, error)
	UnmapMemory(m Memory)
	FreeMemory(m Memory)

	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(m ShaderModule)
	CreatePipelineLayout(desc PipelineLayoutDesc) (PipelineLayout, error)
	DestroyPipelineLayout(l PipelineLayout)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	DestroyPipeline(p Pipeline)

	CreateDescriptorSetLayout(bindings []DescriptorBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(l DescriptorSetLayout)
	CreateDescriptorPool(desc DescriptorPoolDesc) (DescriptorPool, error)
	DestroyDescriptorPool(p DescriptorPool)
	AllocateDescriptorSets(pool DescriptorPool, layouts ...DescriptorSetLayout) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes ...DescriptorWrite)

	CreateCommandPool(family int) (CommandPool, error)
	DestroyCommandPool(p CommandPool)
	AllocateCommandBuffer(pool CommandPool) (CommandBuffer, error)
	FreeCommandBuffer(cb CommandBuffer)
	ResetCommandBuffer(cb CommandBuffer) error
	BeginCommandBuffer(cb CommandBuffer, oneTime bool) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdBeginRenderPass(cb CommandBuffer, begin RenderPassBegin)
	CmdEndRenderPass(cb CommandBuffer)
	CmdSetViewport(cb CommandBuffer, vp Viewport)
	CmdSetScissor(cb CommandBuffer, extent Extent2D)
	CmdBindPipeline(cb CommandBuffer, p Pipeline)
	CmdBindDescriptorSets(cb CommandBuffer, layout PipelineLayout, firstSet int, sets ...DescriptorSet)
	CmdPushConstants(cb CommandBuffer, layout PipelineLayout, stages ShaderStageFlags, offset int, data []byte)
	CmdBindVertexBuffer(cb CommandBuffer, b Buffer, offset int)
	CmdBindIndexBuffer(cb CommandBuffer, b Buffer, offset int)
	CmdDrawIndexed(cb CommandBuffer, indexCount, firstIndex, vertexOffset int)
	CmdCopyBuffer(cb CommandBuffer, src, dst Buffer, size int)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, dst Image, width, height int)
	CmdImageBarrier(cb CommandBuffer, barrier ImageBarrier)

	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitForFences blocks until every fence is signaled. There is no
	// timeout: a hung GPU is unrecoverable.
	WaitForFences(fences ...Fence) error
	ResetFences(fences ...Fence) error
	FenceSignaled(f Fence) (bool, error)
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)

	Destroy()
}
