package hal

import "github.com/google/uuid"

// Handle is the opaque identity of a backend object. Zero is the null handle.
type Handle uint64

type (
	Surface             Handle
	Swapchain           Handle
	Image               Handle
	ImageView           Handle
	Sampler             Handle
	Framebuffer         Handle
	RenderPass          Handle
	ShaderModule        Handle
	DescriptorSetLayout Handle
	DescriptorPool      Handle
	DescriptorSet       Handle
	PipelineLayout      Handle
	Pipeline            Handle
	Buffer              Handle
	Memory              Handle
	CommandPool         Handle
	CommandBuffer       Handle
	Fence               Handle
	Semaphore           Handle
	Queue               Handle
)

// Format values match VkFormat.
type Format int32

const (
	FormatUndefined          Format = 0
	FormatR8G8B8A8UNorm      Format = 37
	FormatR8G8B8A8SRGB       Format = 43
	FormatB8G8R8A8UNorm      Format = 44
	FormatB8G8R8A8SRGB       Format = 50
	FormatR32UInt            Format = 98
	FormatR32SInt            Format = 99
	FormatR32SFloat          Format = 100
	FormatR32G32UInt         Format = 101
	FormatR32G32SInt         Format = 102
	FormatR32G32SFloat       Format = 103
	FormatR32G32B32UInt      Format = 104
	FormatR32G32B32SInt      Format = 105
	FormatR32G32B32SFloat    Format = 106
	FormatR32G32B32A32UInt   Format = 107
	FormatR32G32B32A32SInt   Format = 108
	FormatR32G32B32A32SFloat Format = 109
	FormatD32SFloat          Format = 126
	FormatD24UNormS8UInt     Format = 129
	FormatD32SFloatS8UInt    Format = 130
)

// HasStencil reports whether a depth format carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD24UNormS8UInt || f == FormatD32SFloatS8UInt
}

// ColorSpace values match VkColorSpaceKHR.
type ColorSpace int32

const ColorSpaceSRGBNonlinear ColorSpace = 0

// PresentMode values match VkPresentModeKHR.
type PresentMode int32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFIFO        PresentMode = 2
	PresentModeFIFORelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFIFO:
		return "fifo"
	case PresentModeFIFORelaxed:
		return "fifo_relaxed"
	}
	return "unknown"
}

// PresentStatus is the non-error outcome of an acquire or present.
type PresentStatus int

const (
	StatusOK PresentStatus = iota
	StatusSuboptimal
	StatusOutOfDate
)

func (s PresentStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSuboptimal:
		return "suboptimal"
	case StatusOutOfDate:
		return "out of date"
	}
	return "unknown"
}

// Extent2D is a size in pixels. A Width of -1 marks an undefined surface extent.
type Extent2D struct {
	Width  int
	Height int
}

// UndefinedExtent is reported by surfaces whose size is dictated by the swapchain.
var UndefinedExtent = Extent2D{Width: -1, Height: -1}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount  int
	MaxImageCount  int // 0 means unbounded
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

// QueueFlags values match VkQueueFlagBits.
type QueueFlags uint32

const (
	QueueGraphics QueueFlags = 0x1
	QueueCompute  QueueFlags = 0x2
	QueueTransfer QueueFlags = 0x4
)

type QueueFamily struct {
	Flags QueueFlags
	Count int
}

// MemoryPropertyFlags values match VkMemoryPropertyFlagBits.
type MemoryPropertyFlags uint32

const (
	MemoryDeviceLocal  MemoryPropertyFlags = 0x1
	MemoryHostVisible  MemoryPropertyFlags = 0x2
	MemoryHostCoherent MemoryPropertyFlags = 0x4
)

type MemoryType struct {
	Properties MemoryPropertyFlags
}

type MemoryRequirements struct {
	Size           int
	MemoryTypeBits uint32
}

// BufferUsageFlags values match VkBufferUsageFlagBits.
type BufferUsageFlags uint32

const (
	BufferUsageTransferSrc BufferUsageFlags = 0x1
	BufferUsageTransferDst BufferUsageFlags = 0x2
	BufferUsageUniform     BufferUsageFlags = 0x10
	BufferUsageIndex       BufferUsageFlags = 0x40
	BufferUsageVertex      BufferUsageFlags = 0x80
)

// ImageUsageFlags values match VkImageUsageFlagBits.
type ImageUsageFlags uint32

const (
	ImageUsageTransferSrc            ImageUsageFlags = 0x1
	ImageUsageTransferDst            ImageUsageFlags = 0x2
	ImageUsageSampled                ImageUsageFlags = 0x4
	ImageUsageColorAttachment        ImageUsageFlags = 0x10
	ImageUsageDepthStencilAttachment ImageUsageFlags = 0x20
)

// ImageAspectFlags values match VkImageAspectFlagBits.
type ImageAspectFlags uint32

const (
	AspectColor   ImageAspectFlags = 0x1
	AspectDepth   ImageAspectFlags = 0x2
	AspectStencil ImageAspectFlags = 0x4
)

// ImageLayout values match VkImageLayout.
type ImageLayout int32

const (
	LayoutUndefined              ImageLayout = 0
	LayoutColorAttachment        ImageLayout = 2
	LayoutDepthStencilAttachment ImageLayout = 3
	LayoutShaderReadOnly         ImageLayout = 5
	LayoutTransferSrc            ImageLayout = 6
	LayoutTransferDst            ImageLayout = 7
	LayoutPresentSrc             ImageLayout = 1000001002
)

func (l ImageLayout) String() string {
	switch l {
	case LayoutUndefined:
		return "UNDEFINED"
	case LayoutColorAttachment:
		return "COLOR_ATTACHMENT"
	case LayoutDepthStencilAttachment:
		return "DEPTH_STENCIL_ATTACHMENT"
	case LayoutShaderReadOnly:
		return "SHADER_READ_ONLY"
	case LayoutTransferSrc:
		return "TRANSFER_SRC"
	case LayoutTransferDst:
		return "TRANSFER_DST"
	case LayoutPresentSrc:
		return "PRESENT_SRC"
	}
	return "UNKNOWN"
}

// PipelineStageFlags values match VkPipelineStageFlagBits.
type PipelineStageFlags uint32

const (
	StageTopOfPipe             PipelineStageFlags = 0x1
	StageFragmentShader        PipelineStageFlags = 0x80
	StageEarlyFragmentTests    PipelineStageFlags = 0x100
	StageColorAttachmentOutput PipelineStageFlags = 0x400
	StageTransfer              PipelineStageFlags = 0x1000
)

// AccessFlags values match VkAccessFlagBits.
type AccessFlags uint32

const (
	AccessShaderRead                  AccessFlags = 0x20
	AccessColorAttachmentWrite        AccessFlags = 0x100
	AccessDepthStencilAttachmentWrite AccessFlags = 0x400
	AccessTransferRead                AccessFlags = 0x800
	AccessTransferWrite               AccessFlags = 0x1000
)

// FormatFeatureFlags values match VkFormatFeatureFlagBits.
type FormatFeatureFlags uint32

const (
	FormatFeatureSampledImage           FormatFeatureFlags = 0x1
	FormatFeatureDepthStencilAttachment FormatFeatureFlags = 0x200
)

// ShaderStageFlags values match VkShaderStageFlagBits.
type ShaderStageFlags uint32

const (
	ShaderStageVertex   ShaderStageFlags = 0x1
	ShaderStageFragment ShaderStageFlags = 0x10
)

// DescriptorType values match VkDescriptorType.
type DescriptorType int32

const (
	DescriptorCombinedImageSampler DescriptorType = 1
	DescriptorUniformBuffer        DescriptorType = 6
)

func (t DescriptorType) String() string {
	switch t {
	case DescriptorCombinedImageSampler:
		return "combined image sampler"
	case DescriptorUniformBuffer:
		return "uniform buffer"
	}
	return "unknown"
}

// CullMode values match VkCullModeFlagBits.
type CullMode uint32

const (
	CullNone  CullMode = 0
	CullFront CullMode = 0x1
	CullBack  CullMode = 0x2
)

// FrontFace values match VkFrontFace.
type FrontFace int32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

// DebugSeverity orders validation messages.
type DebugSeverity int

const (
	SeverityVerbose DebugSeverity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s DebugSeverity) String() string {
	switch s {
	case SeverityVerbose:
		return "verbose"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// DebugCallback receives validation layer messages.
type DebugCallback func(severity DebugSeverity, kind string, message string)

type InstanceDesc struct {
	AppName    string
	Layers     []string
	Extensions []string

	// PortabilityEnumeration also lists non-conformant (MoltenVK) adapters.
	PortabilityEnumeration bool

	// Debug installs a messenger when non-nil. The debug utils extension
	// must be part of Extensions.
	Debug DebugCallback
}

type AdapterProperties struct {
	Name                 string
	VendorID             uint32
	DeviceID             uint32
	PipelineCacheUUID    uuid.UUID
	MaxSamplerAnisotropy float32
}

type Features struct {
	SamplerAnisotropy bool
}

type DeviceDesc struct {
	QueueFamilies []int
	Extensions    []string
	Features      Features
}

type SwapchainDesc struct {
	Surface       Surface
	MinImageCount int
	Format        SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode

	// QueueFamilies lists the families sharing the images. More than one
	// distinct family selects concurrent sharing.
	QueueFamilies []int
}

type ImageDesc struct {
	Width  int
	Height int
	Format Format
	Usage  ImageUsageFlags
}

type ImageViewDesc struct {
	Image  Image
	Format Format
	Aspect ImageAspectFlags
}

type SamplerDesc struct {
	// MaxAnisotropy enables anisotropic filtering when greater than one.
	MaxAnisotropy float32
}

type RenderPassDesc struct {
	ColorFormat Format
	DepthFormat Format
}

type FramebufferDesc struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      Extent2D
}

type DescriptorBinding struct {
	Binding int
	Type    DescriptorType
	Count   int
	Stages  ShaderStageFlags
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count int
}

type DescriptorPoolDesc struct {
	MaxSets int
	Sizes   []DescriptorPoolSize
}

// DescriptorWrite updates one binding of a set. Exactly one of Buffer or
// ImageView/Sampler is used depending on the binding type.
type DescriptorWrite struct {
	Set     DescriptorSet
	Binding int
	Type    DescriptorType

	Buffer Buffer
	Offset int
	Range  int

	ImageView ImageView
	Sampler   Sampler
}

type PushConstantRange struct {
	Stages ShaderStageFlags
	Offset int
	Size   int
}

type PipelineLayoutDesc struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type VertexAttribute struct {
	Location int
	Format   Format
	Offset   int
}

type GraphicsPipelineDesc struct {
	Vertex   ShaderModule
	Fragment ShaderModule

	VertexStride int
	Attributes   []VertexAttribute

	CullMode  CullMode
	FrontFace FrontFace
	DepthTest bool
	Blend     bool

	Layout     PipelineLayout
	RenderPass RenderPass
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStageFlags
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type RenderPassBegin struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      Extent2D
	ClearColor  [4]float32
	ClearDepth  float32
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

type ImageBarrier struct {
	Image     Image
	Aspect    ImageAspectFlags
	OldLayout ImageLayout
	NewLayout ImageLayout
	SrcStage  PipelineStageFlags
	DstStage  PipelineStageFlags
	SrcAccess AccessFlags
	DstAccess AccessFlags
}

// Well-known extension and layer names.
const (
	ExtensionSwapchain              = "VK_KHR_swapchain"
	ExtensionSurface                = "VK_KHR_surface"
	ExtensionDebugUtils             = "VK_EXT_debug_utils"
	ExtensionPortabilityEnumeration = "VK_KHR_portability_enumeration"
	ExtensionPortabilitySubset      = "VK_KHR_portability_subset"

	LayerValidation = "VK_LAYER_KHRONOS_validation"
)
