// Package gfx manages GPU resources and the frame lifecycle on top of a hal
// backend.
//
// Objects are created in a fixed order and destroyed in reverse:
//
//	Instance -> Surface -> PhysicalDeviceInfo -> LogicalDevice
//	  -> CommandPool, DescriptorSetLayouts, PipelineLayout, RenderPass
//	  -> Swapchain (views, depth, framebuffers, per-image descriptor sets)
//	  -> material DescriptorPool, PipelineCache, FrameLoop
//
// A frame runs acquire, wait, record, submit and present through
// FrameLoop.Begin and FrameLoop.End. MaxFramesInFlight frame contexts are
// reused round-robin; each has its own fence, semaphores, uniform buffer and
// command buffer. Because the number of frame contexts differs from the
// number of swapchain images, the loop also tracks which fence last used
// each image and waits on it before reusing the image.
//
// Resources are bound in tiers: set 0 per frame, set 1 per pass, set 2 per
// material, and a 64-byte push constant block per object.
//
// Nothing in this package is safe for concurrent use. One host goroutine
// drives the device.
package gfx
