package gfx

import (
	"github.com/emberkit/ember/hal"
)

// imageAttachment is an image bound to its own device-local memory with a
// single view, used for textures and the depth attachment.
type imageAttachment struct {
	dev    *LogicalDevice
	image  hal.Image
	mem    hal.Memory
	view   hal.ImageView
	format hal.Format
	width  int
	height int
}

func (d *LogicalDevice) createImage(w, h int, format hal.Format, usage hal.ImageUsageFlags, aspect hal.ImageAspectFlags) (*imageAttachment, error) {
	img, err := d.hal.CreateImage(hal.ImageDesc{Width: w, Height: h, Format: format, Usage: usage})
	if err != nil {
		return nil, classify(err, "create image")
	}
	a := &imageAttachment{dev: d, image: img, format: format, width: w, height: h}

	req := d.hal.ImageMemoryRequirements(img)
	typ, err := d.pd.FindMemoryType(req.MemoryTypeBits, hal.MemoryDeviceLocal)
	if err != nil {
		a.destroy()
		return nil, err
	}
	if a.mem, err = d.hal.AllocateMemory(req.Size, typ); err != nil {
		a.destroy()
		return nil, classify(err, "allocate image memory")
	}
	if err := d.hal.BindImageMemory(img, a.mem); err != nil {
		a.destroy()
		return nil, classify(err, "bind image memory")
	}
	if a.view, err = d.hal.CreateImageView(hal.ImageViewDesc{Image: img, Format: format, Aspect: aspect}); err != nil {
		a.destroy()
		return nil, classify(err, "create image view")
	}
	return a, nil
}

func (a *imageAttachment) destroy() {
	if a == nil {
		return
	}
	if a.view != 0 {
		a.dev.hal.DestroyImageView(a.view)
	}
	if a.image != 0 {
		a.dev.hal.DestroyImage(a.image)
	}
	if a.mem != 0 {
		a.dev.hal.FreeMemory(a.mem)
	}
	a.view, a.image, a.mem = 0, 0, 0
}

// Texture is a sampled RGBA8 image with its view and sampler.
type Texture struct {
	img     *imageAttachment
	sampler hal.Sampler
}

func (t *Texture) Image() hal.Image          { return t.img.image }
func (t *Texture) View() hal.ImageView       { return t.img.view }
func (t *Texture) Sampler() hal.Sampler      { return t.sampler }
func (t *Texture) Size() (width, height int) { return t.img.width, t.img.height }

func (t *Texture) Destroy() {
	if t == nil || t.img == nil {
		return
	}
	if t.sampler != 0 {
		t.img.dev.hal.DestroySampler(t.sampler)
		t.sampler = 0
	}
	t.img.destroy()
}
