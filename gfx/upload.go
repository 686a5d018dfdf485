package gfx

import (
	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

// UploadBuffer creates a buffer holding data. Device-local usages go through
// a staging buffer and a one-time copy that is waited on before returning;
// host-visible usages are written directly.
func (d *LogicalDevice) UploadBuffer(usage BufferUsage, data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.Newf("upload %s buffer: no data", usage)
	}
	if usage.HostVisible() {
		b, err := d.CreateBuffer(usage, len(data))
		if err != nil {
			return nil, err
		}
		if err := b.Write(data); err != nil {
			b.Destroy()
			return nil, err
		}
		return b, nil
	}

	staging, err := d.CreateBuffer(BufferStaging, len(data))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()
	if err := staging.Write(data); err != nil {
		return nil, err
	}

	dst, err := d.CreateBuffer(usage, len(data))
	if err != nil {
		return nil, err
	}
	err = d.submitOnce("copy staging buffer", func(cb hal.CommandBuffer) {
		d.hal.CmdCopyBuffer(cb, staging.handle, dst.handle, len(data))
	})
	if err != nil {
		dst.Destroy()
		return nil, err
	}
	return dst, nil
}

// ReadBuffer returns the contents of any buffer, copying device-local
// buffers back through a staging buffer.
func (d *LogicalDevice) ReadBuffer(b *Buffer) ([]byte, error) {
	if b.usage.HostVisible() {
		return b.Read()
	}
	staging, err := d.CreateBuffer(BufferStaging, b.size)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	err = d.submitOnce("read back buffer", func(cb hal.CommandBuffer) {
		d.hal.CmdCopyBuffer(cb, b.handle, staging.handle, b.size)
	})
	if err != nil {
		return nil, err
	}
	return staging.Read()
}

// ExpandRGBA converts 1, 2, 3 or 4 channel 8-bit pixels to RGBA8. One
// channel is grey, two is grey plus alpha.
func ExpandRGBA(pixels []byte, w, h, channels int) ([]byte, error) {
	if w <= 0 || h <= 0 {
		return nil, errors.Newf("invalid texture size %dx%d", w, h)
	}
	if channels < 1 || channels > 4 {
		return nil, errors.Newf("unsupported channel count %d", channels)
	}
	n := w * h
	if len(pixels) != n*channels {
		return nil, errors.Newf("expected %d bytes for %dx%dx%d, got %d", n*channels, w, h, channels, len(pixels))
	}
	if channels == 4 {
		return pixels, nil
	}
	out := make([]byte, n*4)
	for i := 0; i < n; i++ {
		src := pixels[i*channels : (i+1)*channels]
		dst := out[i*4 : i*4+4]
		switch channels {
		case 1:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], 0xff
		case 2:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], src[1]
		case 3:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[1], src[2], 0xff
		}
	}
	return out, nil
}

// UploadTexture creates a sampled RGBA8 texture. The image moves
// UNDEFINED -> TRANSFER_DST, receives the staging copy, then moves
// TRANSFER_DST -> SHADER_READ_ONLY, all in one waited submission.
func (d *LogicalDevice) UploadTexture(pixels []byte, w, h, channels int) (*Texture, error) {
	rgba, err := ExpandRGBA(pixels, w, h, channels)
	if err != nil {
		return nil, errors.Wrap(err, "upload texture")
	}

	staging, err := d.CreateBuffer(BufferStaging, len(rgba))
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()
	if err := staging.Write(rgba); err != nil {
		return nil, err
	}

	img, err := d.createImage(w, h, hal.FormatR8G8B8A8SRGB,
		hal.ImageUsageTransferDst|hal.ImageUsageSampled, hal.AspectColor)
	if err != nil {
		return nil, err
	}
	tex := &Texture{img: img}

	err = d.submitOnce("upload texture", func(cb hal.CommandBuffer) {
		d.hal.CmdImageBarrier(cb, hal.ImageBarrier{
			Image:     img.image,
			Aspect:    hal.AspectColor,
			OldLayout: hal.LayoutUndefined,
			NewLayout: hal.LayoutTransferDst,
			SrcStage:  hal.StageTopOfPipe,
			DstStage:  hal.StageTransfer,
			DstAccess: hal.AccessTransferWrite,
		})
		d.hal.CmdCopyBufferToImage(cb, staging.handle, img.image, w, h)
		d.hal.CmdImageBarrier(cb, hal.ImageBarrier{
			Image:     img.image,
			Aspect:    hal.AspectColor,
			OldLayout: hal.LayoutTransferDst,
			NewLayout: hal.LayoutShaderReadOnly,
			SrcStage:  hal.StageTransfer,
			DstStage:  hal.StageFragmentShader,
			SrcAccess: hal.AccessTransferWrite,
			DstAccess: hal.AccessShaderRead,
		})
	})
	if err != nil {
		tex.Destroy()
		return nil, err
	}

	anisotropy := float32(1)
	if d.pd.Features.SamplerAnisotropy {
		anisotropy = d.pd.MaxSamplerAnisotropy
	}
	if tex.sampler, err = d.hal.CreateSampler(hal.SamplerDesc{MaxAnisotropy: anisotropy}); err != nil {
		tex.Destroy()
		return nil, classify(err, "create sampler")
	}
	Logger().Debug("texture uploaded", "width", w, "height", h, "channels", channels)
	return tex, nil
}
