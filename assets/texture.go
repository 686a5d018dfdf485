package assets

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/draw"

	"github.com/emberkit/ember"
)

// DecodeOptions adjusts decoded textures.
type DecodeOptions struct {
	// MaxSize scales images whose larger side exceeds it down, keeping the
	// aspect ratio. Zero keeps the original size.
	MaxSize int
}

// DecodeTexture decodes a PNG or JPEG into 4-channel texture data.
func DecodeTexture(r io.Reader, opts DecodeOptions) (ember.TextureData, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return ember.TextureData{}, errors.Wrap(err, "decode image")
	}
	b := src.Bounds()
	if b.Empty() {
		return ember.TextureData{}, errors.Newf("%s image is empty", format)
	}

	w, h := b.Dx(), b.Dy()
	if opts.MaxSize > 0 && (w > opts.MaxSize || h > opts.MaxSize) {
		if w >= h {
			w, h = opts.MaxSize, max(1, h*opts.MaxSize/w)
		} else {
			w, h = max(1, w*opts.MaxSize/h), opts.MaxSize
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	}
	return ember.TextureData{Pixels: dst.Pix, Width: w, Height: h, Channels: 4}, nil
}

// LoadTexture decodes the image file at path.
func LoadTexture(path string, opts DecodeOptions) (ember.TextureData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ember.TextureData{}, errors.Wrap(err, "read texture")
	}
	tex, err := DecodeTexture(bytes.NewReader(data), opts)
	if err != nil {
		return ember.TextureData{}, errors.Wrapf(err, "texture %s", path)
	}
	return tex, nil
}
