package assets_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberkit/ember/assets"
	"github.com/emberkit/ember/shader"
)

const quadOBJ = `mtllib quad.mtl
o quad
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
usemtl red
f 1/1 2/2 3/3 4/4
`

const quadMTL = `newmtl red
Kd 1 0 0
`

func TestDecodeOBJTriangulatesAndShares(t *testing.T) {
	data, err := assets.DecodeOBJ(strings.NewReader(quadOBJ), strings.NewReader(quadMTL))
	require.NoError(t, err)

	assert.Equal(t, shader.PositionColorUV.Key(), data.Layout.Key())
	assert.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, data.Indices)
	require.Len(t, data.Vertices, 4*8)

	// third corner: position (1,1,0), red, uv (1, 1-1)
	assert.Equal(t, []float32{1, 1, 0, 1, 0, 0, 1, 0}, data.Vertices[16:24])
	// first corner has v flipped to the top of the image
	assert.Equal(t, []float32{0, 1}, data.Vertices[6:8])
}

func TestDecodeOBJSplitsSeams(t *testing.T) {
	src := `o seam
v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
vt 0.5 0.5
f 1/1 2/2 3/3
f 1/4 3/3 2/2
`
	data, err := assets.DecodeOBJ(strings.NewReader(src), nil)
	require.NoError(t, err)
	assert.Len(t, data.Indices, 6)
	assert.Len(t, data.Vertices, 4*8, "position 1 appears with two texture coordinates")
}

func TestDecodeOBJWithoutFaces(t *testing.T) {
	_, err := assets.DecodeOBJ(strings.NewReader("o empty\nv 0 0 0\n"), nil)
	assert.Error(t, err)
}

func TestLoadOBJFindsMaterialLibrary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.obj"), []byte(quadOBJ), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.mtl"), []byte(quadMTL), 0o600))

	data, err := assets.LoadOBJ(filepath.Join(dir, "quad.obj"))
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, data.Vertices[3:6])

	_, err = assets.LoadOBJ(filepath.Join(dir, "missing.obj"))
	assert.Error(t, err)
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecodeTextureConvertsToRGBA(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 2, 1))
	gray.SetGray(0, 0, color.Gray{Y: 0x40})
	gray.SetGray(1, 0, color.Gray{Y: 0xc0})

	tex, err := assets.DecodeTexture(bytes.NewReader(encodePNG(t, gray)), assets.DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, tex.Width)
	assert.Equal(t, 1, tex.Height)
	assert.Equal(t, 4, tex.Channels)
	assert.Equal(t, []byte{0x40, 0x40, 0x40, 0xff, 0xc0, 0xc0, 0xc0, 0xff}, tex.Pixels)
}

func TestDecodeTextureScalesDown(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 16))
	tex, err := assets.DecodeTexture(bytes.NewReader(encodePNG(t, img)), assets.DecodeOptions{MaxSize: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, tex.Width)
	assert.Equal(t, 8, tex.Height)
	assert.Len(t, tex.Pixels, 32*8*4)
}

func TestDecodeTextureRejectsGarbage(t *testing.T) {
	_, err := assets.DecodeTexture(strings.NewReader("not an image"), assets.DecodeOptions{})
	assert.Error(t, err)

	_, err = assets.LoadTexture(filepath.Join(t.TempDir(), "missing.png"), assets.DecodeOptions{})
	assert.Error(t, err)
}
