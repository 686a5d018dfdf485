// Package ember is a small forward renderer on Vulkan. It owns the GPU
// resources behind meshes, textures, shaders and materials, and drives the
// per-frame acquire, record, submit and present cycle.
//
// A typical loop:
//
//	r, err := ember.New(loader, win, cfg, shader.GLSLC{})
//	...
//	for running {
//		ok, err := r.BeginFrame()
//		if err != nil {
//			return err
//		}
//		if !ok {
//			continue // swapchain rebuilt or window minimized
//		}
//		r.Submit(ember.Object{Transform: model, Mesh: mesh, Material: mat})
//		if err := r.EndFrame(); err != nil {
//			return err
//		}
//	}
//
// A Renderer is driven from a single goroutine.
package ember

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/emberkit/ember/gfx"
	"github.com/emberkit/ember/shader"
)

var (
	// ErrNoActiveFrame is returned by Submit and EndFrame outside a frame
	// started by a successful BeginFrame.
	ErrNoActiveFrame = errors.New("ember: no active frame")
	// ErrInvalidHandle is returned for zero, unknown or released handles.
	ErrInvalidHandle = errors.New("ember: invalid handle")
)

// SetLogger routes diagnostics from every ember package to l. Passing nil
// silences them again.
func SetLogger(l *slog.Logger) { gfx.SetLogger(l) }

// Handles index the Renderer's registries. The zero value of every handle
// is invalid.
type (
	MeshHandle     uint32
	TextureHandle  uint32
	ShaderHandle   uint32
	MaterialHandle uint32
)

// NoTexture asks RegisterMaterial for the built-in 1x1 white texture.
const NoTexture TextureHandle = 0

// VertexData is interleaved vertex data with 32-bit indices. Vertices holds
// Layout.Stride()/4 floats per vertex, so every attribute must be
// shader.Float32. A zero Layout means shader.PositionColorUV.
type VertexData struct {
	Layout   shader.VertexLayout
	Vertices []float32
	Indices  []uint32
}

// TextureData is 8-bit pixel data with 1 to 4 channels, rows top to bottom.
type TextureData struct {
	Pixels   []byte
	Width    int
	Height   int
	Channels int
}

// Object is one draw: a mesh rendered with a material at a transform. It
// owns no GPU memory.
type Object struct {
	Transform mgl32.Mat4
	Mesh      MeshHandle
	Material  MaterialHandle
}
