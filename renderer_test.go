package ember_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberkit/ember"
	"github.com/emberkit/ember/hal"
	"github.com/emberkit/ember/internal/fakehal"
	"github.com/emberkit/ember/shader"
)

// countingCompiler returns canned SPIR-V and counts stage compiles.
type countingCompiler struct {
	calls atomic.Int32
}

func (c *countingCompiler) Compile(_ context.Context, stage shader.Stage, _, _ string) ([]uint32, error) {
	c.calls.Add(1)
	return []uint32{0x07230203, 0x00010000, uint32(stage), 1, 0}, nil
}

type harness struct {
	r        *ember.Renderer
	loader   *fakehal.Loader
	compiler *countingCompiler
	fake     *fakehal.Device
}

func newHarness(t *testing.T, edit func(*ember.Config)) *harness {
	t.Helper()
	cfg := ember.DefaultConfig()
	cfg.Validation = true
	cfg.Debug = true
	if edit != nil {
		edit(&cfg)
	}
	loader := fakehal.NewLoader()
	win := &fakehal.Window{Width: 640, Height: 480, Extensions: []string{hal.ExtensionSurface}}
	compiler := &countingCompiler{}

	r, err := ember.New(loader, win, cfg, compiler)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return &harness{r: r, loader: loader, compiler: compiler, fake: loader.LastInstance().Device()}
}

func quad() ember.VertexData {
	return ember.VertexData{
		Vertices: []float32{
			-0.5, -0.5, 0, 1, 0, 0, 1, 0,
			0.5, -0.5, 0, 0, 1, 0, 0, 0,
			0.5, 0.5, 0, 0, 0, 1, 0, 1,
			-0.5, 0.5, 0, 1, 1, 1, 1, 1,
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}

func flat() shader.Program {
	return shader.Program{
		Name:     "flat",
		Vertex:   "#version 450\nvoid main() {}",
		Fragment: "#version 450\nvoid main() {}",
		Layout:   shader.PositionColorUV,
	}
}

func (h *harness) material(t *testing.T) (ember.MeshHandle, ember.MaterialHandle) {
	t.Helper()
	mesh, err := h.r.RegisterMesh(quad())
	require.NoError(t, err)
	sh, err := h.r.RegisterShader(flat())
	require.NoError(t, err)
	mat, err := h.r.RegisterMaterial(sh, ember.NoTexture)
	require.NoError(t, err)
	return mesh, mat
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := ember.DefaultConfig()
	cfg.MaxFramesInFlight = 0
	_, err := ember.New(fakehal.NewLoader(), &fakehal.Window{Width: 1, Height: 1}, cfg, &countingCompiler{})
	assert.Error(t, err)
}

func TestNewCleansUpWhenNoDeviceIsSuitable(t *testing.T) {
	loader := fakehal.NewLoader()
	loader.Adapters[0].Families = nil
	win := &fakehal.Window{Width: 640, Height: 480, Extensions: []string{hal.ExtensionSurface}}

	_, err := ember.New(loader, win, ember.DefaultConfig(), &countingCompiler{})
	require.Error(t, err)
	inst := loader.LastInstance()
	assert.True(t, inst.Destroyed())
	assert.Zero(t, inst.LiveSurfaces())
}

func TestRegisterShaderCompilesOnce(t *testing.T) {
	h := newHarness(t, nil)
	a, err := h.r.RegisterShader(flat())
	require.NoError(t, err)

	renamed := flat()
	renamed.Name = "flat again"
	b, err := h.r.RegisterShader(renamed)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.EqualValues(t, 2, h.compiler.calls.Load(), "one compile per stage")
	assert.Equal(t, 2, h.fake.Live()[fakehal.KindShaderModule])
}

func TestMaterialsAreDeduplicatedAndSharePipelines(t *testing.T) {
	h := newHarness(t, nil)
	sh, err := h.r.RegisterShader(flat())
	require.NoError(t, err)
	tex, err := h.r.RegisterTexture(ember.TextureData{Pixels: make([]byte, 2*2*3), Width: 2, Height: 2, Channels: 3})
	require.NoError(t, err)

	plain, err := h.r.RegisterMaterial(sh, ember.NoTexture)
	require.NoError(t, err)
	again, err := h.r.RegisterMaterial(sh, h.r.DefaultTexture())
	require.NoError(t, err)
	assert.Equal(t, plain, again)

	textured, err := h.r.RegisterMaterial(sh, tex)
	require.NoError(t, err)
	assert.NotEqual(t, plain, textured)

	p1, err := h.r.Pipeline(plain)
	require.NoError(t, err)
	p2, err := h.r.Pipeline(textured)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, h.fake.Stats().PipelinesCreated)
	assert.Equal(t, 1, h.r.Stats().Pipelines)
	assert.Equal(t, 2, h.r.Stats().Materials)
}

func TestReleaseMaterial(t *testing.T) {
	h := newHarness(t, nil)
	_, mat := h.material(t)
	sh, err := h.r.RegisterShader(flat())
	require.NoError(t, err)
	_, err = h.r.RegisterMaterial(sh, ember.NoTexture)
	require.NoError(t, err)

	require.NoError(t, h.r.ReleaseMaterial(mat))
	_, err = h.r.Pipeline(mat)
	require.NoError(t, err, "one reference left")

	require.NoError(t, h.r.ReleaseMaterial(mat))
	_, err = h.r.Pipeline(mat)
	assert.True(t, errors.Is(err, ember.ErrInvalidHandle))
	assert.Zero(t, h.fake.Live()[fakehal.KindPipeline])
	assert.Zero(t, h.r.Stats().Pipelines)

	assert.True(t, errors.Is(h.r.ReleaseMaterial(mat), ember.ErrInvalidHandle))
}

func TestRegisterMaterialInvalidHandles(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.r.RegisterMaterial(7, ember.NoTexture)
	assert.True(t, errors.Is(err, ember.ErrInvalidHandle))

	sh, err := h.r.RegisterShader(flat())
	require.NoError(t, err)
	_, err = h.r.RegisterMaterial(sh, 99)
	assert.True(t, errors.Is(err, ember.ErrInvalidHandle))
}

func TestMaterialLimit(t *testing.T) {
	h := newHarness(t, func(c *ember.Config) { c.MaxMaterials = 1 })
	sh, err := h.r.RegisterShader(flat())
	require.NoError(t, err)
	tex, err := h.r.RegisterTexture(ember.TextureData{Pixels: []byte{1, 2, 3, 4}, Width: 1, Height: 1, Channels: 4})
	require.NoError(t, err)

	_, err = h.r.RegisterMaterial(sh, ember.NoTexture)
	require.NoError(t, err)
	_, err = h.r.RegisterMaterial(sh, tex)
	require.Error(t, err)
	assert.Equal(t, 1, h.r.Stats().Pipelines, "failed material releases its pipeline reference")
}

func TestRegisterMeshValidates(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name string
		data ember.VertexData
	}{
		{"no vertices", ember.VertexData{Indices: []uint32{0}}},
		{"partial vertex", ember.VertexData{Vertices: make([]float32, 9), Indices: []uint32{0}}},
		{"no indices", ember.VertexData{Vertices: make([]float32, 8)}},
		{"index out of range", ember.VertexData{Vertices: make([]float32, 8), Indices: []uint32{0, 1}}},
		{"integer attribute", ember.VertexData{
			Layout: shader.VertexLayout{Attributes: []shader.Attribute{
				{Name: "position", Location: 0, Type: shader.Float32, Components: 3},
				{Name: "boneIndex", Location: 1, Type: shader.Uint32, Components: 1},
			}},
			Vertices: make([]float32, 8),
			Indices:  []uint32{0, 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.r.RegisterMesh(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestSubmitOutsideFrame(t *testing.T) {
	h := newHarness(t, nil)
	mesh, mat := h.material(t)
	err := h.r.Submit(ember.Object{Transform: mgl32.Ident4(), Mesh: mesh, Material: mat})
	assert.True(t, errors.Is(err, ember.ErrNoActiveFrame))
	assert.True(t, errors.Is(h.r.EndFrame(), ember.ErrNoActiveFrame))
}

func TestSubmitInvalidHandles(t *testing.T) {
	h := newHarness(t, nil)
	mesh, mat := h.material(t)
	ok, err := h.r.BeginFrame()
	require.NoError(t, err)
	require.True(t, ok)

	err = h.r.Submit(ember.Object{Mesh: 0, Material: mat})
	assert.True(t, errors.Is(err, ember.ErrInvalidHandle))
	err = h.r.Submit(ember.Object{Mesh: mesh, Material: 42})
	assert.True(t, errors.Is(err, ember.ErrInvalidHandle))
	require.NoError(t, h.r.EndFrame())
}

func TestSubmitRejectsLayoutMismatch(t *testing.T) {
	h := newHarness(t, nil)
	_, mat := h.material(t)
	positions, err := h.r.RegisterMesh(ember.VertexData{
		Layout:   shader.VertexLayout{Attributes: []shader.Attribute{{Name: "position", Location: 0, Components: 3}}},
		Vertices: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0},
		Indices:  []uint32{0, 1, 2},
	})
	require.NoError(t, err)

	ok, err := h.r.BeginFrame()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Error(t, h.r.Submit(ember.Object{Transform: mgl32.Ident4(), Mesh: positions, Material: mat}))
	require.NoError(t, h.r.EndFrame())
}

func TestFramesDrawSubmittedObjects(t *testing.T) {
	h := newHarness(t, nil)
	mesh, mat := h.material(t)

	for i := 0; i < 3; i++ {
		ok, err := h.r.BeginFrame()
		require.NoError(t, err)
		require.True(t, ok)
		for j := 0; j < 4; j++ {
			model := mgl32.Translate3D(float32(j), 0, 0)
			require.NoError(t, h.r.Submit(ember.Object{Transform: model, Mesh: mesh, Material: mat}))
		}
		require.NoError(t, h.r.EndFrame())
	}

	stats := h.r.Stats()
	assert.Equal(t, 3, stats.FramesPresented)
	assert.Equal(t, 4, stats.Draws)
	assert.Positive(t, stats.FrameTime)
	assert.Equal(t, 12, h.fake.Stats().Draws)
	assert.Equal(t, 3, h.fake.Stats().Presents)
}

func TestEmptyFrameClearsAndPresents(t *testing.T) {
	h := newHarness(t, nil)
	ok, err := h.r.BeginFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.r.EndFrame())
	assert.Equal(t, 1, h.fake.Stats().RenderPasses)
	assert.Zero(t, h.fake.Stats().Draws)
}

func TestResizeRebuildsSwapchain(t *testing.T) {
	h := newHarness(t, nil)
	mesh, mat := h.material(t)

	ok, err := h.r.BeginFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.r.EndFrame())

	h.loader.Adapters[0].Resize(1024, 768)
	h.r.Resize(1024, 768)
	ok, err = h.r.BeginFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.r.Submit(ember.Object{Transform: mgl32.Ident4(), Mesh: mesh, Material: mat}))
	require.NoError(t, h.r.EndFrame())

	assert.Equal(t, hal.Extent2D{Width: 1024, Height: 768}, h.r.Device().Swapchain().Extent())
	assert.Equal(t, 1, h.r.Stats().Recreations)
	assert.Equal(t, 1, h.fake.Stats().PipelinesCreated)
}

func TestCloseReleasesEverything(t *testing.T) {
	h := newHarness(t, nil)
	mesh, mat := h.material(t)
	ok, err := h.r.BeginFrame()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.r.Submit(ember.Object{Transform: mgl32.Ident4(), Mesh: mesh, Material: mat}))
	require.NoError(t, h.r.EndFrame())

	h.r.Close()
	assert.Empty(t, h.fake.Live(), "live kinds: %v", h.fake.LiveKinds())
	assert.True(t, h.fake.Destroyed())
	assert.True(t, h.loader.LastInstance().Destroyed())
	h.r.Close()

	_, err = h.r.BeginFrame()
	assert.Error(t, err)
}

func TestValidationIssuesAreCounted(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.loader.LastInstance().EmitDebug(hal.SeverityWarning, "layout mismatch"))
	warnings, errs := h.r.Instance().ValidationIssues()
	assert.EqualValues(t, 1, warnings)
	assert.Zero(t, errs)
}
