package ember

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
	"github.com/loov/hrtime"

	"github.com/emberkit/ember/gfx"
	"github.com/emberkit/ember/hal"
	"github.com/emberkit/ember/shader"
)

// Stats reports frame loop outcomes and the cost of the last frame.
type Stats struct {
	FramesPresented int
	FramesAbandoned int
	Recreations     int
	// Draws is the number of objects drawn by the last frame.
	Draws int
	// FrameTime is the CPU time between the last BeginFrame and EndFrame.
	FrameTime time.Duration
	Pipelines int
	Materials int
}

type camera struct {
	eye, center, up mgl32.Vec3
	fovy            float32
	near, far       float32
}

// Renderer owns the device and every registered resource.
type Renderer struct {
	cfg      Config
	inst     *gfx.Instance
	dev      *gfx.LogicalDevice
	compiler shader.Compiler

	meshes    table[mesh]
	textures  table[gfx.Texture]
	shaders   table[shaderEntry]
	materials table[material]

	shaderIDs    map[uuid.UUID]ShaderHandle
	materialKeys map[materialKey]MaterialHandle
	white        TextureHandle

	cam        camera
	start      time.Duration
	frameStart time.Duration
	frame      *gfx.Frame
	queue      []Object

	lastDraws int
	frameTime time.Duration
	closed    bool
}

// New creates the instance, picks a physical device, creates the logical
// device with its swapchain and frame contexts, and registers the built-in
// white texture. compiler turns shader programs into SPIR-V.
func New(loader hal.Loader, win hal.Window, cfg Config, compiler shader.Compiler) (_ *Renderer, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	mode, _ := ParsePresentMode(cfg.PresentMode)

	r := &Renderer{
		cfg:          cfg,
		compiler:     compiler,
		shaderIDs:    map[uuid.UUID]ShaderHandle{},
		materialKeys: map[materialKey]MaterialHandle{},
		cam: camera{
			eye:    mgl32.Vec3{2, 2, 2},
			center: mgl32.Vec3{0, 0, 0},
			up:     mgl32.Vec3{0, 0, 1},
			fovy:   45,
			near:   0.1,
			far:    10,
		},
		start: hrtime.Now(),
	}
	defer func() {
		if err != nil {
			r.Close()
		}
	}()

	r.inst, err = gfx.CreateInstance(loader, win, gfx.InstanceConfig{
		AppName:    cfg.AppName,
		Validation: cfg.Validation,
		Layers:     cfg.ValidationLayers,
		Extensions: cfg.InstanceExtensions,
	})
	if err != nil {
		return nil, err
	}
	pd, err := r.inst.SelectPhysicalDevice(cfg.DeviceExtensions)
	if err != nil {
		return nil, err
	}
	r.dev, err = gfx.CreateLogicalDevice(r.inst, pd, gfx.DeviceConfig{
		Extensions:        cfg.DeviceExtensions,
		MaxFramesInFlight: cfg.MaxFramesInFlight,
		PresentMode:       &mode,
		ClearColor:        cfg.ClearColor,
		MaxMaterials:      cfg.MaxMaterials,
		Debug:             cfg.Debug,
	})
	if err != nil {
		return nil, err
	}
	if r.white, err = r.RegisterTexture(TextureData{Pixels: []byte{0xff, 0xff, 0xff, 0xff}, Width: 1, Height: 1, Channels: 4}); err != nil {
		return nil, errors.Wrap(err, "default texture")
	}
	return r, nil
}

// Device exposes the underlying device for advanced use.
func (r *Renderer) Device() *gfx.LogicalDevice { return r.dev }

// Instance exposes the graphics instance, for example to read the
// validation issue counters.
func (r *Renderer) Instance() *gfx.Instance { return r.inst }

func (r *Renderer) Config() Config { return r.cfg }

// RegisterMesh uploads vertex and index data to device-local buffers. The
// caller may drop data afterwards.
func (r *Renderer) RegisterMesh(data VertexData) (MeshHandle, error) {
	if err := data.validate(); err != nil {
		return 0, errors.Wrap(err, "register mesh")
	}
	vb, err := encode(data.Vertices)
	if err != nil {
		return 0, err
	}
	ib, err := encode(data.Indices)
	if err != nil {
		return 0, err
	}

	m := &mesh{indexCount: len(data.Indices), layoutKey: data.layout().Key()}
	if m.vertices, err = r.dev.UploadBuffer(gfx.BufferVertex, vb); err != nil {
		return 0, errors.Wrap(err, "register mesh")
	}
	if m.indices, err = r.dev.UploadBuffer(gfx.BufferIndex, ib); err != nil {
		m.destroy()
		return 0, errors.Wrap(err, "register mesh")
	}
	return MeshHandle(r.meshes.add(m)), nil
}

// RegisterTexture uploads pixels into a sampled texture.
func (r *Renderer) RegisterTexture(data TextureData) (TextureHandle, error) {
	tex, err := r.dev.UploadTexture(data.Pixels, data.Width, data.Height, data.Channels)
	if err != nil {
		return 0, errors.Wrap(err, "register texture")
	}
	return TextureHandle(r.textures.add(tex)), nil
}

// DefaultTexture is the 1x1 white texture NoTexture resolves to.
func (r *Renderer) DefaultTexture() TextureHandle { return r.white }

// RegisterShader compiles both stages of p concurrently and creates the
// shader modules. A program identical to one already registered returns
// the existing handle without compiling.
func (r *Renderer) RegisterShader(p shader.Program) (ShaderHandle, error) {
	id := p.ID()
	if h, ok := r.shaderIDs[id]; ok {
		return h, nil
	}
	compiled, err := shader.CompileProgram(context.Background(), r.compiler, p)
	if err != nil {
		return 0, err
	}
	stages, err := r.dev.CreateShaderStages(compiled, p)
	if err != nil {
		return 0, errors.Wrapf(err, "register shader %q", p.Name)
	}
	h := ShaderHandle(r.shaders.add(&shaderEntry{id: id, name: p.Name, stages: stages, layout: p.Layout.Key()}))
	r.shaderIDs[id] = h
	gfx.Logger().Debug("shader registered", "name", p.Name, "id", id)
	return h, nil
}

// RegisterMaterial pairs a shader with a texture. Registering the same pair
// again returns the same handle and adds a reference; materials built from
// the same shader share one pipeline.
func (r *Renderer) RegisterMaterial(sh ShaderHandle, tex TextureHandle) (MaterialHandle, error) {
	if tex == NoTexture {
		tex = r.white
	}
	key := materialKey{shader: sh, texture: tex}
	if h, ok := r.materialKeys[key]; ok {
		m, _ := r.materials.get(uint32(h))
		m.refs++
		return h, nil
	}

	se, ok := r.shaders.get(uint32(sh))
	if !ok {
		return 0, errors.Wrapf(ErrInvalidHandle, "shader %d", sh)
	}
	texture, ok := r.textures.get(uint32(tex))
	if !ok {
		return 0, errors.Wrapf(ErrInvalidHandle, "texture %d", tex)
	}

	pipeline, err := r.dev.PipelineCache().Acquire(se.stages)
	if err != nil {
		return 0, errors.Wrap(err, "register material")
	}
	set, err := r.dev.MaterialPool().Allocate(r.dev.SetLayout(gfx.TierPerMaterial))
	if err != nil {
		r.dev.PipelineCache().Release(pipeline)
		return 0, errors.Wrap(err, "register material")
	}
	if err := set.WriteTexture(0, texture); err != nil {
		set.Release()
		r.dev.PipelineCache().Release(pipeline)
		return 0, errors.Wrap(err, "register material")
	}

	h := MaterialHandle(r.materials.add(&material{key: key, pipeline: pipeline, set: set, refs: 1}))
	r.materialKeys[key] = h
	return h, nil
}

// ReleaseMaterial drops one reference. The last release waits for the
// device to go idle, returns the descriptor set to its pool and releases
// the pipeline; the handle is invalid afterwards.
func (r *Renderer) ReleaseMaterial(h MaterialHandle) error {
	m, ok := r.materials.get(uint32(h))
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "material %d", h)
	}
	if m.refs > 1 {
		m.refs--
		return nil
	}
	if r.frame != nil {
		return errors.New("release of the last material reference during a frame")
	}
	m.refs = 0
	if err := r.dev.WaitIdle(); err != nil {
		return err
	}
	m.set.Release()
	r.dev.PipelineCache().Release(m.pipeline)
	delete(r.materialKeys, m.key)
	r.materials.remove(uint32(h))
	return nil
}

// Pipeline returns the pipeline a material draws with.
func (r *Renderer) Pipeline(h MaterialHandle) (*gfx.Pipeline, error) {
	m, ok := r.materials.get(uint32(h))
	if !ok {
		return nil, errors.Wrapf(ErrInvalidHandle, "material %d", h)
	}
	return m.pipeline, nil
}

// SetCamera places the camera. The projection is a perspective with the
// given vertical field of view in degrees, using the current swapchain
// aspect ratio.
func (r *Renderer) SetCamera(eye, center, up mgl32.Vec3, fovyDegrees, near, far float32) {
	r.cam = camera{eye: eye, center: center, up: up, fovy: fovyDegrees, near: near, far: far}
}

// Resize tells the renderer the window's drawable size changed. The
// swapchain is rebuilt at the start of the next frame.
func (r *Renderer) Resize(width, height int) {
	gfx.Logger().Debug("resize", "width", width, "height", height)
	r.dev.Swapchain().MarkStale()
}

// frameUniforms lays out view, projection and time as the per-frame
// uniform block.
func (r *Renderer) frameUniforms(extent hal.Extent2D) ([]byte, error) {
	view := mgl32.LookAtV(r.cam.eye, r.cam.center, r.cam.up)
	aspect := float32(extent.Width) / float32(extent.Height)
	proj := mgl32.Perspective(mgl32.DegToRad(r.cam.fovy), aspect, r.cam.near, r.cam.far)
	// Clip space y points down.
	proj[5] *= -1

	seconds := float32((hrtime.Now() - r.start).Seconds())
	return encode(struct {
		View, Proj mgl32.Mat4
		Time       mgl32.Vec4
	}{view, proj, mgl32.Vec4{seconds, 0, 0, 0}})
}

// BeginFrame starts a frame. It returns false without error when no frame
// can be drawn right now, because the swapchain was rebuilt or the window
// is minimized; the caller skips to the next iteration.
func (r *Renderer) BeginFrame() (bool, error) {
	if r.closed {
		return false, errors.New("renderer is closed")
	}
	f, err := r.dev.FrameLoop().Begin()
	if err != nil || f == nil {
		return false, err
	}
	r.frameStart = hrtime.Now()
	data, err := r.frameUniforms(f.Extent)
	if err == nil {
		err = f.WriteUniforms(data)
	}
	if err != nil {
		// The image is acquired; finish the frame so the semaphores stay
		// balanced.
		_ = r.dev.FrameLoop().End(f, nil)
		return false, errors.Wrap(err, "write frame uniforms")
	}
	r.frame = f
	r.queue = r.queue[:0]
	return true, nil
}

// Submit queues an object for the current frame.
func (r *Renderer) Submit(o Object) error {
	if r.frame == nil {
		return ErrNoActiveFrame
	}
	m, ok := r.meshes.get(uint32(o.Mesh))
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "mesh %d", o.Mesh)
	}
	mat, ok := r.materials.get(uint32(o.Material))
	if !ok {
		return errors.Wrapf(ErrInvalidHandle, "material %d", o.Material)
	}
	se, _ := r.shaders.get(uint32(mat.key.shader))
	if se.layout != m.layoutKey {
		return errors.Newf("mesh layout %s does not match shader %q layout %s", m.layoutKey, se.name, se.layout)
	}
	r.queue = append(r.queue, o)
	return nil
}

// EndFrame records every submitted object, grouped by material, then
// submits and presents.
func (r *Renderer) EndFrame() error {
	f := r.frame
	if f == nil {
		return ErrNoActiveFrame
	}
	r.frame = nil

	sort.SliceStable(r.queue, func(i, j int) bool {
		return r.queue[i].Material < r.queue[j].Material
	})
	err := r.dev.FrameLoop().End(f, func(rec *gfx.Recorder) error {
		var bound MaterialHandle
		for _, o := range r.queue {
			m, _ := r.meshes.get(uint32(o.Mesh))
			mat, _ := r.materials.get(uint32(o.Material))
			if o.Material != bound {
				if err := rec.BindPipeline(mat.pipeline); err != nil {
					return err
				}
				if err := rec.BindMaterial(mat.set); err != nil {
					return err
				}
				bound = o.Material
			}
			model, err := encode(o.Transform)
			if err != nil {
				return err
			}
			if err := rec.PushObject(model); err != nil {
				return err
			}
			if err := rec.DrawIndexed(m.vertices, m.indices, m.indexCount); err != nil {
				return err
			}
		}
		r.lastDraws = rec.Draws()
		return nil
	})
	r.frameTime = hrtime.Since(r.frameStart)
	r.queue = r.queue[:0]
	return err
}

func (r *Renderer) Stats() Stats {
	fs := r.dev.FrameLoop().Stats()
	return Stats{
		FramesPresented: fs.Presented,
		FramesAbandoned: fs.Abandoned,
		Recreations:     fs.Recreations,
		Draws:           r.lastDraws,
		FrameTime:       r.frameTime,
		Pipelines:       r.dev.PipelineCache().Len(),
		Materials:       r.materials.live(),
	}
}

// Close waits for the device to go idle and destroys everything in reverse
// order of creation. It is safe to call more than once.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	if r.dev != nil {
		if err := r.dev.WaitIdle(); err != nil {
			gfx.Logger().Warn("wait idle on close", "err", err)
		}
		for _, m := range r.materials.items {
			if m != nil {
				m.set.Release()
				r.dev.PipelineCache().Release(m.pipeline)
			}
		}
		for _, s := range r.shaders.items {
			if s != nil {
				s.stages.Destroy()
			}
		}
		for _, t := range r.textures.items {
			t.Destroy()
		}
		for _, m := range r.meshes.items {
			if m != nil {
				m.destroy()
			}
		}
		r.dev.Destroy()
	}
	if r.inst != nil {
		r.inst.Destroy()
	}
	r.materials, r.shaders, r.textures, r.meshes = table[material]{}, table[shaderEntry]{}, table[gfx.Texture]{}, table[mesh]{}
}
