// Command ember-demo opens a window and spins a textured cube, or a mesh
// loaded from an OBJ file.
package main

import (
	"embed"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/loov/hrtime"

	"github.com/emberkit/ember"
	"github.com/emberkit/ember/assets"
	"github.com/emberkit/ember/hal/vulkan"
	"github.com/emberkit/ember/shader"
	"github.com/emberkit/ember/window"
)

//go:embed shaders
var shaders embed.FS

var (
	configPath  = flag.String("config", "", "TOML configuration file")
	meshPath    = flag.String("mesh", "", "OBJ mesh to display instead of the cube")
	texturePath = flag.String("texture", "", "PNG or JPEG texture for the mesh")
	maxTexture  = flag.Int("max-texture", 2048, "downscale textures larger than this")
)

func loadConfig() (ember.Config, error) {
	if *configPath == "" {
		return ember.DefaultConfig(), nil
	}
	return ember.LoadConfig(*configPath)
}

func program() (shader.Program, error) {
	vert, err := shaders.ReadFile("shaders/cube.vert")
	if err != nil {
		return shader.Program{}, err
	}
	frag, err := shaders.ReadFile("shaders/cube.frag")
	if err != nil {
		return shader.Program{}, err
	}
	return shader.Program{
		Name:     "cube",
		Vertex:   string(vert),
		Fragment: string(frag),
		Layout:   shader.PositionColorUV,
	}, nil
}

// cube is a unit cube with its own colour and texture coordinates per face.
func cube() ember.VertexData {
	faces := []struct {
		normal, u, v mgl32.Vec3
		color        mgl32.Vec3
	}{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0.4, 0.4}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, -1, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0.4, 1, 0.4}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0.4, 0.4, 1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 1, 0.4}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0.4, 1}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}, mgl32.Vec3{0.4, 1, 1}},
	}
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}

	var data ember.VertexData
	for i, f := range faces {
		for _, c := range corners {
			p := f.normal.Add(f.u.Mul(c[0])).Add(f.v.Mul(c[1])).Mul(0.5)
			data.Vertices = append(data.Vertices,
				p[0], p[1], p[2],
				f.color[0], f.color[1], f.color[2],
				(c[0]+1)/2, 1-(c[1]+1)/2)
		}
		base := uint32(i * 4)
		data.Indices = append(data.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return data
}

// checker is a small grey checkerboard so the cube shows its texture
// coordinates without any files on disk.
func checker() ember.TextureData {
	const size, cell = 64, 8
	pixels := make([]byte, 0, size*size*4)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := byte(160)
			if (x/cell+y/cell)%2 == 0 {
				v = 255
			}
			pixels = append(pixels, v, v, v, 255)
		}
	}
	return ember.TextureData{Pixels: pixels, Width: size, Height: size, Channels: 4}
}

type scene struct {
	mesh     ember.MeshHandle
	material ember.MaterialHandle
}

func loadScene(r *ember.Renderer) (scene, error) {
	data := cube()
	if *meshPath != "" {
		var err error
		if data, err = assets.LoadOBJ(*meshPath); err != nil {
			return scene{}, err
		}
	}
	mesh, err := r.RegisterMesh(data)
	if err != nil {
		return scene{}, errors.Wrap(err, "register mesh")
	}

	tex := checker()
	if *texturePath != "" {
		if tex, err = assets.LoadTexture(*texturePath, assets.DecodeOptions{MaxSize: *maxTexture}); err != nil {
			return scene{}, err
		}
	}
	texture, err := r.RegisterTexture(tex)
	if err != nil {
		return scene{}, errors.Wrap(err, "register texture")
	}

	p, err := program()
	if err != nil {
		return scene{}, err
	}
	sh, err := r.RegisterShader(p)
	if err != nil {
		return scene{}, err
	}
	mat, err := r.RegisterMaterial(sh, texture)
	if err != nil {
		return scene{}, err
	}
	return scene{mesh: mesh, material: mat}, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	ember.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	win, err := window.Open(cfg.Window.Title, cfg.Window.Width, cfg.Window.Height)
	if err != nil {
		return err
	}
	defer win.Close()

	loader, err := vulkan.NewLoader()
	if err != nil {
		return err
	}
	r, err := ember.New(loader, win, cfg, shader.GLSLC{})
	if err != nil {
		return err
	}
	defer r.Close()

	sc, err := loadScene(r)
	if err != nil {
		return err
	}

	start := hrtime.Now()
	lastTitle := start
	minimized := false
	for {
		for _, ev := range win.PollEvents() {
			switch ev.Kind {
			case window.EventQuit:
				return nil
			case window.EventResized:
				r.Resize(ev.Width, ev.Height)
			case window.EventMinimized:
				minimized = true
			case window.EventRestored:
				minimized = false
			}
		}
		if minimized {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		ok, err := r.BeginFrame()
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		angle := float32(hrtime.Since(start).Seconds()) * mgl32.DegToRad(90)
		if err := r.Submit(ember.Object{
			Transform: mgl32.HomogRotate3DZ(angle),
			Mesh:      sc.mesh,
			Material:  sc.material,
		}); err != nil {
			return err
		}
		if err := r.EndFrame(); err != nil {
			return err
		}

		if hrtime.Since(lastTitle) > time.Second {
			lastTitle = hrtime.Now()
			st := r.Stats()
			win.SetTitle(fmt.Sprintf("%s - %.2f ms, %d frames", cfg.Window.Title,
				float64(st.FrameTime.Microseconds())/1000, st.FramesPresented))
		}
	}
}

func main() {
	runtime.LockOSThread()
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("%+v\n", err)
	}
}
