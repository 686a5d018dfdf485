package gfx

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberkit/ember/hal"
	"github.com/emberkit/ember/internal/fakehal"
	"github.com/emberkit/ember/shader"
)

// rig is a device built on the fake backend with an 800x800 window.
type rig struct {
	loader  *fakehal.Loader
	adapter *fakehal.Adapter
	win     *fakehal.Window
	inst    *Instance
	dev     *LogicalDevice
	fake    *fakehal.Device
}

func newRig(t *testing.T, cfg DeviceConfig) *rig {
	t.Helper()
	loader := fakehal.NewLoader()
	win := &fakehal.Window{Width: 800, Height: 800, Extensions: []string{hal.ExtensionSurface}}

	inst, err := CreateInstance(loader, win, InstanceConfig{AppName: "gfx test", Validation: true})
	require.NoError(t, err)
	pd, err := inst.SelectPhysicalDevice(nil)
	require.NoError(t, err)
	dev, err := CreateLogicalDevice(inst, pd, cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		dev.Destroy()
		inst.Destroy()
	})
	return &rig{
		loader:  loader,
		adapter: loader.Adapters[0],
		win:     win,
		inst:    inst,
		dev:     dev,
		fake:    loader.LastInstance().Device(),
	}
}

// frame runs one Begin/End pair and reports whether it was presented.
func (r *rig) frame(t *testing.T, record RecordFunc) bool {
	t.Helper()
	loop := r.dev.FrameLoop()
	f, err := loop.Begin()
	require.NoError(t, err)
	if f == nil {
		return false
	}
	require.NoError(t, loop.End(f, record))
	return true
}

func fakeSPIRV() []uint32 {
	return []uint32{0x07230203, 0x00010000, 0, 1, 0}
}

func testProgram() shader.Program {
	return shader.Program{
		Name:     "flat",
		Vertex:   "void main() { gl_Position = vec4(0); }",
		Fragment: "void main() {}",
		Layout:   shader.PositionColorUV,
	}
}

// stages creates shader stages from canned SPIR-V.
func (r *rig) stages(t *testing.T, p shader.Program) *ShaderStages {
	t.Helper()
	c := &shader.Compiled{ID: p.ID(), Name: p.Name, Vertex: fakeSPIRV(), Fragment: fakeSPIRV()}
	s, err := r.dev.CreateShaderStages(c, p)
	require.NoError(t, err)
	t.Cleanup(s.Destroy)
	return s
}

// captureHandler keeps every record it is given.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.records = append(h.records, r.Clone())
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

// levels returns the level of every record with the given message.
func (h *captureHandler) levels(msg string) []slog.Level {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []slog.Level
	for _, r := range h.records {
		if r.Message == msg {
			out = append(out, r.Level)
		}
	}
	return out
}

func captureLogs(t *testing.T) *captureHandler {
	h := &captureHandler{}
	SetLogger(slog.New(h))
	t.Cleanup(func() { SetLogger(nil) })
	return h
}
