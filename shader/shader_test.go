package shader_test

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberkit/ember/hal"
	"github.com/emberkit/ember/shader"
)

func program() shader.Program {
	return shader.Program{
		Name:     "lit",
		Vertex:   "#version 450\nvoid main() {}",
		Fragment: "#version 450\nlayout(location = 0) out vec4 c;\nvoid main() { c = vec4(1); }",
		Layout:   shader.PositionColorUV,
	}
}

func TestVertexLayout(t *testing.T) {
	l := shader.PositionColorUV
	assert.Equal(t, 32, l.Stride())
	assert.Equal(t, []int{0, 12, 24}, l.Offsets())
	assert.Equal(t, "0:f323,1:f323,2:f322", l.Key())
	assert.Equal(t, []hal.VertexAttribute{
		{Location: 0, Format: hal.FormatR32G32B32SFloat, Offset: 0},
		{Location: 1, Format: hal.FormatR32G32B32SFloat, Offset: 12},
		{Location: 2, Format: hal.FormatR32G32SFloat, Offset: 24},
	}, l.HalAttributes())
	require.NoError(t, l.Validate())

	renamed := shader.VertexLayout{Attributes: append([]shader.Attribute(nil), l.Attributes...)}
	renamed.Attributes[0].Name = "pos"
	assert.Equal(t, l.Key(), renamed.Key())
}

func TestVertexLayoutValidate(t *testing.T) {
	tests := []struct {
		name   string
		layout shader.VertexLayout
	}{
		{"empty", shader.VertexLayout{}},
		{"five components", shader.VertexLayout{Attributes: []shader.Attribute{{Name: "a", Components: 5}}}},
		{"unknown type", shader.VertexLayout{Attributes: []shader.Attribute{{Name: "a", Type: 9, Components: 1}}}},
		{"duplicate location", shader.VertexLayout{Attributes: []shader.Attribute{
			{Name: "a", Location: 1, Components: 2},
			{Name: "b", Location: 1, Components: 2},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.layout.Validate())
		})
	}
}

func TestProgramID(t *testing.T) {
	p := program()
	same := program()
	same.Name = "another name"
	assert.Equal(t, p.ID(), same.ID())

	blended := program()
	blended.Blend = true
	assert.NotEqual(t, p.ID(), blended.ID())

	edited := program()
	edited.Fragment += "\n"
	assert.NotEqual(t, p.ID(), edited.ID())

	assert.Equal(t, 5, int(p.ID().Version()))
}

// rendezvous fails a compile unless both stages are inside Compile at the
// same time.
type rendezvous struct {
	arrived sync.WaitGroup
}

func (r *rendezvous) Compile(ctx context.Context, stage shader.Stage, name, _ string) ([]uint32, error) {
	r.arrived.Done()
	both := make(chan struct{})
	go func() {
		r.arrived.Wait()
		close(both)
	}()
	select {
	case <-both:
		return []uint32{0x07230203, uint32(stage)}, nil
	case <-time.After(5 * time.Second):
		return nil, errors.Newf("%s.%s compiled alone", name, stage)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestCompileProgramRunsStagesConcurrently(t *testing.T) {
	c := &rendezvous{}
	c.arrived.Add(2)

	out, err := shader.CompileProgram(context.Background(), c, program())
	require.NoError(t, err)
	assert.Equal(t, program().ID(), out.ID)
	assert.Equal(t, "lit", out.Name)
	assert.Equal(t, []uint32{0x07230203, uint32(shader.StageVertex)}, out.Vertex)
	assert.Equal(t, []uint32{0x07230203, uint32(shader.StageFragment)}, out.Fragment)
}

// failingFragment rejects the fragment stage and holds the vertex stage
// until it is cancelled.
type failingFragment struct{}

func (failingFragment) Compile(ctx context.Context, stage shader.Stage, name, _ string) ([]uint32, error) {
	if stage == shader.StageFragment {
		return nil, &shader.CompileError{Stage: stage, Name: name, Diagnostics: "lit.frag:3: error: 'c' : undeclared identifier"}
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCompileProgramFailure(t *testing.T) {
	_, err := shader.CompileProgram(context.Background(), failingFragment{}, program())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shader.ErrCompile))
	assert.Contains(t, err.Error(), `program "lit"`)

	var ce *shader.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, shader.StageFragment, ce.Stage)
	details := strings.Join(errors.GetAllDetails(err), "\n")
	assert.Contains(t, details, "undeclared identifier")
}

func TestCompileProgramInvalid(t *testing.T) {
	p := program()
	p.Vertex = "  "
	_, err := shader.CompileProgram(context.Background(), &rendezvous{}, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shader.ErrCompile))
}

func TestBytesToBytecode(t *testing.T) {
	code, err := shader.BytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x07230203, 0x00010000}, code)

	_, err = shader.BytesToBytecode([]byte{1, 2, 3})
	assert.Error(t, err)
	_, err = shader.BytesToBytecode(nil)
	assert.Error(t, err)
}

func TestPrecompiled(t *testing.T) {
	p := program()
	pc := shader.NewPrecompiled()
	require.NoError(t, pc.Add(p.Vertex, []byte{0x03, 0x02, 0x23, 0x07}))
	require.NoError(t, pc.Add(p.Fragment, []byte{0x03, 0x02, 0x23, 0x07, 1, 0, 0, 0}))
	assert.Error(t, pc.Add("broken", []byte{1}))

	out, err := shader.CompileProgram(context.Background(), pc, p)
	require.NoError(t, err)
	assert.Len(t, out.Vertex, 1)
	assert.Len(t, out.Fragment, 2)

	other := p
	other.Fragment = "void main() { discard; }"
	_, err = shader.CompileProgram(context.Background(), pc, other)
	assert.True(t, errors.Is(err, shader.ErrCompile))
}

func TestGLSLCMissingExecutable(t *testing.T) {
	g := shader.GLSLC{Path: "/nonexistent/glslc"}
	_, err := g.Compile(context.Background(), shader.StageVertex, "x", "void main() {}")
	require.Error(t, err)
	var ce *shader.CompileError
	assert.False(t, errors.As(err, &ce))
}

func TestGLSLCCompiles(t *testing.T) {
	path, err := exec.LookPath("glslc")
	if err != nil {
		t.Skip("glslc not installed")
	}
	g := shader.GLSLC{Path: path}
	code, err := g.Compile(context.Background(), shader.StageVertex, "lit", program().Vertex)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x07230203), code[0])

	_, err = g.Compile(context.Background(), shader.StageFragment, "broken", "#version 450\nvoid main() { x = 1; }")
	var ce *shader.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, ce.Diagnostics, "broken.frag")
}
