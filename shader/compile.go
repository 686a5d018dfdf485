package shader

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrCompile marks every failure to turn a Program into SPIR-V. The
// compiler output is attached as error detail; see errors.GetAllDetails.
var ErrCompile = errors.New("shader: compilation failed")

// Compiled is the SPIR-V for both stages of a Program.
type Compiled struct {
	ID       uuid.UUID
	Name     string
	Vertex   []uint32
	Fragment []uint32
}

// CompileProgram compiles the vertex and fragment stages concurrently and
// joins them before returning. If either stage fails the other is
// cancelled, and the error is marked ErrCompile.
func CompileProgram(ctx context.Context, c Compiler, p Program) (*Compiled, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Mark(err, ErrCompile)
	}

	out := &Compiled{ID: p.ID(), Name: p.Name}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		code, err := c.Compile(gctx, StageVertex, p.Name, p.Vertex)
		out.Vertex = code
		return err
	})
	g.Go(func() error {
		code, err := c.Compile(gctx, StageFragment, p.Name, p.Fragment)
		out.Fragment = code
		return err
	})
	if err := g.Wait(); err != nil {
		var ce *CompileError
		if errors.As(err, &ce) {
			err = errors.WithDetail(err, ce.Diagnostics)
		}
		return nil, errors.Mark(errors.Wrapf(err, "program %q", p.Name), ErrCompile)
	}
	return out, nil
}
