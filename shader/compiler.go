package shader

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

type Stage int

const (
	StageVertex Stage = iota
	StageFragment
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vert"
	case StageFragment:
		return "frag"
	}
	return "unknown"
}

// Compiler turns GLSL source for one stage into SPIR-V words. It must be
// safe to call concurrently.
type Compiler interface {
	Compile(ctx context.Context, stage Stage, name, source string) ([]uint32, error)
}

// CompileError carries the compiler's own output.
type CompileError struct {
	Stage       Stage
	Name        string
	Diagnostics string
}

func (e *CompileError) Error() string {
	return "compile " + e.Name + "." + e.Stage.String() + " failed"
}

// GLSLC compiles by piping the source through the glslc executable from the
// Vulkan SDK.
type GLSLC struct {
	// Path to the executable. Defaults to "glslc" on PATH.
	Path string
	// Args are extra arguments such as "-O" or "--target-env=vulkan1.2".
	Args []string
}

func (g GLSLC) Compile(ctx context.Context, stage Stage, name, source string) ([]uint32, error) {
	path := g.Path
	if path == "" {
		path = "glslc"
	}
	args := append([]string{"-fshader-stage=" + stage.String()}, g.Args...)
	args = append(args, "-o", "-", "-")

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = strings.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "compile %s.%s", name, stage)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, errors.Wrapf(err, "run %s", path)
		}
		// glslc reports the input as "<stdin>"; show the program name.
		diag := strings.ReplaceAll(stderr.String(), "<stdin>", name+"."+stage.String())
		return nil, &CompileError{Stage: stage, Name: name, Diagnostics: diag}
	}
	code, err := BytesToBytecode(stdout.Bytes())
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s.%s", name, stage)
	}
	return code, nil
}

// BytesToBytecode reinterprets little-endian SPIR-V bytes as words.
func BytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("spir-v length %d is not a positive multiple of 4", len(b))
	}
	code := make([]uint32, len(b)/4)
	for i := range code {
		j := i * 4
		code[i] = uint32(b[j]) | uint32(b[j+1])<<8 | uint32(b[j+2])<<16 | uint32(b[j+3])<<24
	}
	return code, nil
}

// Precompiled serves SPIR-V built ahead of time, keyed by the exact GLSL
// source it was built from. Unknown sources are a compile error.
type Precompiled struct {
	mu      sync.RWMutex
	modules map[string][]uint32
}

func NewPrecompiled() *Precompiled {
	return &Precompiled{modules: map[string][]uint32{}}
}

// Add registers SPIR-V bytes for source.
func (p *Precompiled) Add(source string, spirv []byte) error {
	code, err := BytesToBytecode(spirv)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.modules[source] = code
	p.mu.Unlock()
	return nil
}

func (p *Precompiled) Compile(_ context.Context, stage Stage, name, source string) ([]uint32, error) {
	p.mu.RLock()
	code, ok := p.modules[source]
	p.mu.RUnlock()
	if !ok {
		return nil, &CompileError{Stage: stage, Name: name, Diagnostics: "no precompiled module for this source"}
	}
	return code, nil
}
