// Package shader describes GLSL programs and compiles them to SPIR-V.
package shader

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// namespace scopes program identities.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/emberkit/ember/shader"))

// Program is a vertex and fragment shader pair with the vertex layout it
// consumes and the fixed-function state it wants.
type Program struct {
	Name     string
	Vertex   string
	Fragment string
	Layout   VertexLayout

	// Blend enables alpha blending on the color attachment.
	Blend bool
	// DoubleSided disables back-face culling.
	DoubleSided bool
}

// ID is a name-based UUID of everything that affects the compiled result.
// Programs with identical sources, layout and state share an ID; the Name
// does not take part.
func (p Program) ID() uuid.UUID {
	var b strings.Builder
	b.WriteString(p.Vertex)
	b.WriteByte(0)
	b.WriteString(p.Fragment)
	b.WriteByte(0)
	b.WriteString(p.Layout.Key())
	b.WriteByte(0)
	b.WriteString(strconv.FormatBool(p.Blend))
	b.WriteString(strconv.FormatBool(p.DoubleSided))
	return uuid.NewSHA1(namespace, []byte(b.String()))
}

func (p Program) Validate() error {
	if strings.TrimSpace(p.Vertex) == "" {
		return errors.Newf("program %q: empty vertex source", p.Name)
	}
	if strings.TrimSpace(p.Fragment) == "" {
		return errors.Newf("program %q: empty fragment source", p.Name)
	}
	return errors.Wrapf(p.Layout.Validate(), "program %q", p.Name)
}
