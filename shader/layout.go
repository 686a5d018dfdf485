package shader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/emberkit/ember/hal"
)

// AttributeType is the scalar type of a vertex attribute component.
type AttributeType int

const (
	Float32 AttributeType = iota
	Int32
	Uint32
)

func (t AttributeType) String() string {
	switch t {
	case Float32:
		return "f32"
	case Int32:
		return "i32"
	case Uint32:
		return "u32"
	}
	return "unknown"
}

var attributeFormats = map[AttributeType][4]hal.Format{
	Float32: {hal.FormatR32SFloat, hal.FormatR32G32SFloat, hal.FormatR32G32B32SFloat, hal.FormatR32G32B32A32SFloat},
	Int32:   {hal.FormatR32SInt, hal.FormatR32G32SInt, hal.FormatR32G32B32SInt, hal.FormatR32G32B32A32SInt},
	Uint32:  {hal.FormatR32UInt, hal.FormatR32G32UInt, hal.FormatR32G32B32UInt, hal.FormatR32G32B32A32UInt},
}

// Attribute is one interleaved vertex input.
type Attribute struct {
	Name       string
	Location   int
	Type       AttributeType
	Components int
}

// Size in bytes. Every component is four bytes wide.
func (a Attribute) Size() int { return a.Components * 4 }

func (a Attribute) Format() hal.Format {
	if a.Components < 1 || a.Components > 4 {
		return hal.FormatUndefined
	}
	return attributeFormats[a.Type][a.Components-1]
}

// VertexLayout describes a single interleaved vertex stream. Attributes
// are packed in declaration order.
type VertexLayout struct {
	Attributes []Attribute
}

// PositionColorUV is the layout used by the bundled shaders:
// vec3 position, vec3 color, vec2 texture coordinate.
var PositionColorUV = VertexLayout{Attributes: []Attribute{
	{Name: "inPosition", Location: 0, Type: Float32, Components: 3},
	{Name: "inColor", Location: 1, Type: Float32, Components: 3},
	{Name: "inTexCoord", Location: 2, Type: Float32, Components: 2},
}}

func (l VertexLayout) Stride() int {
	n := 0
	for _, a := range l.Attributes {
		n += a.Size()
	}
	return n
}

// Offsets returns the byte offset of each attribute within a vertex.
func (l VertexLayout) Offsets() []int {
	out := make([]int, len(l.Attributes))
	off := 0
	for i, a := range l.Attributes {
		out[i] = off
		off += a.Size()
	}
	return out
}

// HalAttributes converts the layout to pipeline vertex input attributes.
func (l VertexLayout) HalAttributes() []hal.VertexAttribute {
	offsets := l.Offsets()
	out := make([]hal.VertexAttribute, len(l.Attributes))
	for i, a := range l.Attributes {
		out[i] = hal.VertexAttribute{Location: a.Location, Format: a.Format(), Offset: offsets[i]}
	}
	return out
}

// Key identifies the layout for pipeline caching. Attribute names do not
// take part; two layouts with the same locations, types and packing share
// a key.
func (l VertexLayout) Key() string {
	parts := make([]string, len(l.Attributes))
	for i, a := range l.Attributes {
		parts[i] = fmt.Sprintf("%d:%s%d", a.Location, a.Type, a.Components)
	}
	return strings.Join(parts, ",")
}

func (l VertexLayout) Validate() error {
	if len(l.Attributes) == 0 {
		return errors.New("vertex layout has no attributes")
	}
	locs := make([]int, 0, len(l.Attributes))
	for _, a := range l.Attributes {
		if a.Components < 1 || a.Components > 4 {
			return errors.Newf("attribute %s: %d components, want 1..4", a.Name, a.Components)
		}
		if _, ok := attributeFormats[a.Type]; !ok {
			return errors.Newf("attribute %s: unknown type %d", a.Name, a.Type)
		}
		locs = append(locs, a.Location)
	}
	sort.Ints(locs)
	for i := 1; i < len(locs); i++ {
		if locs[i] == locs[i-1] {
			return errors.Newf("vertex layout uses location %d twice", locs[i])
		}
	}
	return nil
}
