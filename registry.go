package ember

import (
	"bytes"
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/emberkit/ember/gfx"
	"github.com/emberkit/ember/shader"
)

type mesh struct {
	vertices   *gfx.Buffer
	indices    *gfx.Buffer
	indexCount int
	layoutKey  string
}

func (m *mesh) destroy() {
	m.vertices.Destroy()
	m.indices.Destroy()
}

type shaderEntry struct {
	id     uuid.UUID
	name   string
	stages *gfx.ShaderStages
	layout string
}

type materialKey struct {
	shader  ShaderHandle
	texture TextureHandle
}

type material struct {
	key      materialKey
	pipeline *gfx.Pipeline
	set      *gfx.DescriptorSet
	refs     int
}

// table is an arena of registry entries indexed by handle-1. Released
// entries leave a nil slot so stale handles never alias a new entry.
type table[T any] struct {
	items []*T
}

func (t *table[T]) add(v *T) uint32 {
	t.items = append(t.items, v)
	return uint32(len(t.items))
}

func (t *table[T]) get(h uint32) (*T, bool) {
	if h == 0 || int(h) > len(t.items) || t.items[h-1] == nil {
		return nil, false
	}
	return t.items[h-1], true
}

func (t *table[T]) remove(h uint32) {
	t.items[h-1] = nil
}

func (t *table[T]) live() int {
	n := 0
	for _, v := range t.items {
		if v != nil {
			n++
		}
	}
	return n
}

// encode flattens little-endian numeric data the way it is laid out in
// GPU buffers.
func encode(data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d VertexData) layout() shader.VertexLayout {
	if len(d.Layout.Attributes) == 0 {
		return shader.PositionColorUV
	}
	return d.Layout
}

func (d VertexData) validate() error {
	layout := d.layout()
	if err := layout.Validate(); err != nil {
		return err
	}
	for _, a := range layout.Attributes {
		if a.Type != shader.Float32 {
			return errors.Newf("attribute %q is not float32; Vertices carries floats only", a.Name)
		}
	}
	floats := layout.Stride() / 4
	if len(d.Vertices) == 0 || len(d.Vertices)%floats != 0 {
		return errors.Newf("%d floats is not a whole number of %d-float vertices", len(d.Vertices), floats)
	}
	if len(d.Indices) == 0 {
		return errors.New("mesh has no indices")
	}
	count := uint32(len(d.Vertices) / floats)
	for i, idx := range d.Indices {
		if idx >= count {
			return errors.Newf("index %d refers to vertex %d of %d", i, idx, count)
		}
	}
	return nil
}
