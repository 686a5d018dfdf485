// Package assets decodes meshes and images into the data the renderer
// uploads.
package assets

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"

	"github.com/emberkit/ember"
	"github.com/emberkit/ember/shader"
)

// corner identifies one unique vertex of the output. Two faces share an
// output vertex only when both the position and the texture coordinate
// match.
type corner struct {
	position, uv int
	material     string
}

type meshBuilder struct {
	dec      *obj.Decoder
	unique   map[corner]uint32
	vertices []float32
	indices  []uint32
}

func (b *meshBuilder) color(material string) [3]float32 {
	if m, ok := b.dec.Materials[material]; ok && m != nil {
		return [3]float32{m.Diffuse.R, m.Diffuse.G, m.Diffuse.B}
	}
	return [3]float32{1, 1, 1}
}

func (b *meshBuilder) add(face obj.Face, i int) error {
	key := corner{position: face.Vertices[i], uv: -1, material: face.Material}
	if i < len(face.Uvs) {
		key.uv = face.Uvs[i]
	}
	if index, ok := b.unique[key]; ok {
		b.indices = append(b.indices, index)
		return nil
	}

	p := key.position * 3
	if p < 0 || p+2 >= len(b.dec.Vertices) {
		return errors.Newf("face refers to missing vertex %d", key.position)
	}
	var u, v float32
	if t := key.uv * 2; key.uv >= 0 && t+1 < len(b.dec.Uvs) {
		// OBJ puts v=0 at the bottom of the image; textures are uploaded
		// top row first.
		u, v = b.dec.Uvs[t], 1-b.dec.Uvs[t+1]
	}
	c := b.color(face.Material)

	index := uint32(len(b.vertices) / 8)
	b.vertices = append(b.vertices,
		b.dec.Vertices[p], b.dec.Vertices[p+1], b.dec.Vertices[p+2],
		c[0], c[1], c[2],
		u, v,
	)
	b.unique[key] = index
	b.indices = append(b.indices, index)
	return nil
}

// DecodeOBJ reads a Wavefront OBJ mesh and its optional material library
// into shader.PositionColorUV vertices. Polygons are triangulated as fans;
// vertex colors come from each face's diffuse material color.
func DecodeOBJ(mesh, materials io.Reader) (ember.VertexData, error) {
	if materials == nil {
		materials = strings.NewReader("")
	}
	dec, err := obj.DecodeReader(mesh, materials)
	if err != nil {
		return ember.VertexData{}, errors.Wrap(err, "decode obj")
	}

	b := &meshBuilder{dec: dec, unique: map[corner]uint32{}}
	for _, o := range dec.Objects {
		for _, face := range o.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				for _, c := range [3]int{0, i - 1, i} {
					if err := b.add(face, c); err != nil {
						return ember.VertexData{}, errors.Wrapf(err, "object %q", o.Name)
					}
				}
			}
		}
	}
	if len(b.indices) == 0 {
		return ember.VertexData{}, errors.New("obj has no faces")
	}
	return ember.VertexData{Layout: shader.PositionColorUV, Vertices: b.vertices, Indices: b.indices}, nil
}

// LoadOBJ decodes the mesh at path. A material library with the same base
// name and a .mtl extension is used when present.
func LoadOBJ(path string) (ember.VertexData, error) {
	meshFile, err := os.Open(path)
	if err != nil {
		return ember.VertexData{}, errors.Wrap(err, "open mesh")
	}
	defer meshFile.Close()

	var materials io.Reader
	mtl := strings.TrimSuffix(path, filepath.Ext(path)) + ".mtl"
	if matFile, err := os.Open(mtl); err == nil {
		defer matFile.Close()
		materials = matFile
	}

	data, err := DecodeOBJ(meshFile, materials)
	if err != nil {
		return ember.VertexData{}, errors.Wrapf(err, "mesh %s", path)
	}
	return data, nil
}
