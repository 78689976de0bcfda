// Package mesh turns plant skeletons into vertex and index buffers.
//
// Bark and leaf surfaces share one vertex format and are told apart by the
// UV v coordinate: bark stays in [BarkVMin, BarkVMax], leaves in
// [LeafVMin, LeafVMax]. Shaders test v against SurfaceThreshold to pick
// the bark path or the alpha-tested leaf path.
package mesh

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
)

const (
	BarkVMin         float32 = 0.0
	BarkVMax         float32 = 0.45
	LeafVMin         float32 = 0.55
	LeafVMax         float32 = 1.0
	SurfaceThreshold float32 = 0.5
)

const (
	// VertexStride is the byte size of one Vertex in the upload layout.
	VertexStride = 32
	// IndexSize is the byte size of one index.
	IndexSize = 4
)

var (
	// IndexFormat is the index format of every buffer produced here.
	IndexFormat = gputypes.IndexFormatUint32

	VertexBufferUsage = gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
	IndexBufferUsage  = gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
)

// Vertex matches VertexLayout: position, normal, uv.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// IsLeaf reports whether the vertex belongs to a leaf surface.
func (v Vertex) IsLeaf() bool {
	return v.UV[1] >= SurfaceThreshold
}

// VertexLayout describes Vertex for render pipelines.
//
//	location 0: position (vec3<f32>)
//	location 1: normal   (vec3<f32>)
//	location 2: uv       (vec2<f32>)
func VertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: VertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},  // position
				{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1}, // normal
				{Format: gputypes.VertexFormatFloat32x2, Offset: 24, ShaderLocation: 2}, // uv
			},
		},
	}
}

// Size counts vertices and indices.
type Size struct {
	Vertices int64
	Indices  int64
}

// Bytes is the upload size of a buffer pair of this size.
func (s Size) Bytes() int64 {
	return s.Vertices*VertexStride + s.Indices*IndexSize
}

func (s Size) Add(o Size) Size {
	return Size{Vertices: s.Vertices + o.Vertices, Indices: s.Indices + o.Indices}
}

// Mesh is an indexed triangle list.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Size returns the current counts.
func (m *Mesh) Size() Size {
	if m == nil {
		return Size{}
	}
	return Size{Vertices: int64(len(m.Vertices)), Indices: int64(len(m.Indices))}
}

// Append copies o onto the end of m, rebasing its indices.
func (m *Mesh) Append(o *Mesh) {
	if o == nil || len(o.Vertices) == 0 {
		return
	}
	base := uint32(len(m.Vertices))
	m.Vertices = append(m.Vertices, o.Vertices...)
	for _, idx := range o.Indices {
		m.Indices = append(m.Indices, base+idx)
	}
}

// Valid reports whether the index list is whole triangles that only
// reference existing vertices.
func (m *Mesh) Valid() bool {
	if len(m.Indices)%3 != 0 {
		return false
	}
	n := uint32(len(m.Vertices))
	for _, idx := range m.Indices {
		if idx >= n {
			return false
		}
	}
	return true
}

// VertexBytes encodes the vertices little-endian in VertexLayout order.
func (m *Mesh) VertexBytes() []byte {
	out := make([]byte, len(m.Vertices)*VertexStride)
	off := 0
	put := func(f float32) {
		binary.LittleEndian.PutUint32(out[off:], math.Float32bits(f))
		off += 4
	}
	for _, v := range m.Vertices {
		put(v.Position[0])
		put(v.Position[1])
		put(v.Position[2])
		put(v.Normal[0])
		put(v.Normal[1])
		put(v.Normal[2])
		put(v.UV[0])
		put(v.UV[1])
	}
	return out
}

// IndexBytes encodes the indices little-endian.
func (m *Mesh) IndexBytes() []byte {
	out := make([]byte, len(m.Indices)*IndexSize)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(out[i*IndexSize:], idx)
	}
	return out
}
