package mesh

import "github.com/gogpu/gputypes"

// Upload is everything a renderer needs to create and fill the buffers of
// one mesh and draw it.
type Upload struct {
	Vertices    []byte
	Indices     []byte
	IndexCount  uint32
	IndexFormat gputypes.IndexFormat
	VertexUsage gputypes.BufferUsage
	IndexUsage  gputypes.BufferUsage
	Layout      []gputypes.VertexBufferLayout
	// Leaves are single quads, so nothing is culled.
	Primitive gputypes.PrimitiveState
}

// Upload encodes m for the GPU.
func (m *Mesh) Upload() Upload {
	return Upload{
		Vertices:    m.VertexBytes(),
		Indices:     m.IndexBytes(),
		IndexCount:  uint32(len(m.Indices)),
		IndexFormat: IndexFormat,
		VertexUsage: VertexBufferUsage,
		IndexUsage:  IndexBufferUsage,
		Layout:      VertexLayout(),
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
	}
}

// Bytes is the combined size of both encoded buffers.
func (u Upload) Bytes() int64 {
	return int64(len(u.Vertices) + len(u.Indices))
}
