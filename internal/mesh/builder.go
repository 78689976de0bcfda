package mesh

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ryan-organically/roanoke-engine/internal/turtle"
)

const (
	minRadialSegments = 3
	leafVertices      = 4
	leafIndices       = 6
	degenerateLength  = 1e-9
	// parallelCutoff is |tangent . reference| above which the reference
	// axis is swapped.
	parallelCutoff = 0.9
)

var (
	primaryReference   = mgl64.Vec3{0, 1, 0}
	secondaryReference = mgl64.Vec3{1, 0, 0}
)

// Limits is the per-instance ceiling. Zero disables a bound.
type Limits struct {
	MaxVertices int64
	MaxIndices  int64
}

// Resources a per-instance ceiling can bound.
const (
	ResourceVertices = "vertices"
	ResourceIndices  = "indices"
)

// Truncation explains why a build stopped early. Requested is what the
// full skeleton would have produced. Resource names the ceiling that
// stopped the build and Allowed is its value.
type Truncation struct {
	Truncated bool
	Resource  string
	Requested Size
	Allowed   int64
	Emitted   Size
	Reason    string
}

// RequestedAmount is the requested size of the crossed resource.
func (t Truncation) RequestedAmount() int64 {
	if t.Resource == ResourceIndices {
		return t.Requested.Indices
	}
	return t.Requested.Vertices
}

// Transform places a skeleton in the world: scaled uniformly, turned Yaw
// radians about +Y, then moved to Origin. A non-positive Scale counts as 1.
type Transform struct {
	Origin mgl64.Vec3
	Yaw    float64
	Scale  float64
}

// Translate is the untransformed skeleton moved to origin.
func Translate(origin mgl64.Vec3) Transform {
	return Transform{Origin: origin, Scale: 1}
}

type frame struct {
	origin mgl64.Vec3
	rot    mgl64.Mat3
	scale  float64
}

func (t Transform) frame() frame {
	scale := t.Scale
	if !(scale > 0) {
		scale = 1
	}
	return frame{origin: t.Origin, rot: mgl64.Rotate3DY(t.Yaw), scale: scale}
}

func (f frame) point(p mgl64.Vec3) mgl64.Vec3 {
	return f.origin.Add(f.rot.Mul3x1(p.Mul(f.scale)))
}

func (f frame) dir(d mgl64.Vec3) mgl64.Vec3 {
	return f.rot.Mul3x1(d)
}

// Builder converts skeletons into meshes under a per-instance ceiling. The
// zero value is unbounded.
type Builder struct {
	Limits Limits
}

// branchCost is the mesh size of one branch tube.
func branchCost(radial int) Size {
	return Size{Vertices: int64(2 * radial), Indices: int64(6 * radial)}
}

func clampRadial(radial int) int {
	if radial < minRadialSegments {
		return minRadialSegments
	}
	return radial
}

// Estimate returns the uncapped size Build would produce for skel.
func Estimate(skel *turtle.Skeleton, radialSegments int) Size {
	if skel == nil {
		return Size{}
	}
	radial := clampRadial(radialSegments)
	per := branchCost(radial)
	var total Size
	for _, b := range skel.Branches {
		if b.End.Sub(b.Start).Len() < degenerateLength {
			continue
		}
		total = total.Add(per)
	}
	total.Vertices += int64(len(skel.Leaves) * leafVertices)
	total.Indices += int64(len(skel.Leaves) * leafIndices)
	return total
}

// exceeds names the ceiling adding cost to m would cross, or "" when it
// fits.
func (b Builder) exceeds(m *Mesh, cost Size) (string, int64) {
	if b.Limits.MaxVertices > 0 && int64(len(m.Vertices))+cost.Vertices > b.Limits.MaxVertices {
		return ResourceVertices, b.Limits.MaxVertices
	}
	if b.Limits.MaxIndices > 0 && int64(len(m.Indices))+cost.Indices > b.Limits.MaxIndices {
		return ResourceIndices, b.Limits.MaxIndices
	}
	return "", 0
}

// Build meshes skel placed by xf. Branches are emitted first, then leaves.
// When the next primitive would cross the ceiling the build stops and the
// returned mesh holds only whole primitives.
func (b Builder) Build(skel *turtle.Skeleton, radialSegments int, xf Transform) (*Mesh, Truncation) {
	radial := clampRadial(radialSegments)
	requested := Estimate(skel, radial)
	reserve := requested
	if b.Limits.MaxVertices > 0 && reserve.Vertices > b.Limits.MaxVertices {
		reserve.Vertices = b.Limits.MaxVertices
	}
	if b.Limits.MaxIndices > 0 && reserve.Indices > b.Limits.MaxIndices {
		reserve.Indices = b.Limits.MaxIndices
	}
	m := &Mesh{
		Vertices: make([]Vertex, 0, reserve.Vertices),
		Indices:  make([]uint32, 0, reserve.Indices),
	}
	trunc := Truncation{Requested: requested}
	if skel == nil {
		return m, trunc
	}

	stop := func(kind, resource string, allowed int64) (*Mesh, Truncation) {
		trunc.Truncated = true
		trunc.Resource = resource
		trunc.Allowed = allowed
		trunc.Emitted = m.Size()
		trunc.Reason = fmt.Sprintf("per-instance %s ceiling reached before %s", resource, kind)
		return m, trunc
	}

	f := xf.frame()
	per := branchCost(radial)
	for _, br := range skel.Branches {
		if br.End.Sub(br.Start).Len() < degenerateLength {
			continue
		}
		if resource, allowed := b.exceeds(m, per); resource != "" {
			return stop("branch", resource, allowed)
		}
		appendTube(m, br, radial, f)
	}

	leafCost := Size{Vertices: leafVertices, Indices: leafIndices}
	for _, leaf := range skel.Leaves {
		if resource, allowed := b.exceeds(m, leafCost); resource != "" {
			return stop("leaf", resource, allowed)
		}
		appendLeaf(m, leaf, f)
	}
	trunc.Emitted = m.Size()
	return m, trunc
}

// ringFrame returns two unit vectors perpendicular to tangent.
func ringFrame(tangent mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3) {
	ref := primaryReference
	if math.Abs(tangent.Dot(ref)) > parallelCutoff {
		ref = secondaryReference
	}
	side := tangent.Cross(ref).Normalize()
	bitangent := tangent.Cross(side).Normalize()
	return side, bitangent
}

func appendTube(m *Mesh, br turtle.Branch, radial int, f frame) {
	base := uint32(len(m.Vertices))
	tangent := f.dir(br.End.Sub(br.Start)).Normalize()
	side, bitangent := ringFrame(tangent)

	rings := [2]struct {
		center mgl64.Vec3
		radius float64
		v      float32
	}{
		{center: f.point(br.Start), radius: br.StartThickness * 0.5 * f.scale, v: BarkVMin},
		{center: f.point(br.End), radius: br.EndThickness * 0.5 * f.scale, v: BarkVMax},
	}
	for _, ring := range rings {
		for i := 0; i < radial; i++ {
			angle := float64(i) / float64(radial) * 2 * math.Pi
			normal := side.Mul(math.Cos(angle)).Add(bitangent.Mul(math.Sin(angle)))
			pos := ring.center.Add(normal.Mul(ring.radius))
			m.Vertices = append(m.Vertices, Vertex{
				Position: vec32(pos),
				Normal:   vec32(normal),
				UV:       [2]float32{float32(i) / float32(radial), ring.v},
			})
		}
	}

	r := uint32(radial)
	for i := uint32(0); i < r; i++ {
		next := (i + 1) % r
		i0 := base + i
		i1 := base + next
		i2 := base + r + i
		i3 := base + r + next
		// Counter-clockwise seen from outside the tube.
		m.Indices = append(m.Indices, i0, i1, i2, i1, i3, i2)
	}
}

func appendLeaf(m *Mesh, leaf turtle.Leaf, f frame) {
	dir := f.dir(leaf.Direction)
	normal := f.dir(leaf.Normal)
	side := dir.Cross(normal)
	if side.Len() < degenerateLength {
		side, _ = ringFrame(dir)
		normal = side.Cross(dir)
	}
	side = side.Normalize()
	half := leaf.Size * 0.5 * f.scale
	center := f.point(leaf.Position)

	corners := [4]mgl64.Vec3{
		center.Add(side.Mul(-half)).Add(dir.Mul(-half)),
		center.Add(side.Mul(half)).Add(dir.Mul(-half)),
		center.Add(side.Mul(half)).Add(dir.Mul(half)),
		center.Add(side.Mul(-half)).Add(dir.Mul(half)),
	}
	uvs := [4][2]float32{
		{0, LeafVMin},
		{1, LeafVMin},
		{1, LeafVMax},
		{0, LeafVMax},
	}

	base := uint32(len(m.Vertices))
	n := vec32(normal.Normalize())
	for i, c := range corners {
		m.Vertices = append(m.Vertices, Vertex{Position: vec32(c), Normal: n, UV: uvs[i]})
	}
	m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
}

func vec32(v mgl64.Vec3) [3]float32 {
	return [3]float32{float32(v[0]), float32(v[1]), float32(v[2])}
}
