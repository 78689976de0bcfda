// Package turtle walks an expanded grammar string and produces the branch
// and leaf skeleton of one plant instance.
package turtle

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ryan-organically/roanoke-engine/internal/grammar"
	"github.com/ryan-organically/roanoke-engine/internal/seed"
)

// DefaultMaxStackDepth applies when Options.MaxStackDepth is unset.
const DefaultMaxStackDepth = 256

const frameEpsilon = 1e-9

var (
	worldDown = mgl64.Vec3{0, -1, 0}

	initialForward = mgl64.Vec3{0, 1, 0}
	initialUp      = mgl64.Vec3{0, 0, 1}
	initialRight   = mgl64.Vec3{1, 0, 0}
)

// Params are the per-species interpretation parameters.
type Params struct {
	Angle            float64 // radians
	LengthDecay      float64
	ThicknessDecay   float64
	InitialLength    float64
	InitialThickness float64
	LeafProbability  float64
	GravityBias      float64
	// Sections splits every drawn branch into that many pieces, with the
	// droop spread across them. Zero means one.
	Sections int
}

func (p Params) sections() int {
	if p.Sections < 1 {
		return 1
	}
	return p.Sections
}

// Options bound interpretation independently of the species.
type Options struct {
	MaxStackDepth int
}

// Pose is the turtle state. Right = Forward x Up.
type Pose struct {
	Position  mgl64.Vec3
	Forward   mgl64.Vec3
	Up        mgl64.Vec3
	Right     mgl64.Vec3
	Length    float64
	Thickness float64

	parent int
	depth  int
}

// Branch is one drawn segment. Parent is -1 for segments that start at the
// root.
type Branch struct {
	Start          mgl64.Vec3
	End            mgl64.Vec3
	StartThickness float64
	EndThickness   float64
	Length         float64
	Parent         int
	Depth          int
}

// Leaf marks a leaf quad anchor. Direction is the turtle heading and
// Normal its up axis when the leaf was placed.
type Leaf struct {
	Position  mgl64.Vec3
	Direction mgl64.Vec3
	Normal    mgl64.Vec3
	Size      float64
}

// Skeleton is the interpreter output.
type Skeleton struct {
	Branches []Branch
	Leaves   []Leaf
}

// MalformedGrammarError reports a push/pop imbalance found while walking a
// string. It is local to one instance.
type MalformedGrammarError struct {
	Index  int
	Symbol byte
	Depth  int
	Reason string
}

func (e *MalformedGrammarError) Error() string {
	return fmt.Sprintf("malformed grammar at symbol %d (%q, depth %d): %s", e.Index, e.Symbol, e.Depth, e.Reason)
}

// NewPose returns the root pose: at the origin, heading +Y.
func NewPose(p Params) Pose {
	return Pose{
		Forward:   initialForward,
		Up:        initialUp,
		Right:     initialRight,
		Length:    p.InitialLength,
		Thickness: p.InitialThickness,
		parent:    -1,
	}
}

func (ps *Pose) yaw(angle float64) {
	q := mgl64.QuatRotate(angle, ps.Up)
	ps.Forward = q.Rotate(ps.Forward)
	ps.Right = q.Rotate(ps.Right)
}

func (ps *Pose) pitch(angle float64) {
	q := mgl64.QuatRotate(angle, ps.Right)
	ps.Forward = q.Rotate(ps.Forward)
	ps.Up = q.Rotate(ps.Up)
}

func (ps *Pose) roll(angle float64) {
	q := mgl64.QuatRotate(angle, ps.Forward)
	ps.Up = q.Rotate(ps.Up)
	ps.Right = q.Rotate(ps.Right)
}

// droop blends the heading toward world down and rebuilds an orthonormal
// frame around it.
func (ps *Pose) droop(bias float64) {
	if bias <= 0 {
		return
	}
	blended := ps.Forward.Add(worldDown.Mul(bias))
	if blended.Len() < frameEpsilon {
		return
	}
	ps.Forward = blended.Normalize()
	ps.orthonormalize()
}

func (ps *Pose) orthonormalize() {
	f := ps.Forward
	right := ps.Right.Sub(f.Mul(ps.Right.Dot(f)))
	if right.Len() < frameEpsilon {
		right = f.Cross(ps.Up)
	}
	if right.Len() < frameEpsilon {
		right = f.Cross(initialUp)
		if right.Len() < frameEpsilon {
			right = f.Cross(initialRight)
		}
	}
	ps.Right = right.Normalize()
	ps.Up = ps.Right.Cross(f).Normalize()
}

// poseStack is the array-backed save/restore stack.
type poseStack struct {
	items []Pose
	limit int
}

func newPoseStack(limit int) *poseStack {
	return &poseStack{items: make([]Pose, 0, minInt(limit, 64)), limit: limit}
}

func (s *poseStack) push(p Pose) bool {
	if len(s.items) >= s.limit {
		return false
	}
	s.items = append(s.items, p)
	return true
}

func (s *poseStack) pop() (Pose, bool) {
	if len(s.items) == 0 {
		return Pose{}, false
	}
	p := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return p, true
}

// Interpret walks str with the given species parameters. instanceSeed keys
// the leaf stream; the same (str, params, seed) always yields the same
// skeleton.
func Interpret(str grammar.String, p Params, instanceSeed uint64, opts Options) (*Skeleton, error) {
	maxDepth := opts.MaxStackDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxStackDepth
	}

	n := str.Len()
	terminal := terminalDraws(str)
	pose := NewPose(p)
	stack := newPoseStack(maxDepth)
	sections := p.sections()
	skel := &Skeleton{
		Branches: make([]Branch, 0, (str.Count(grammar.Draw)+str.Count(grammar.DrawAlt))*sections),
	}

	leafStream := seed.Lane(instanceSeed, 1)
	sizeStream := seed.Lane(instanceSeed, 2)

	for i := 0; i < n; i++ {
		sym := str.At(i)
		switch sym {
		case grammar.Draw, grammar.DrawAlt:
			endThickness := pose.Thickness * p.ThicknessDecay
			pieceLength := pose.Length / float64(sections)
			thickness := pose.Thickness
			for s := 0; s < sections; s++ {
				if s > 0 {
					pose.droop(p.GravityBias / float64(sections))
				}
				next := pose.Thickness + (endThickness-pose.Thickness)*float64(s+1)/float64(sections)
				start := pose.Position
				end := start.Add(pose.Forward.Mul(pieceLength))
				skel.Branches = append(skel.Branches, Branch{
					Start:          start,
					End:            end,
					StartThickness: thickness,
					EndThickness:   next,
					Length:         pieceLength,
					Parent:         pose.parent,
					Depth:          pose.depth,
				})
				pose.parent = len(skel.Branches) - 1
				pose.Position = end
				thickness = next
			}
			pose.Thickness = endThickness
			pose.Length *= p.LengthDecay
			pose.droop(p.GravityBias / float64(sections))

			if terminal[i] && seed.UnitAt(leafStream, uint64(i)) < p.LeafProbability {
				skel.Leaves = append(skel.Leaves, Leaf{
					Position:  pose.Position,
					Direction: pose.Forward,
					Normal:    pose.Up,
					Size:      0.2 + seed.UnitAt(sizeStream, uint64(i))*0.3,
				})
			}
		case grammar.Move:
			pose.Position = pose.Position.Add(pose.Forward.Mul(pose.Length))
		case grammar.YawRight:
			pose.yaw(p.Angle)
		case grammar.YawLeft:
			pose.yaw(-p.Angle)
		case grammar.PitchUp:
			pose.pitch(p.Angle)
		case grammar.PitchDown:
			pose.pitch(-p.Angle)
		case grammar.RollRight:
			pose.roll(p.Angle)
		case grammar.RollLeft:
			pose.roll(-p.Angle)
		case grammar.Push:
			if !stack.push(pose) {
				return nil, &MalformedGrammarError{Index: i, Symbol: sym, Depth: pose.depth, Reason: fmt.Sprintf("stack overflow beyond depth %d", maxDepth)}
			}
			pose.depth++
		case grammar.Pop:
			restored, ok := stack.pop()
			if !ok {
				return nil, &MalformedGrammarError{Index: i, Symbol: sym, Depth: pose.depth, Reason: "stack underflow"}
			}
			pose = restored
		case grammar.Leaf:
			if seed.UnitAt(leafStream, uint64(i)) < p.LeafProbability {
				skel.Leaves = append(skel.Leaves, Leaf{
					Position:  pose.Position,
					Direction: pose.Forward,
					Normal:    pose.Up,
					Size:      0.5 + seed.UnitAt(sizeStream, uint64(i))*0.5,
				})
			}
		}
	}
	return skel, nil
}

// terminalDraws marks draw symbols whose next structural symbol is a pop or
// the end of the string, i.e. draws that grow no further children.
func terminalDraws(str grammar.String) []bool {
	n := str.Len()
	out := make([]bool, n)
	endsHere := true
	for i := n - 1; i >= 0; i-- {
		sym := str.At(i)
		if grammar.IsDraw(sym) {
			out[i] = endsHere
		}
		switch sym {
		case grammar.Draw, grammar.DrawAlt, grammar.Move, grammar.Push, grammar.Leaf:
			endsHere = false
		case grammar.Pop:
			endsHere = true
		}
	}
	return out
}

// Depth0Branches counts branches drawn before any push, along the trunk.
func (s *Skeleton) Depth0Branches() int {
	n := 0
	for _, b := range s.Branches {
		if b.Depth == 0 {
			n++
		}
	}
	return n
}

// Finite reports whether every coordinate in the skeleton is a finite
// number.
func (s *Skeleton) Finite() bool {
	finite := func(v mgl64.Vec3) bool {
		for _, c := range v {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				return false
			}
		}
		return true
	}
	for _, b := range s.Branches {
		if !finite(b.Start) || !finite(b.End) {
			return false
		}
	}
	for _, l := range s.Leaves {
		if !finite(l.Position) || !finite(l.Direction) {
			return false
		}
	}
	return true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
