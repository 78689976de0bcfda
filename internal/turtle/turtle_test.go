package turtle

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ryan-organically/roanoke-engine/internal/grammar"
)

func oakParams() Params {
	return Params{
		Angle:            22.5 * math.Pi / 180,
		LengthDecay:      0.7,
		ThicknessDecay:   0.6,
		InitialLength:    2.0,
		InitialThickness: 0.3,
		LeafProbability:  0.3,
	}
}

func mustExpand(t *testing.T, axiom string, rules grammar.Rules, iterations int) grammar.String {
	t.Helper()
	str, _, err := grammar.Expand("test", axiom, rules, iterations, grammar.Limits{MaxSymbols: 1 << 20})
	if err != nil {
		t.Fatalf("expand %q: %v", axiom, err)
	}
	return str
}

func topLevelDraws(str grammar.String) int {
	depth, n := 0, 0
	for i := 0; i < str.Len(); i++ {
		switch sym := str.At(i); {
		case sym == grammar.Push:
			depth++
		case sym == grammar.Pop:
			depth--
		case grammar.IsDraw(sym) && depth == 0:
			n++
		}
	}
	return n
}

func TestInterpretRootBranchCountMatchesTopLevelDraws(t *testing.T) {
	str := mustExpand(t, "F", grammar.Rules{'F': "FF-[-F+F+F]+[+F-F-F]"}, 3)

	skel, err := Interpret(str, oakParams(), 12345, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	want := topLevelDraws(str)
	if want != 8 {
		t.Fatalf("reference count changed: expected 8 top-level draws, got %d", want)
	}
	if got := skel.Depth0Branches(); got != want {
		t.Fatalf("depth-0 branches: got %d want %d", got, want)
	}
	if got := len(skel.Branches); got != str.Count(grammar.Draw) {
		t.Fatalf("branch count: got %d want %d", got, str.Count(grammar.Draw))
	}
	if !skel.Finite() {
		t.Fatalf("skeleton contains non-finite coordinates")
	}
}

func TestInterpretDecayIsNonIncreasingAlongPaths(t *testing.T) {
	str := mustExpand(t, "F", grammar.Rules{'F': "FF[-F][+F]F"}, 4)
	skel, err := Interpret(str, Params{
		Angle:            15 * math.Pi / 180,
		LengthDecay:      0.75,
		ThicknessDecay:   0.65,
		InitialLength:    2.5,
		InitialThickness: 0.25,
		LeafProbability:  0.4,
		GravityBias:      0.1,
	}, 7, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	for i, b := range skel.Branches {
		if b.EndThickness > b.StartThickness {
			t.Fatalf("branch %d thickens: %f -> %f", i, b.StartThickness, b.EndThickness)
		}
		if b.Parent < 0 {
			continue
		}
		parent := skel.Branches[b.Parent]
		if b.Depth < parent.Depth {
			t.Fatalf("branch %d depth %d shallower than parent depth %d", i, b.Depth, parent.Depth)
		}
		if b.StartThickness > parent.StartThickness || b.StartThickness > parent.EndThickness+1e-12 {
			t.Fatalf("branch %d thicker than parent %d", i, b.Parent)
		}
		if b.Length > parent.Length {
			t.Fatalf("branch %d longer than parent %d: %f > %f", i, b.Parent, b.Length, parent.Length)
		}
		if b.Start.Sub(parent.End).Len() > 1e-9 {
			t.Fatalf("branch %d does not start at its parent's end", i)
		}
	}
}

func TestInterpretUnmatchedPopIsMalformed(t *testing.T) {
	str := mustExpand(t, "F]F", grammar.Rules{}, 0)
	skel, err := Interpret(str, oakParams(), 1, Options{})
	if skel != nil {
		t.Fatalf("expected no skeleton on malformed grammar")
	}
	var malformed *MalformedGrammarError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedGrammarError, got %v", err)
	}
	if malformed.Index != 1 || malformed.Reason != "stack underflow" {
		t.Fatalf("unexpected error detail: %+v", malformed)
	}
}

func TestInterpretStackOverflowIsMalformed(t *testing.T) {
	str := mustExpand(t, "[[[F]]]", grammar.Rules{}, 0)
	if _, err := Interpret(str, oakParams(), 1, Options{MaxStackDepth: 3}); err != nil {
		t.Fatalf("depth 3 should fit: %v", err)
	}
	_, err := Interpret(str, oakParams(), 1, Options{MaxStackDepth: 2})
	var malformed *MalformedGrammarError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedGrammarError, got %v", err)
	}
	if malformed.Index != 2 {
		t.Fatalf("expected overflow at index 2, got %d", malformed.Index)
	}
}

func TestInterpretIsDeterministicPerSeed(t *testing.T) {
	str := mustExpand(t, "F", grammar.Rules{'F': "F[-F+F][+F-F]F"}, 3)
	a, err := Interpret(str, oakParams(), 99, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	b, err := Interpret(str, oakParams(), 99, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different skeletons")
	}
}

func TestInterpretLeafPlacement(t *testing.T) {
	str := mustExpand(t, "F[+F]FL", grammar.Rules{}, 0)

	p := oakParams()
	p.LeafProbability = 1
	skel, err := Interpret(str, p, 5, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	// Draw 3 ends its bracket, the explicit L follows draw 5.
	if len(skel.Leaves) != 2 {
		t.Fatalf("expected 2 leaves, got %d", len(skel.Leaves))
	}
	if got := skel.Leaves[0].Position; got.Sub(skel.Branches[1].End).Len() > 1e-9 {
		t.Fatalf("terminal leaf should sit at the branch tip, got %v", got)
	}
	for _, leaf := range skel.Leaves {
		if leaf.Size <= 0 || leaf.Size > 1 {
			t.Fatalf("leaf size out of range: %f", leaf.Size)
		}
	}

	p.LeafProbability = 0
	skel, err = Interpret(str, p, 5, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if len(skel.Leaves) != 0 {
		t.Fatalf("expected no leaves at probability 0, got %d", len(skel.Leaves))
	}
}

func TestInterpretMoveDoesNotDrawOrDecay(t *testing.T) {
	str := mustExpand(t, "fF", grammar.Rules{}, 0)
	skel, err := Interpret(str, oakParams(), 1, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if len(skel.Branches) != 1 {
		t.Fatalf("expected one branch, got %d", len(skel.Branches))
	}
	b := skel.Branches[0]
	if math.Abs(b.Start.Y()-2.0) > 1e-9 || b.Length != 2.0 || b.StartThickness != 0.3 {
		t.Fatalf("unexpected branch after move: %+v", b)
	}
}

func TestInterpretYawTurnsHeading(t *testing.T) {
	str := mustExpand(t, "+F", grammar.Rules{}, 0)
	p := oakParams()
	p.Angle = math.Pi / 2
	skel, err := Interpret(str, p, 1, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	end := skel.Branches[0].End
	if math.Abs(end.X()+2) > 1e-9 || math.Abs(end.Y()) > 1e-9 || math.Abs(end.Z()) > 1e-9 {
		t.Fatalf("expected end at (-2,0,0), got %v", end)
	}
}

func TestInterpretGravityBendsBranchesDown(t *testing.T) {
	str := mustExpand(t, "^FFFF", grammar.Rules{}, 0)
	p := oakParams()
	p.Angle = math.Pi / 3
	p.LengthDecay = 1

	straight, err := Interpret(str, p, 1, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	p.GravityBias = 0.4
	drooped, err := Interpret(str, p, 1, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	last := len(straight.Branches) - 1
	if drooped.Branches[last].End.Y() >= straight.Branches[last].End.Y() {
		t.Fatalf("gravity bias should lower the tip: %f >= %f", drooped.Branches[last].End.Y(), straight.Branches[last].End.Y())
	}
	if !drooped.Finite() {
		t.Fatalf("drooped skeleton has non-finite coordinates")
	}
}

func TestInterpretSectionsSplitEachDraw(t *testing.T) {
	str := mustExpand(t, "FF", grammar.Rules{}, 0)
	p := oakParams()
	p.Sections = 3

	skel, err := Interpret(str, p, 1, Options{})
	if err != nil {
		t.Fatalf("interpret: %v", err)
	}
	if len(skel.Branches) != 6 {
		t.Fatalf("expected 6 pieces, got %d", len(skel.Branches))
	}
	total := 0.0
	for i, b := range skel.Branches {
		if b.Parent != i-1 {
			t.Fatalf("piece %d parent %d, want %d", i, b.Parent, i-1)
		}
		if i > 0 && b.Start.Sub(skel.Branches[i-1].End).Len() > 1e-12 {
			t.Fatalf("piece %d does not start where %d ends", i, i-1)
		}
		if b.EndThickness > b.StartThickness {
			t.Fatalf("piece %d thickens", i)
		}
		total += b.Length
	}
	// 2.0 for the first draw, 2.0*0.7 for the second.
	if math.Abs(total-3.4) > 1e-9 {
		t.Fatalf("total length %f, want 3.4", total)
	}
	if got := skel.Branches[2].EndThickness; math.Abs(got-0.3*0.6) > 1e-12 {
		t.Fatalf("first draw should end at decayed thickness, got %f", got)
	}
}
