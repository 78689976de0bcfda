// Package budget enforces the per-chunk geometry ceiling.
package budget

import (
	"fmt"

	"github.com/ryan-organically/roanoke-engine/internal/mesh"
)

// Limits bounds one chunk. Every field must be positive.
type Limits struct {
	MaxVertices int64
	MaxIndices  int64
	MaxBytes    int64
}

// Totals is what a chunk has accepted so far.
type Totals struct {
	Vertices int64
	Indices  int64
	Bytes    int64
}

func totalsOf(s mesh.Size) Totals {
	return Totals{Vertices: s.Vertices, Indices: s.Indices, Bytes: s.Bytes()}
}

func (t Totals) add(o Totals) Totals {
	return Totals{Vertices: t.Vertices + o.Vertices, Indices: t.Indices + o.Indices, Bytes: t.Bytes + o.Bytes}
}

// Verdict is the outcome of Admit.
type Verdict struct {
	Admitted bool
	// Resource names the first exceeded ceiling when Admitted is false.
	Resource  string
	Requested int64
	Allowed   int64
}

// CapacityExceededError describes a refused admission.
type CapacityExceededError struct {
	Resource  string
	Requested int64
	Allowed   int64
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("chunk %s budget exceeded: requested %d, allowed %d", e.Resource, e.Requested, e.Allowed)
}

// Err returns nil for an admitted verdict and a *CapacityExceededError
// otherwise.
func (v Verdict) Err() error {
	if v.Admitted {
		return nil
	}
	return &CapacityExceededError{Resource: v.Resource, Requested: v.Requested, Allowed: v.Allowed}
}

// Guard tracks one chunk's running totals. Once an admission fails the
// chunk is truncated and every later Admit is refused, so a chunk keeps a
// prefix of its instances in placement order. A Guard belongs to a single
// chunk task and is not safe for concurrent use.
type Guard struct {
	limits    Limits
	totals    Totals
	truncated bool
	refusal   Verdict
}

func NewGuard(limits Limits) *Guard {
	return &Guard{limits: limits}
}

// Admit checks whether an instance of the given uncapped size still fits.
func (g *Guard) Admit(estimate mesh.Size) Verdict {
	if g.truncated {
		return g.refusal
	}
	next := g.totals.add(totalsOf(estimate))
	checks := []struct {
		resource  string
		requested int64
		allowed   int64
	}{
		{"vertices", next.Vertices, g.limits.MaxVertices},
		{"indices", next.Indices, g.limits.MaxIndices},
		{"bytes", next.Bytes, g.limits.MaxBytes},
	}
	for _, c := range checks {
		if c.requested > c.allowed {
			g.truncated = true
			g.refusal = Verdict{Resource: c.resource, Requested: c.requested, Allowed: c.allowed}
			return g.refusal
		}
	}
	return Verdict{Admitted: true}
}

// Commit records what an admitted instance actually produced, which may be
// less than its estimate when the instance itself was truncated.
func (g *Guard) Commit(actual mesh.Size) {
	g.totals = g.totals.add(totalsOf(actual))
}

func (g *Guard) Totals() Totals { return g.totals }

// Truncated reports whether any admission has been refused.
func (g *Guard) Truncated() bool { return g.truncated }

// Refusal returns the verdict that truncated the chunk.
func (g *Guard) Refusal() (Verdict, bool) { return g.refusal, g.truncated }
