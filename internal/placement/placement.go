// Package placement scatters plant candidates over a chunk and decides,
// per candidate, whether a plant grows there and which species it is.
package placement

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ryan-organically/roanoke-engine/internal/biome"
	"github.com/ryan-organically/roanoke-engine/internal/seed"
	"github.com/ryan-organically/roanoke-engine/internal/terrain"
)

// Lanes of the per-position stream.
const (
	laneAccept  = 0
	laneSpecies = 1
	laneSeed    = 2

	jitterLane = 0x6a177e5
)

// Request is one accepted candidate. Position.Y is the terrain height.
type Request struct {
	Index    int
	Position mgl64.Vec3
	Species  string
	Seed     uint64
	Category biome.Category
	Density  float64
}

// Sampler is a pure function of its inputs: the same origin, size and seed
// always yield the same requests in the same order.
type Sampler struct {
	heights    terrain.HeightSource
	classifier *biome.Classifier
	spacing    float64
}

func NewSampler(heights terrain.HeightSource, classifier *biome.Classifier, spacing float64) (*Sampler, error) {
	if heights == nil || classifier == nil {
		return nil, errors.New("placement: height source and classifier are required")
	}
	if !(spacing > 0) || math.IsInf(spacing, 0) {
		return nil, errors.New("placement: candidate spacing must be positive")
	}
	return &Sampler{heights: heights, classifier: classifier, spacing: spacing}, nil
}

// Candidate is one jittered grid point before filtering.
type Candidate struct {
	X, Z float64
}

// Candidates lists the jittered grid points inside the square
// [originX, originX+size) x [originZ, originZ+size), row by row. Cells are
// indexed in world space, so neighbouring chunks never share a candidate.
func (s *Sampler) Candidates(originX, originZ, size float64, worldSeed uint64) []Candidate {
	if !(size > 0) {
		return nil
	}
	jitter := seed.Lane(worldSeed, jitterLane)
	firstX, lastX := s.cellRange(originX, size)
	firstZ, lastZ := s.cellRange(originZ, size)

	out := make([]Candidate, 0, (lastX-firstX+1)*(lastZ-firstZ+1))
	for cz := firstZ; cz <= lastZ; cz++ {
		for cx := firstX; cx <= lastX; cx++ {
			cell := seed.Cell(jitter, cx, cz)
			x := (float64(cx) + seed.UnitAt(cell, 0)) * s.spacing
			z := (float64(cz) + seed.UnitAt(cell, 1)) * s.spacing
			if x < originX || x >= originX+size || z < originZ || z >= originZ+size {
				continue
			}
			out = append(out, Candidate{X: x, Z: z})
		}
	}
	return out
}

func (s *Sampler) cellRange(origin, size float64) (int64, int64) {
	first := int64(math.Floor(origin / s.spacing))
	last := int64(math.Ceil((origin+size)/s.spacing)) - 1
	return first, last
}

// Place filters the chunk's candidates through the biome density and picks
// a species for each survivor.
func (s *Sampler) Place(originX, originZ, size float64, worldSeed uint64) []Request {
	var out []Request
	for _, c := range s.Candidates(originX, originZ, size, worldSeed) {
		key := seed.Position(worldSeed, c.X, c.Z)
		height := s.heights.HeightAt(c.X, c.Z)
		sample := s.classifier.Classify(height)
		if sample.Category == biome.Water {
			continue
		}
		if seed.UnitAt(key, laneAccept) >= sample.Density {
			continue
		}
		species, ok := sample.Pick(seed.UnitAt(key, laneSpecies))
		if !ok {
			continue
		}
		out = append(out, Request{
			Index:    len(out),
			Position: mgl64.Vec3{c.X, height, c.Z},
			Species:  species,
			Seed:     seed.At(key, laneSeed),
			Category: sample.Category,
			Density:  sample.Density,
		})
	}
	return out
}
