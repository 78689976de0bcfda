// Package forest generates the vegetation of one chunk: it places plants,
// grows each from its species recipe and merges the meshes into one buffer
// pair under the chunk budget.
package forest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/ryan-organically/roanoke-engine/internal/biome"
	"github.com/ryan-organically/roanoke-engine/internal/budget"
	"github.com/ryan-organically/roanoke-engine/internal/config"
	"github.com/ryan-organically/roanoke-engine/internal/diagnostics"
	"github.com/ryan-organically/roanoke-engine/internal/grammar"
	"github.com/ryan-organically/roanoke-engine/internal/mesh"
	"github.com/ryan-organically/roanoke-engine/internal/placement"
	"github.com/ryan-organically/roanoke-engine/internal/seed"
	"github.com/ryan-organically/roanoke-engine/internal/species"
	"github.com/ryan-organically/roanoke-engine/internal/terrain"
	"github.com/ryan-organically/roanoke-engine/internal/turtle"
)

// ChunkCoord indexes a square chunk on the horizontal plane.
type ChunkCoord struct {
	X int64
	Z int64
}

func (c ChunkCoord) String() string {
	return strconv.FormatInt(c.X, 10) + "," + strconv.FormatInt(c.Z, 10)
}

// Lane of the instance seed that shapes a plant. The turtle uses lanes 1
// and 2 for leaves.
const laneShape = 3

// Plants are scaled within [minScale, minScale+scaleSpread]; half of the
// spread follows the biome density.
const (
	minScale    = 0.8
	scaleSpread = 0.4
)

// shape turns and scales a plant from its seed and the density of the
// ground it grows on.
func shape(req placement.Request) mesh.Transform {
	s := seed.Lane(req.Seed, laneShape)
	return mesh.Transform{
		Origin: req.Position,
		Yaw:    seed.UnitAt(s, 0) * 2 * math.Pi,
		Scale:  minScale + scaleSpread*(0.5*req.Density+0.5*seed.UnitAt(s, 1)),
	}
}

// Instance is one grown plant. Its geometry lives in the chunk's merged
// buffers at [FirstVertex, FirstVertex+Size.Vertices) and
// [FirstIndex, FirstIndex+Size.Indices). Skeleton is in the plant's own
// frame, before Yaw and Scale.
type Instance struct {
	Index       int
	Position    mgl64.Vec3
	Yaw         float64
	Scale       float64
	Species     species.ID
	SpeciesName string
	Seed        uint64
	Category    biome.Category
	Skeleton    *turtle.Skeleton
	FirstVertex int
	FirstIndex  int
	Size        mesh.Size
	Truncated   bool
}

// Chunk is the immutable result of one generation.
type Chunk struct {
	Coord     ChunkCoord
	Origin    mgl64.Vec3
	Size      float64
	Instances []Instance
	Mesh      *mesh.Mesh
	Totals    budget.Totals
	Truncated bool
	// Refusal is the budget verdict that truncated the chunk.
	Refusal budget.Verdict
	// Skipped counts instances dropped for malformed grammar.
	Skipped int
}

// plan is a species prepared for growing: its grammar expanded once.
type plan struct {
	recipe species.Recipe
	str    grammar.String
	params turtle.Params
}

// Generator produces chunks. It holds no mutable state, so Generate may be
// called from any number of goroutines.
type Generator struct {
	seed        uint64
	chunkSize   float64
	sampler     *placement.Sampler
	plans       map[string]*plan
	builder     mesh.Builder
	chunkLimits budget.Limits
	turtleOpts  turtle.Options
	sink        diagnostics.Sink
}

// New prepares a generator. A nil catalog selects the built-in species and
// a nil height source selects terrain.NoiseHeight over cfg.Terrain. Every
// species named by a biome band must exist in the catalog. Diagnostics are
// logged as warnings and also passed to sink when it is non-nil.
func New(cfg *config.Config, catalog *species.Catalog, heights terrain.HeightSource, sink diagnostics.Sink) (*Generator, error) {
	if cfg == nil {
		return nil, errors.New("forest: nil config")
	}
	if catalog == nil {
		catalog = species.Builtin()
	}
	if heights == nil {
		heights = terrain.NewNoiseHeight(cfg.Terrain)
	}
	// Events always reach the structured log; sink adds any other consumer.
	sink = diagnostics.Multi(diagnostics.LogSink{}, sink)

	bands, err := bandsFromConfig(cfg.Biomes)
	if err != nil {
		return nil, err
	}
	classifier, err := biome.NewClassifier(bands)
	if err != nil {
		return nil, fmt.Errorf("forest: %w", err)
	}
	sampler, err := placement.NewSampler(heights, classifier, cfg.Generation.CandidateSpacing)
	if err != nil {
		return nil, fmt.Errorf("forest: %w", err)
	}

	g := &Generator{
		seed:      cfg.Generation.Seed,
		chunkSize: cfg.Generation.ChunkSize,
		sampler:   sampler,
		plans:     make(map[string]*plan),
		builder: mesh.Builder{Limits: mesh.Limits{
			MaxVertices: cfg.Limits.InstanceMaxVertices,
			MaxIndices:  cfg.Limits.InstanceMaxIndices,
		}},
		chunkLimits: budget.Limits{
			MaxVertices: cfg.Limits.ChunkMaxVertices,
			MaxIndices:  cfg.Limits.ChunkMaxIndices,
			MaxBytes:    cfg.Limits.ChunkMaxBytes,
		},
		turtleOpts: turtle.Options{MaxStackDepth: cfg.Limits.MaxStackDepth},
		sink:       sink,
	}

	limits := grammar.Limits{MaxSymbols: cfg.Limits.MaxSymbols}
	for _, name := range classifier.Species() {
		recipe, err := catalog.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("forest: biome weights: %w", err)
		}
		str, report, err := grammar.Expand(recipe.Name, recipe.Axiom, recipe.Rules, recipe.Iterations, limits)
		if err != nil {
			return nil, fmt.Errorf("forest: %w", &species.ConfigError{Species: recipe.Name, Field: "grammar", Err: err})
		}
		if report.Clamped() {
			sink.Report(diagnostics.Event{
				Kind:      diagnostics.KindGrammarClamped,
				Instance:  -1,
				Species:   recipe.Name,
				Reason:    fmt.Sprintf("iterations lowered from %d to %d", report.Requested, report.Effective),
				Requested: report.Projected,
				Allowed:   int64(report.Limit),
			})
		}
		diagnostics.Logger().Debug("species prepared",
			slog.String("species", recipe.Name),
			slog.Int("symbols", str.Len()),
			slog.Int("iterations", str.Iterations()))
		g.plans[name] = &plan{recipe: recipe, str: str, params: recipe.TurtleParams()}
	}
	return g, nil
}

func bandsFromConfig(cfg config.BiomesConfig) ([]biome.Band, error) {
	if len(cfg.Bands) == 0 {
		return biome.DefaultBands(), nil
	}
	bands := make([]biome.Band, len(cfg.Bands))
	for i, b := range cfg.Bands {
		category, err := biome.ParseCategory(b.Category)
		if err != nil {
			return nil, fmt.Errorf("forest: biomes.bands[%d]: %w", i, err)
		}
		weights := make(map[string]float64, len(b.Weights))
		for name, w := range b.Weights {
			weights[name] = w
		}
		bands[i] = biome.Band{
			Category:         category,
			Floor:            b.Floor,
			Ceiling:          b.Ceiling,
			DensityAtFloor:   b.DensityAtFloor,
			DensityAtCeiling: b.DensityAtCeiling,
			Weights:          weights,
		}
	}
	return bands, nil
}

// ChunkSize is the side length of every chunk.
func (g *Generator) ChunkSize() float64 { return g.chunkSize }

// Origin returns the world position of a chunk's minimum corner.
func (g *Generator) Origin(coord ChunkCoord) mgl64.Vec3 {
	return mgl64.Vec3{float64(coord.X) * g.chunkSize, 0, float64(coord.Z) * g.chunkSize}
}

// Generate grows every plant placed in the chunk. It is a pure function of
// the generator's inputs and coord; the only error it returns is the
// context's.
func (g *Generator) Generate(ctx context.Context, coord ChunkCoord) (*Chunk, error) {
	origin := g.Origin(coord)
	chunk := &Chunk{Coord: coord, Origin: origin, Size: g.chunkSize, Mesh: &mesh.Mesh{}}
	id := coord.String()
	log := diagnostics.Logger()
	log.Debug("chunk generation started", slog.String("chunk", id))

	requests := g.sampler.Place(origin.X(), origin.Z(), g.chunkSize, g.seed)
	guard := budget.NewGuard(g.chunkLimits)

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := g.plans[req.Species]

		skel, err := turtle.Interpret(p.str, p.params, req.Seed, g.turtleOpts)
		if err != nil {
			var malformed *turtle.MalformedGrammarError
			if !errors.As(err, &malformed) {
				return nil, err
			}
			chunk.Skipped++
			g.sink.Report(diagnostics.Event{
				Kind:     diagnostics.KindMalformedGrammar,
				Chunk:    id,
				Instance: req.Index,
				Species:  p.recipe.Name,
				Reason:   malformed.Error(),
			})
			continue
		}

		estimate := mesh.Estimate(skel, p.recipe.RadialSegments)
		if verdict := guard.Admit(estimate); !verdict.Admitted {
			chunk.Truncated = true
			chunk.Refusal = verdict
			g.sink.Report(diagnostics.Event{
				Kind:      diagnostics.KindChunkTruncated,
				Chunk:     id,
				Instance:  req.Index,
				Species:   p.recipe.Name,
				Reason:    verdict.Err().Error(),
				Requested: verdict.Requested,
				Allowed:   verdict.Allowed,
			})
			break
		}

		xf := shape(req)
		m, trunc := g.builder.Build(skel, p.recipe.RadialSegments, xf)
		if trunc.Truncated {
			g.sink.Report(diagnostics.Event{
				Kind:      diagnostics.KindInstanceTruncated,
				Chunk:     id,
				Instance:  req.Index,
				Species:   p.recipe.Name,
				Reason:    trunc.Reason,
				Requested: trunc.RequestedAmount(),
				Allowed:   trunc.Allowed,
			})
		}
		guard.Commit(m.Size())

		chunk.Instances = append(chunk.Instances, Instance{
			Index:       req.Index,
			Position:    req.Position,
			Yaw:         xf.Yaw,
			Scale:       xf.Scale,
			Species:     p.recipe.ID,
			SpeciesName: p.recipe.Name,
			Seed:        req.Seed,
			Category:    req.Category,
			Skeleton:    skel,
			FirstVertex: len(chunk.Mesh.Vertices),
			FirstIndex:  len(chunk.Mesh.Indices),
			Size:        m.Size(),
			Truncated:   trunc.Truncated,
		})
		chunk.Mesh.Append(m)
	}

	chunk.Totals = guard.Totals()
	log.Debug("chunk generation finished",
		slog.String("chunk", id),
		slog.Int("candidates", len(requests)),
		slog.Int("instances", len(chunk.Instances)),
		slog.Int64("vertices", chunk.Totals.Vertices),
		slog.Bool("truncated", chunk.Truncated))
	return chunk, nil
}
