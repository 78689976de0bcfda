// Package terrain provides the height lookups placement consumes.
package terrain

import (
	"math"

	"github.com/ryan-organically/roanoke-engine/internal/config"
)

// HeightSource is the terrain collaborator: a pure height lookup over the
// horizontal plane. Implementations must be deterministic and safe for
// concurrent use.
type HeightSource interface {
	HeightAt(x, z float64) float64
}

// HeightFunc adapts a plain function to HeightSource.
type HeightFunc func(x, z float64) float64

func (f HeightFunc) HeightAt(x, z float64) float64 { return f(x, z) }

// Flat returns a source with the same height everywhere.
func Flat(h float64) HeightSource {
	return HeightFunc(func(float64, float64) float64 { return h })
}

// Shoreline profile: a land factor t in [0,1] maps piecewise onto heights.
// Water sits below 0, beach rises to 2, scrub to 6 and forest to 15.
var shoreline = []struct {
	t, height, roughness float64
}{
	{0.00, -5.0, 0.1},
	{0.45, -0.5, 0.1},
	{0.45, 0.0, 0.2},
	{0.55, 2.0, 0.2},
	{0.55, 2.0, 1.0},
	{0.75, 6.0, 1.0},
	{0.75, 6.0, 2.0},
	{1.00, 15.0, 2.0},
}

// NoiseHeight is a coastline built from hashed value noise: a low frequency
// land mask slopes toward the sea along +x, detail noise roughens the
// surface inland.
type NoiseHeight struct {
	cfg  config.TerrainConfig
	seed int64
}

func NewNoiseHeight(cfg config.TerrainConfig) *NoiseHeight {
	return &NoiseHeight{cfg: cfg, seed: cfg.Seed}
}

// HeightAt implements HeightSource.
func (g *NoiseHeight) HeightAt(x, z float64) float64 {
	mask := g.fractalNoise(x, z, g.cfg.Frequency, g.cfg.Octaves, g.seed+100)
	t := (mask+1)*0.5*0.3 - x*g.cfg.CoastGradient + 0.5
	t = clamp(t, 0, 1)

	base, roughness := profile(t)
	detail := g.fractalNoise(x, z, g.cfg.DetailFrequency, g.cfg.DetailOctaves, g.seed)
	if t < shoreline[1].t {
		// Sandbars only; open water stays below the beach.
		if detail > 0.5 {
			base += 0.4
		}
		return math.Min(base, -0.05)
	}
	return base + detail*roughness*g.cfg.Amplitude*0.5
}

// LandFactor exposes the coast mask in [0,1] for callers that want to
// orient themselves (0 is open sea, 1 deep inland).
func (g *NoiseHeight) LandFactor(x, z float64) float64 {
	mask := g.fractalNoise(x, z, g.cfg.Frequency, g.cfg.Octaves, g.seed+100)
	return clamp((mask+1)*0.5*0.3-x*g.cfg.CoastGradient+0.5, 0, 1)
}

func profile(t float64) (height, roughness float64) {
	for i := 1; i < len(shoreline); i++ {
		lo, hi := shoreline[i-1], shoreline[i]
		if t > hi.t || hi.t == lo.t {
			continue
		}
		s := (t - lo.t) / (hi.t - lo.t)
		return lerp(lo.height, hi.height, s), lo.roughness
	}
	last := shoreline[len(shoreline)-1]
	return last.height, last.roughness
}

func (g *NoiseHeight) fractalNoise(x, y, frequency float64, octaves int, seed int64) float64 {
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < octaves; i++ {
		noise := valueNoise(x*frequency, y*frequency, seed)
		noiseSum += noise * amplitude
		maxAmplitude += amplitude
		amplitude *= g.cfg.Persistence
		frequency *= g.cfg.Lacunarity
	}

	if maxAmplitude == 0 {
		return 0
	}
	return noiseSum / maxAmplitude
}

func valueNoise(x, y float64, seed int64) float64 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := x0 + 1
	y1 := y0 + 1

	sx := smooth(x - float64(x0))
	sy := smooth(y - float64(y0))

	n0 := random2D(x0, y0, seed)
	n1 := random2D(x1, y0, seed)
	ix0 := lerp(n0, n1, sx)

	n2 := random2D(x0, y1, seed)
	n3 := random2D(x1, y1, seed)
	ix1 := lerp(n2, n3, sx)

	return lerp(ix0, ix1, sy)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func random2D(x, y int, seed int64) float64 {
	return float64(hash3(x, y, int(seed))&0xFFFF)/0x8000 - 1.0
}

func hash3(x, y, z int) uint32 {
	h := uint32(x*374761393 + y*668265263 + z*2147483647)
	h = (h ^ (h >> 13)) * 1274126177
	return h ^ (h >> 16)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
