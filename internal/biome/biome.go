// Package biome classifies terrain heights into vegetation bands.
package biome

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

type Category uint8

const (
	Water Category = iota
	Beach
	Scrub
	ForestEdge
	DeepForest
)

var categoryNames = [...]string{
	Water:      "water",
	Beach:      "beach",
	Scrub:      "scrub",
	ForestEdge: "forest_edge",
	DeepForest: "deep_forest",
}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// ParseCategory accepts the String form, case-insensitively.
func ParseCategory(name string) (Category, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for i, n := range categoryNames {
		if n == key {
			return Category(i), nil
		}
	}
	return Water, fmt.Errorf("unknown biome category %q", name)
}

// continuityTolerance is the largest density jump accepted at a band
// boundary.
const continuityTolerance = 1e-9

// Band is one height range. Floor is inclusive and Ceiling exclusive. The
// last band is terminal: its Ceiling is ignored and its density stays at
// DensityAtFloor.
type Band struct {
	Category         Category
	Floor            float64
	Ceiling          float64
	DensityAtFloor   float64
	DensityAtCeiling float64
	Weights          map[string]float64
}

// Weight is one normalized entry of a species distribution.
type Weight struct {
	Species string
	Weight  float64
}

// Sample is the classification of one height.
type Sample struct {
	Category Category
	Density  float64
	Weights  []Weight
}

// Pick maps u in [0,1) onto the species distribution.
func (s Sample) Pick(u float64) (string, bool) {
	if len(s.Weights) == 0 {
		return "", false
	}
	acc := 0.0
	for _, w := range s.Weights {
		acc += w.Weight
		if u < acc {
			return w.Species, true
		}
	}
	// Rounding can leave the cumulative sum a hair under 1.
	return s.Weights[len(s.Weights)-1].Species, true
}

// ConfigError rejects a band table.
type ConfigError struct {
	Band   int
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Band < 0 {
		return "biome bands: " + e.Reason
	}
	return fmt.Sprintf("biome band %d: %s", e.Band, e.Reason)
}

type band struct {
	Band
	weights []Weight
}

// Classifier maps heights to samples. Heights below the first band's floor
// are Water. It is immutable and safe for concurrent use.
type Classifier struct {
	bands []band
}

// NewClassifier validates bands and normalizes their weights.
func NewClassifier(bands []Band) (*Classifier, error) {
	if len(bands) == 0 {
		return nil, &ConfigError{Band: -1, Reason: "no bands configured"}
	}
	c := &Classifier{bands: make([]band, len(bands))}
	for i, b := range bands {
		terminal := i == len(bands)-1
		if b.Category == Water {
			return nil, &ConfigError{Band: i, Reason: "water is implied below the first band"}
		}
		if math.IsNaN(b.Floor) || math.IsInf(b.Floor, 0) {
			return nil, &ConfigError{Band: i, Reason: "floor must be finite"}
		}
		if !terminal && !(b.Ceiling > b.Floor) {
			return nil, &ConfigError{Band: i, Reason: fmt.Sprintf("ceiling %v not above floor %v", b.Ceiling, b.Floor)}
		}
		if !(b.DensityAtFloor >= 0 && b.DensityAtFloor <= 1) {
			return nil, &ConfigError{Band: i, Reason: "density at floor outside [0, 1]"}
		}
		if !terminal {
			if !(b.DensityAtCeiling >= 0 && b.DensityAtCeiling <= 1) {
				return nil, &ConfigError{Band: i, Reason: "density at ceiling outside [0, 1]"}
			}
			if b.DensityAtCeiling < b.DensityAtFloor {
				return nil, &ConfigError{Band: i, Reason: "density decreases within the band"}
			}
		}
		if i == 0 && math.Abs(b.DensityAtFloor) > continuityTolerance {
			return nil, &ConfigError{Band: i, Reason: "first band must start at density 0 to meet water"}
		}
		if i > 0 {
			prev := bands[i-1]
			if b.Floor != prev.Ceiling {
				return nil, &ConfigError{Band: i, Reason: fmt.Sprintf("floor %v does not meet previous ceiling %v", b.Floor, prev.Ceiling)}
			}
			if math.Abs(b.DensityAtFloor-prev.DensityAtCeiling) > continuityTolerance {
				return nil, &ConfigError{Band: i, Reason: fmt.Sprintf("density jumps from %v to %v at height %v", prev.DensityAtCeiling, b.DensityAtFloor, b.Floor)}
			}
		}
		weights, err := normalize(b.Weights)
		if err != nil {
			return nil, &ConfigError{Band: i, Reason: err.Error()}
		}
		c.bands[i] = band{Band: b, weights: weights}
	}
	return c, nil
}

func normalize(in map[string]float64) ([]Weight, error) {
	total := 0.0
	for name, w := range in {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("weight for %q must be a non-negative number", name)
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("species weights sum to zero")
	}
	out := make([]Weight, 0, len(in))
	for name, w := range in {
		if w == 0 {
			continue
		}
		out = append(out, Weight{Species: name, Weight: w / total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Species < out[j].Species })
	return out, nil
}

// Classify returns the sample for height. NaN classifies as Water.
func (c *Classifier) Classify(height float64) Sample {
	if math.IsNaN(height) || height < c.bands[0].Floor {
		return Sample{Category: Water}
	}
	last := len(c.bands) - 1
	i := sort.Search(last, func(i int) bool { return height < c.bands[i].Ceiling })
	b := c.bands[i]
	density := b.DensityAtFloor
	if i < last {
		t := (height - b.Floor) / (b.Ceiling - b.Floor)
		density = b.DensityAtFloor + t*(b.DensityAtCeiling-b.DensityAtFloor)
	}
	return Sample{Category: b.Category, Density: density, Weights: b.weights}
}

// Species lists every species named with a non-zero weight in any band.
func (c *Classifier) Species() []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range c.bands {
		for _, w := range b.weights {
			if !seen[w.Species] {
				seen[w.Species] = true
				out = append(out, w.Species)
			}
		}
	}
	sort.Strings(out)
	return out
}

// DefaultBands is the coastal-to-interior band table used when no
// configuration overrides it.
func DefaultBands() []Band {
	return []Band{
		{Category: Beach, Floor: 0, Ceiling: 2, DensityAtFloor: 0, DensityAtCeiling: 0.02,
			Weights: map[string]float64{"palm": 1}},
		{Category: Scrub, Floor: 2, Ceiling: 6, DensityAtFloor: 0.02, DensityAtCeiling: 0.1,
			Weights: map[string]float64{"birch": 0.4, "maple": 0.3, "palm": 0.3}},
		{Category: ForestEdge, Floor: 6, Ceiling: 12, DensityAtFloor: 0.1, DensityAtCeiling: 0.45,
			Weights: map[string]float64{"oak": 0.35, "maple": 0.25, "birch": 0.25, "willow": 0.15}},
		{Category: DeepForest, Floor: 12, DensityAtFloor: 0.45,
			Weights: map[string]float64{"pine": 0.4, "spruce": 0.4, "oak": 0.2}},
	}
}
