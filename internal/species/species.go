// Package species holds the plant recipes the generator grows: the
// grammar, the turtle parameters and the mesh resolution of each species.
package species

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/ryan-organically/roanoke-engine/internal/grammar"
	"github.com/ryan-organically/roanoke-engine/internal/turtle"
)

// ID identifies a built-in species. Recipes added from a catalog file use
// Custom.
type ID uint8

const (
	Oak ID = iota
	Pine
	Willow
	Birch
	Palm
	Maple
	Spruce
	Custom
)

var idNames = [...]string{
	Oak:    "oak",
	Pine:   "pine",
	Willow: "willow",
	Birch:  "birch",
	Palm:   "palm",
	Maple:  "maple",
	Spruce: "spruce",
	Custom: "custom",
}

func (id ID) String() string {
	if int(id) < len(idNames) {
		return idNames[id]
	}
	return fmt.Sprintf("species(%d)", uint8(id))
}

// ParseID resolves a built-in species name, case-insensitively.
func ParseID(name string) (ID, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for id := Oak; id < Custom; id++ {
		if idNames[id] == key {
			return id, nil
		}
	}
	builtin := make([]string, 0, int(Custom))
	for id := Oak; id < Custom; id++ {
		builtin = append(builtin, idNames[id])
	}
	return Custom, unknownName(name, builtin)
}

// Recipe is the immutable description of one species.
type Recipe struct {
	ID               ID
	Name             string
	Axiom            string
	Rules            grammar.Rules
	Iterations       int
	Angle            float64 // degrees
	LengthDecay      float64
	ThicknessDecay   float64
	InitialLength    float64
	InitialThickness float64
	LeafProbability  float64
	GravityBias      float64
	RadialSegments   int
	BranchSegments   int
}

// TurtleParams converts the recipe into interpreter parameters.
func (r Recipe) TurtleParams() turtle.Params {
	return turtle.Params{
		Angle:            r.Angle * math.Pi / 180,
		LengthDecay:      r.LengthDecay,
		ThicknessDecay:   r.ThicknessDecay,
		InitialLength:    r.InitialLength,
		InitialThickness: r.InitialThickness,
		LeafProbability:  r.LeafProbability,
		GravityBias:      r.GravityBias,
		Sections:         r.BranchSegments,
	}
}

// Validate checks the grammar and the numeric parameters.
func (r Recipe) Validate() error {
	if err := grammar.Validate(r.Name, r.Axiom, r.Rules); err != nil {
		return &ConfigError{Species: r.Name, Field: "grammar", Err: err}
	}
	fail := func(field, reason string) error {
		return &ConfigError{Species: r.Name, Field: field, Err: errors.New(reason)}
	}
	for _, f := range []struct {
		field string
		value float64
	}{
		{"angle", r.Angle},
		{"length_decay", r.LengthDecay},
		{"thickness_decay", r.ThicknessDecay},
		{"initial_length", r.InitialLength},
		{"initial_thickness", r.InitialThickness},
		{"leaf_probability", r.LeafProbability},
		{"gravity_bias", r.GravityBias},
	} {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fail(f.field, "must be a finite number")
		}
	}
	switch {
	case r.Iterations < 0:
		return fail("iterations", "must not be negative")
	case r.LengthDecay <= 0 || r.LengthDecay > 1:
		return fail("length_decay", "must be in (0, 1]")
	case r.ThicknessDecay <= 0 || r.ThicknessDecay > 1:
		return fail("thickness_decay", "must be in (0, 1]")
	case r.InitialLength <= 0:
		return fail("initial_length", "must be positive")
	case r.InitialThickness <= 0:
		return fail("initial_thickness", "must be positive")
	case r.LeafProbability < 0 || r.LeafProbability > 1:
		return fail("leaf_probability", "must be in [0, 1]")
	case r.GravityBias < 0:
		return fail("gravity_bias", "must not be negative")
	case r.RadialSegments < 3:
		return fail("radial_segments", "must be at least 3")
	case r.BranchSegments < 1:
		return fail("branch_segments", "must be at least 1")
	}
	return nil
}

// ConfigError rejects a recipe at catalog load. Err holds the cause, which
// may be a *grammar.ConfigError.
type ConfigError struct {
	Species string
	Field   string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("species %q: %v", e.Species, e.Err)
	}
	return fmt.Sprintf("species %q: %s: %v", e.Species, e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UnknownNameError is returned for a species name that matches nothing.
// Suggestion is the closest known name, if any is close enough.
type UnknownNameError struct {
	Name       string
	Suggestion string
}

func (e *UnknownNameError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown species %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown species %q", e.Name)
}

func unknownName(name string, known []string) error {
	key := strings.ToLower(strings.TrimSpace(name))
	best, bestDist := "", math.MaxInt
	for _, cand := range known {
		dist := levenshtein.ComputeDistance(key, cand)
		if dist > suggestLimit(len(cand)) {
			continue
		}
		if dist < bestDist || (dist == bestDist && cand < best) {
			best, bestDist = cand, dist
		}
	}
	return &UnknownNameError{Name: name, Suggestion: best}
}

func suggestLimit(length int) int {
	switch {
	case length <= 4:
		return 1
	case length <= 8:
		return 2
	default:
		return 3
	}
}

// Catalog is a name-keyed recipe table. It is not modified after
// construction.
type Catalog struct {
	recipes map[string]Recipe
	names   []string
}

func newCatalog(recipes []Recipe) *Catalog {
	c := &Catalog{recipes: make(map[string]Recipe, len(recipes))}
	for _, r := range recipes {
		c.recipes[r.Name] = r
	}
	c.names = make([]string, 0, len(c.recipes))
	for name := range c.recipes {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	return c
}

// Lookup returns the recipe for name.
func (c *Catalog) Lookup(name string) (Recipe, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if r, ok := c.recipes[key]; ok {
		return r, nil
	}
	return Recipe{}, unknownName(name, c.names)
}

// Get returns the recipe of a built-in species.
func (c *Catalog) Get(id ID) (Recipe, bool) {
	if id >= Custom {
		return Recipe{}, false
	}
	r, ok := c.recipes[idNames[id]]
	return r, ok
}

// Names lists recipe names in sorted order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

func (c *Catalog) Len() int { return len(c.names) }

// Builtin returns the catalog of the seven built-in species.
func Builtin() *Catalog {
	return newCatalog(builtinRecipes())
}

func builtinRecipes() []Recipe {
	return []Recipe{
		{
			ID: Oak, Name: "oak", Axiom: "F",
			Rules:      grammar.Rules{'F': "FF-[-F+F+F]+[+F-F-F]"},
			Iterations: 2, Angle: 22.5,
			LengthDecay: 0.7, ThicknessDecay: 0.6,
			InitialLength: 2.0, InitialThickness: 0.3,
			LeafProbability: 0.3,
			RadialSegments:  4, BranchSegments: 3,
		},
		{
			ID: Pine, Name: "pine", Axiom: "F",
			Rules:      grammar.Rules{'F': "FF[-F][+F]F"},
			Iterations: 3, Angle: 15,
			LengthDecay: 0.75, ThicknessDecay: 0.65,
			InitialLength: 2.5, InitialThickness: 0.25,
			LeafProbability: 0.4,
			RadialSegments:  4, BranchSegments: 2,
		},
		{
			ID: Willow, Name: "willow", Axiom: "F",
			Rules:      grammar.Rules{'F': "F[--F][++F]F"},
			Iterations: 5, Angle: 25,
			LengthDecay: 0.8, ThicknessDecay: 0.55,
			InitialLength: 1.8, InitialThickness: 0.28,
			LeafProbability: 0.5, GravityBias: 0.35,
			RadialSegments: 4, BranchSegments: 3,
		},
		{
			ID: Birch, Name: "birch", Axiom: "F",
			Rules:      grammar.Rules{'F': "FF[-F+F][+F-F]"},
			Iterations: 5, Angle: 20,
			LengthDecay: 0.65, ThicknessDecay: 0.7,
			InitialLength: 2.2, InitialThickness: 0.2,
			LeafProbability: 0.35,
			RadialSegments:  5, BranchSegments: 3,
		},
		{
			ID: Palm, Name: "palm", Axiom: "FFFFFFL",
			Rules:      grammar.Rules{'F': "FF", 'L': "[++++L][----L][++L][--L]"},
			Iterations: 2, Angle: 35,
			LengthDecay: 1.0, ThicknessDecay: 0.9,
			InitialLength: 3.0, InitialThickness: 0.35,
			LeafProbability: 1.0,
			RadialSegments:  5, BranchSegments: 2,
		},
		{
			ID: Maple, Name: "maple", Axiom: "F",
			Rules:      grammar.Rules{'F': "F[-F+F][+F-F]F"},
			Iterations: 3, Angle: 28,
			LengthDecay: 0.68, ThicknessDecay: 0.58,
			InitialLength: 2.0, InitialThickness: 0.32,
			LeafProbability: 0.4,
			RadialSegments:  4, BranchSegments: 3,
		},
		{
			ID: Spruce, Name: "spruce", Axiom: "F",
			Rules:      grammar.Rules{'F': "FF[--F][+F][++F]"},
			Iterations: 3, Angle: 18,
			LengthDecay: 0.73, ThicknessDecay: 0.68,
			InitialLength: 2.8, InitialThickness: 0.22,
			LeafProbability: 0.5,
			RadialSegments:  4, BranchSegments: 2,
		},
	}
}
