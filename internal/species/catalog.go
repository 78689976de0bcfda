package species

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ryan-organically/roanoke-engine/internal/grammar"
)

// recipeFile is one catalog entry. Unset fields keep the built-in value
// when the entry names a built-in species.
type recipeFile struct {
	Axiom            *string           `yaml:"axiom"`
	Rules            map[string]string `yaml:"rules"`
	Iterations       *int              `yaml:"iterations"`
	Angle            *float64          `yaml:"angle"`
	LengthDecay      *float64          `yaml:"length_decay"`
	ThicknessDecay   *float64          `yaml:"thickness_decay"`
	InitialLength    *float64          `yaml:"initial_length"`
	InitialThickness *float64          `yaml:"initial_thickness"`
	LeafProbability  *float64          `yaml:"leaf_probability"`
	GravityBias      *float64          `yaml:"gravity_bias"`
	RadialSegments   *int              `yaml:"radial_segments"`
	BranchSegments   *int              `yaml:"branch_segments"`
}

type catalogFile struct {
	Species map[string]recipeFile `yaml:"species"`
}

// LoadCatalog reads recipe overrides and additions from a YAML file and
// layers them over the built-in catalog.
//
// Each entry is validated on its own. Entries that fail are left out (a
// failing override keeps the built-in recipe) and their *ConfigError
// values are joined into the returned error, so the catalog is usable even
// when err is non-nil. I/O and YAML syntax errors return a nil catalog.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog is LoadCatalog on an in-memory document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	base := builtinRecipes()
	byName := make(map[string]Recipe, len(base)+len(file.Species))
	builtinNames := make([]string, 0, len(base))
	for _, r := range base {
		byName[r.Name] = r
		builtinNames = append(builtinNames, r.Name)
	}

	names := make([]string, 0, len(file.Species))
	for name := range file.Species {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		entry := file.Species[raw]
		recipe, builtin := byName[name]
		if !builtin {
			if entry.Axiom == nil {
				// A new species must bring its own grammar; a nameless
				// override is most likely a misspelt built-in.
				errs = append(errs, &ConfigError{Species: raw, Err: unknownName(raw, builtinNames)})
				continue
			}
			recipe = Recipe{ID: Custom, Name: name, RadialSegments: 4, BranchSegments: 1}
		}
		recipe, err := entry.apply(recipe)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := recipe.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		byName[name] = recipe
	}

	recipes := make([]Recipe, 0, len(byName))
	for _, r := range byName {
		recipes = append(recipes, r)
	}
	return newCatalog(recipes), errors.Join(errs...)
}

func (f recipeFile) apply(r Recipe) (Recipe, error) {
	if f.Axiom != nil {
		r.Axiom = *f.Axiom
	}
	if f.Rules != nil {
		rules := make(grammar.Rules, len(f.Rules))
		for head, body := range f.Rules {
			if len(head) != 1 {
				return r, &ConfigError{Species: r.Name, Field: "rules", Err: fmt.Errorf("rule head %q must be a single symbol", head)}
			}
			rules[head[0]] = body
		}
		r.Rules = rules
	}
	setInt(&r.Iterations, f.Iterations)
	setInt(&r.RadialSegments, f.RadialSegments)
	setInt(&r.BranchSegments, f.BranchSegments)
	setFloat(&r.Angle, f.Angle)
	setFloat(&r.LengthDecay, f.LengthDecay)
	setFloat(&r.ThicknessDecay, f.ThicknessDecay)
	setFloat(&r.InitialLength, f.InitialLength)
	setFloat(&r.InitialThickness, f.InitialThickness)
	setFloat(&r.LeafProbability, f.LeafProbability)
	setFloat(&r.GravityBias, f.GravityBias)
	return r, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
