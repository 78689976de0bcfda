package species

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ryan-organically/roanoke-engine/internal/grammar"
)

func TestBuiltinRecipesAreValid(t *testing.T) {
	c := Builtin()
	if c.Len() != 7 {
		t.Fatalf("expected 7 built-in species, got %d", c.Len())
	}
	for id := Oak; id < Custom; id++ {
		r, ok := c.Get(id)
		if !ok {
			t.Fatalf("missing built-in %v", id)
		}
		if r.ID != id || r.Name != id.String() {
			t.Fatalf("recipe %q has id %v", r.Name, r.ID)
		}
		if err := r.Validate(); err != nil {
			t.Fatalf("built-in %s invalid: %v", r.Name, err)
		}
	}
	if _, ok := c.Get(Custom); ok {
		t.Fatalf("Custom should not resolve to a recipe")
	}
}

func TestTurtleParamsConvertsDegrees(t *testing.T) {
	r, _ := Builtin().Get(Palm)
	p := r.TurtleParams()
	if p.Angle < 0.6108 || p.Angle > 0.6109 {
		t.Fatalf("35 degrees should be ~0.6109 rad, got %f", p.Angle)
	}
	if p.LeafProbability != 1 || p.LengthDecay != 1 || p.Sections != 2 {
		t.Fatalf("unexpected params: %+v", p)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		name       string
		want       ID
		suggestion string
		wantErr    bool
	}{
		{name: "oak", want: Oak},
		{name: " Spruce ", want: Spruce},
		{name: "wilow", suggestion: "willow", wantErr: true},
		{name: "baobab", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if !tt.wantErr {
				if got != tt.want {
					t.Fatalf("ParseID(%q) = %v, want %v", tt.name, got, tt.want)
				}
				return
			}
			var unknown *UnknownNameError
			if !errors.As(err, &unknown) {
				t.Fatalf("expected UnknownNameError, got %T", err)
			}
			if unknown.Suggestion != tt.suggestion {
				t.Fatalf("suggestion = %q, want %q", unknown.Suggestion, tt.suggestion)
			}
		})
	}
}

func TestValidateRejectsBadRecipes(t *testing.T) {
	oak, _ := Builtin().Get(Oak)

	undefined := oak
	undefined.Rules = grammar.Rules{'F': "FX"}
	err := undefined.Validate()
	var cfg *ConfigError
	var gcfg *grammar.ConfigError
	if !errors.As(err, &cfg) || !errors.As(err, &gcfg) {
		t.Fatalf("expected species and grammar ConfigError, got %v", err)
	}
	if gcfg.Symbol != 'X' {
		t.Fatalf("expected offending symbol X, got %q", gcfg.Symbol)
	}

	decay := oak
	decay.LengthDecay = 1.2
	if err := decay.Validate(); !errors.As(err, &cfg) || cfg.Field != "length_decay" {
		t.Fatalf("expected length_decay error, got %v", err)
	}

	gravity := oak
	gravity.GravityBias = -0.5
	if err := gravity.Validate(); !errors.As(err, &cfg) || cfg.Field != "gravity_bias" {
		t.Fatalf("expected gravity_bias error, got %v", err)
	}

	nonFinite := []struct {
		field  string
		mutate func(*Recipe)
	}{
		{"angle", func(r *Recipe) { r.Angle = math.Inf(1) }},
		{"length_decay", func(r *Recipe) { r.LengthDecay = math.NaN() }},
		{"thickness_decay", func(r *Recipe) { r.ThicknessDecay = math.NaN() }},
		{"initial_length", func(r *Recipe) { r.InitialLength = math.Inf(1) }},
		{"initial_thickness", func(r *Recipe) { r.InitialThickness = math.NaN() }},
		{"leaf_probability", func(r *Recipe) { r.LeafProbability = math.NaN() }},
		{"gravity_bias", func(r *Recipe) { r.GravityBias = math.Inf(1) }},
	}
	for _, tt := range nonFinite {
		r := oak
		tt.mutate(&r)
		if err := r.Validate(); !errors.As(err, &cfg) || cfg.Field != tt.field {
			t.Fatalf("expected %s error for a non-finite value, got %v", tt.field, err)
		}
	}
}

func TestParseCatalogRejectsNaN(t *testing.T) {
	c, err := ParseCatalog([]byte("species:\n  oak:\n    length_decay: .nan\n"))
	var cfg *ConfigError
	if !errors.As(err, &cfg) || cfg.Field != "length_decay" {
		t.Fatalf("expected length_decay error, got %v", err)
	}
	oak, _ := c.Get(Oak)
	if oak.LengthDecay != 0.7 {
		t.Fatalf("rejected override should keep built-in oak, got %f", oak.LengthDecay)
	}
}

func TestLoadCatalogOverridesAndAdditions(t *testing.T) {
	doc := `
species:
  oak:
    iterations: 3
    leaf_probability: 0.5
  fern:
    axiom: X
    rules:
      X: "F[+X]F[-X]+X"
      F: FF
    iterations: 4
    angle: 25
    length_decay: 0.8
    thickness_decay: 0.7
    initial_length: 0.5
    initial_thickness: 0.05
    leaf_probability: 0.6
    radial_segments: 3
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if c.Len() != 8 {
		t.Fatalf("expected 8 species, got %d", c.Len())
	}
	oak, err := c.Lookup("oak")
	if err != nil {
		t.Fatalf("lookup oak: %v", err)
	}
	if oak.Iterations != 3 || oak.LeafProbability != 0.5 || oak.InitialLength != 2.0 {
		t.Fatalf("override not layered over built-in: %+v", oak)
	}
	fern, err := c.Lookup("Fern")
	if err != nil {
		t.Fatalf("lookup fern: %v", err)
	}
	if fern.ID != Custom || fern.Rules['X'] != "F[+X]F[-X]+X" {
		t.Fatalf("unexpected custom recipe: %+v", fern)
	}
}

func TestParseCatalogKeepsGoodEntriesOnError(t *testing.T) {
	doc := `
species:
  pine:
    length_decay: 0
  mapel:
    iterations: 2
  birch:
    iterations: 4
`
	c, err := ParseCatalog([]byte(doc))
	if c == nil {
		t.Fatalf("catalog should still be returned")
	}
	var cfg *ConfigError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	var unknown *UnknownNameError
	if !errors.As(err, &unknown) || unknown.Suggestion != "maple" {
		t.Fatalf("expected a maple suggestion, got %v", err)
	}

	pine, _ := c.Get(Pine)
	if pine.LengthDecay != 0.75 {
		t.Fatalf("rejected override should keep built-in pine, got %f", pine.LengthDecay)
	}
	birch, _ := c.Get(Birch)
	if birch.Iterations != 4 {
		t.Fatalf("valid override should apply, got %d", birch.Iterations)
	}
}

func TestParseCatalogRejectsSyntaxErrors(t *testing.T) {
	if c, err := ParseCatalog([]byte("species: [")); err == nil || c != nil {
		t.Fatalf("expected a parse error and no catalog")
	}
}

func TestLookupSuggestsClosestName(t *testing.T) {
	_, err := Builtin().Lookup("sprce")
	var unknown *UnknownNameError
	if !errors.As(err, &unknown) || unknown.Suggestion != "spruce" {
		t.Fatalf("expected spruce suggestion, got %v", err)
	}
}
