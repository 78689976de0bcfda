package terrain

import (
	"math"
	"math/rand"
	"testing"

	"github.com/ryan-organically/roanoke-engine/internal/config"
)

func TestNoiseHeightDeterministicForRandomWorldLocations(t *testing.T) {
	cfg := config.Default().Terrain
	genA := NewNoiseHeight(cfg)
	genB := NewNoiseHeight(cfg)

	randSource := rand.New(rand.NewSource(1337))
	for i := 0; i < 1000; i++ {
		x := float64(randSource.Intn(20_001) - 10_000)
		z := float64(randSource.Intn(20_001) - 10_000)
		a := genA.HeightAt(x, z)
		b := genB.HeightAt(x, z)
		if a != b {
			t.Fatalf("location %d (%v,%v): height mismatch %f vs %f", i, x, z, a, b)
		}
		if math.IsNaN(a) || math.IsInf(a, 0) {
			t.Fatalf("location %d: non-finite height", i)
		}
	}
}

func TestNoiseHeightSlopesFromInlandToSea(t *testing.T) {
	gen := NewNoiseHeight(config.Default().Terrain)
	for z := -500.0; z <= 500; z += 50 {
		if h := gen.HeightAt(3000, z); h >= 0 {
			t.Fatalf("far east should be sea, got %f at z=%v", h, z)
		}
		if h := gen.HeightAt(-3000, z); h < 12 {
			t.Fatalf("far west should be deep forest, got %f at z=%v", h, z)
		}
		if f := gen.LandFactor(-3000, z); f != 1 {
			t.Fatalf("far west land factor should saturate, got %f", f)
		}
	}
}

func TestFractalNoiseStaysInRange(t *testing.T) {
	gen := NewNoiseHeight(config.Default().Terrain)
	for i := 0; i < 500; i++ {
		x := float64(i) * 13.7
		n := gen.fractalNoise(x, -x*0.5, 0.01, 4, 7)
		if n < -1 || n > 1 {
			t.Fatalf("noise out of range at %v: %f", x, n)
		}
	}
}

func TestProfileIsMonotonic(t *testing.T) {
	prev, _ := profile(0)
	for t0 := 0.0; t0 <= 1.0; t0 += 0.001 {
		h, _ := profile(t0)
		if h < prev-1e-9 {
			t.Fatalf("profile decreases at t=%f: %f < %f", t0, h, prev)
		}
		prev = h
	}
	if h, _ := profile(1); h != 15 {
		t.Fatalf("profile should top out at 15, got %f", h)
	}
}

func TestHeightFuncAndFlat(t *testing.T) {
	var src HeightSource = HeightFunc(func(x, z float64) float64 { return x - z })
	if got := src.HeightAt(5, 2); got != 3 {
		t.Fatalf("HeightFunc: got %f", got)
	}
	if got := Flat(7.5).HeightAt(-100, 42); got != 7.5 {
		t.Fatalf("Flat: got %f", got)
	}
}
