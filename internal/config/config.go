package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by FromEnv.
const (
	EnvConfigJSON    = "FORESTGEN_CONFIG_JSON"
	EnvConfigYAMLB64 = "FORESTGEN_CONFIG_YAML_B64"
)

// Duration is a JSON and YAML friendly wrapper around time.Duration that
// accepts human readable strings such as "16ms" in configuration files while
// still allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// MarshalYAML encodes the duration as its string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration: expected a scalar at line %d", node.Line)
	}
	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	if node.Tag == "!!null" {
		*d = 0
		return nil
	}
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config captures the tunable parameters of the vegetation generator.
type Config struct {
	Generation  GenerationConfig  `json:"generation" yaml:"generation"`
	Limits      LimitsConfig      `json:"limits" yaml:"limits"`
	Biomes      BiomesConfig      `json:"biomes" yaml:"biomes"`
	Terrain     TerrainConfig     `json:"terrain" yaml:"terrain"`
	Stream      StreamConfig      `json:"stream" yaml:"stream"`
	Diagnostics DiagnosticsConfig `json:"diagnostics" yaml:"diagnostics"`
}

type GenerationConfig struct {
	Seed             uint64  `json:"seed" yaml:"seed"`
	ChunkSize        float64 `json:"chunkSize" yaml:"chunkSize"`               // world units per chunk side
	CandidateSpacing float64 `json:"candidateSpacing" yaml:"candidateSpacing"` // one placement candidate per cell of this size
	Workers          int     `json:"workers" yaml:"workers"`                   // 0 picks from GOMAXPROCS
	Catalog          string  `json:"catalog" yaml:"catalog"`                   // optional species override file
}

type LimitsConfig struct {
	MaxSymbols          int   `json:"maxSymbols" yaml:"maxSymbols"`
	MaxStackDepth       int   `json:"maxStackDepth" yaml:"maxStackDepth"`
	InstanceMaxVertices int64 `json:"instanceMaxVertices" yaml:"instanceMaxVertices"`
	InstanceMaxIndices  int64 `json:"instanceMaxIndices" yaml:"instanceMaxIndices"`
	ChunkMaxVertices    int64 `json:"chunkMaxVertices" yaml:"chunkMaxVertices"`
	ChunkMaxIndices     int64 `json:"chunkMaxIndices" yaml:"chunkMaxIndices"`
	ChunkMaxBytes       int64 `json:"chunkMaxBytes" yaml:"chunkMaxBytes"`
}

// BiomesConfig lists height bands from the shoreline inland. An empty list
// selects the built-in bands.
type BiomesConfig struct {
	Bands []BandConfig `json:"bands,omitempty" yaml:"bands,omitempty"`
}

type BandConfig struct {
	Category         string             `json:"category" yaml:"category"`
	Floor            float64            `json:"floor" yaml:"floor"`
	Ceiling          float64            `json:"ceiling" yaml:"ceiling"`
	DensityAtFloor   float64            `json:"densityAtFloor" yaml:"densityAtFloor"`
	DensityAtCeiling float64            `json:"densityAtCeiling" yaml:"densityAtCeiling"`
	Weights          map[string]float64 `json:"weights" yaml:"weights"`
}

type TerrainConfig struct {
	Seed            int64   `json:"seed" yaml:"seed"`
	Frequency       float64 `json:"frequency" yaml:"frequency"`
	Octaves         int     `json:"octaves" yaml:"octaves"`
	Persistence     float64 `json:"persistence" yaml:"persistence"`
	Lacunarity      float64 `json:"lacunarity" yaml:"lacunarity"`
	DetailFrequency float64 `json:"detailFrequency" yaml:"detailFrequency"`
	DetailOctaves   int     `json:"detailOctaves" yaml:"detailOctaves"`
	Amplitude       float64 `json:"amplitude" yaml:"amplitude"`         // detail height scale
	CoastGradient   float64 `json:"coastGradient" yaml:"coastGradient"` // land falls toward +x by this much per unit
}

type StreamConfig struct {
	LoadRadius         int      `json:"loadRadius" yaml:"loadRadius"`
	UnloadRadius       int      `json:"unloadRadius" yaml:"unloadRadius"`
	MaxResultsPerFrame int      `json:"maxResultsPerFrame" yaml:"maxResultsPerFrame"`
	FrameInterval      Duration `json:"frameInterval" yaml:"frameInterval"` // e.g. "16ms"
	QueueDepth         int      `json:"queueDepth" yaml:"queueDepth"`
}

type DiagnosticsConfig struct {
	LogLevel      string `json:"logLevel" yaml:"logLevel"`
	WebSocketAddr string `json:"webSocketAddr" yaml:"webSocketAddr"` // empty disables the event stream
	EventBuffer   int    `json:"eventBuffer" yaml:"eventBuffer"`
}

// Load reads configuration from a YAML or JSON file, chosen by extension.
// An empty path returns defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	default:
		cfg, err = ParseJSON(data)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// ParseJSON decodes data over the defaults without validating.
func ParseJSON(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ParseYAML decodes data over the defaults without validating.
func ParseYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	return cfg, nil
}

// FromEnv decodes a configuration pushed through the environment, either
// raw JSON or base64 encoded YAML. JSON wins when both are set. The bool
// reports whether any payload was present.
func FromEnv() (*Config, bool, error) {
	jsonPayload := os.Getenv(EnvConfigJSON)
	yamlPayload := os.Getenv(EnvConfigYAMLB64)
	if jsonPayload == "" && yamlPayload == "" {
		return nil, false, nil
	}

	var (
		cfg *Config
		err error
	)
	if jsonPayload != "" {
		cfg, err = ParseJSON([]byte(jsonPayload))
		if err != nil {
			return nil, true, fmt.Errorf("decode env config json: %w", err)
		}
	} else {
		data, decodeErr := base64.StdEncoding.DecodeString(yamlPayload)
		if decodeErr != nil {
			return nil, true, fmt.Errorf("decode env config yaml: %w", decodeErr)
		}
		cfg, err = ParseYAML(data)
		if err != nil {
			return nil, true, fmt.Errorf("decode env config yaml: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, true, fmt.Errorf("validate env config: %w", err)
	}
	return cfg, true, nil
}

func Default() *Config {
	return &Config{
		Generation: GenerationConfig{
			Seed:             12345,
			ChunkSize:        256,
			CandidateSpacing: 8,
		},
		Limits: LimitsConfig{
			MaxSymbols:          200_000,
			MaxStackDepth:       256,
			InstanceMaxVertices: 200_000,
			InstanceMaxIndices:  600_000,
			ChunkMaxVertices:    2_000_000,
			ChunkMaxIndices:     6_000_000,
			ChunkMaxBytes:       128 << 20,
		},
		Terrain: TerrainConfig{
			Seed:            1337,
			Frequency:       0.002,
			Octaves:         3,
			Persistence:     0.5,
			Lacunarity:      2.0,
			DetailFrequency: 0.05,
			DetailOctaves:   4,
			Amplitude:       1.0,
			CoastGradient:   0.001,
		},
		Stream: StreamConfig{
			LoadRadius:         2,
			UnloadRadius:       3,
			MaxResultsPerFrame: 2,
			FrameInterval:      Duration(16 * time.Millisecond),
			QueueDepth:         64,
		},
		Diagnostics: DiagnosticsConfig{
			LogLevel:    "info",
			EventBuffer: 256,
		},
	}
}

var logLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}

func (c *Config) Validate() error {
	if c.Generation.ChunkSize <= 0 {
		return errors.New("generation.chunkSize must be positive")
	}
	if c.Generation.CandidateSpacing <= 0 || c.Generation.CandidateSpacing > c.Generation.ChunkSize {
		return errors.New("generation.candidateSpacing must be in (0, chunkSize]")
	}
	if c.Generation.Workers < 0 {
		return errors.New("generation.workers cannot be negative")
	}
	if c.Limits.MaxSymbols <= 0 {
		return errors.New("limits.maxSymbols must be positive")
	}
	if c.Limits.MaxStackDepth <= 0 {
		return errors.New("limits.maxStackDepth must be positive")
	}
	if c.Limits.InstanceMaxVertices <= 0 || c.Limits.InstanceMaxIndices <= 0 {
		return errors.New("limits per instance must be positive")
	}
	if c.Limits.ChunkMaxVertices <= 0 || c.Limits.ChunkMaxIndices <= 0 || c.Limits.ChunkMaxBytes <= 0 {
		return errors.New("limits per chunk must be positive")
	}
	if c.Limits.InstanceMaxVertices > 1<<32 {
		return errors.New("limits.instanceMaxVertices exceeds the uint32 index range")
	}
	if c.Limits.ChunkMaxVertices > 1<<32 {
		return errors.New("limits.chunkMaxVertices exceeds the uint32 index range")
	}
	for i, b := range c.Biomes.Bands {
		if b.Category == "" {
			return fmt.Errorf("biomes.bands[%d].category must be set", i)
		}
	}
	if c.Terrain.Octaves <= 0 || c.Terrain.DetailOctaves <= 0 {
		return errors.New("terrain octaves must be positive")
	}
	if c.Terrain.Frequency <= 0 || c.Terrain.DetailFrequency <= 0 {
		return errors.New("terrain frequencies must be positive")
	}
	if c.Stream.LoadRadius < 0 {
		return errors.New("stream.loadRadius cannot be negative")
	}
	if c.Stream.UnloadRadius <= c.Stream.LoadRadius {
		return errors.New("stream.unloadRadius must be greater than loadRadius")
	}
	if c.Stream.MaxResultsPerFrame <= 0 {
		return errors.New("stream.maxResultsPerFrame must be positive")
	}
	if c.Stream.FrameInterval <= 0 {
		return errors.New("stream.frameInterval must be positive")
	}
	if c.Stream.QueueDepth <= 0 {
		return errors.New("stream.queueDepth must be positive")
	}
	if !logLevels[strings.ToLower(c.Diagnostics.LogLevel)] {
		return fmt.Errorf("diagnostics.logLevel %q is not one of debug, info, warn, error", c.Diagnostics.LogLevel)
	}
	if c.Diagnostics.EventBuffer < 0 {
		return errors.New("diagnostics.eventBuffer cannot be negative")
	}
	return nil
}
