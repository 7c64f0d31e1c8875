// Package config provides configuration loading and access for the simulation.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed schema.json
var schemaJSON string

// Out-of-range recovery policies.
const (
	PolicyClamp  = "clamp"  // clamp the coordinate into the grid and move
	PolicyRetain = "retain" // keep the agent in its last valid cell
)

// Config holds all simulation configuration parameters.
type Config struct {
	Physics    PhysicsConfig    `yaml:"physics"`
	Grid       GridConfig       `yaml:"grid"`
	Population PopulationConfig `yaml:"population"`
	Boid       BoidConfig       `yaml:"boid"`
	Target     TargetConfig     `yaml:"target"`
	Terrain    TerrainConfig    `yaml:"terrain"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Server     ServerConfig     `yaml:"server"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// Vec3 is a YAML-friendly 3D vector.
type Vec3 struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// R3 converts to a gonum vector.
func (v Vec3) R3() r3.Vec {
	return r3.Vec{X: v.X, Y: v.Y, Z: v.Z}
}

// PhysicsConfig holds tick parameters.
type PhysicsConfig struct {
	DT      float64 `yaml:"dt"`
	Workers int     `yaml:"workers"` // 0 = GOMAXPROCS
}

// GridConfig holds partition grid parameters.
type GridConfig struct {
	Origin           Vec3    `yaml:"origin"`
	CellSize         float64 `yaml:"cell_size"`
	Dimension        int     `yaml:"dimension"`
	OutOfRangePolicy string  `yaml:"out_of_range_policy"`
	ReportJitter     float64 `yaml:"report_jitter"` // +/- fraction of the report distance
}

// PopulationConfig holds spawn parameters.
type PopulationConfig struct {
	Initial      int     `yaml:"initial"`
	Capacity     int     `yaml:"capacity"`
	SpawnRadius  float64 `yaml:"spawn_radius"`
	InitialSpeed float64 `yaml:"initial_speed"`
}

// BoidConfig holds steering parameters shared by spawned agents.
type BoidConfig struct {
	MaxSpeed             float64       `yaml:"max_speed"`
	TurnRate             float64       `yaml:"turn_rate"`    // degrees per second
	Acceleration         float64       `yaml:"acceleration"` // speed units per second
	SeparationDistance   float64       `yaml:"separation_distance"`
	TerrainAvoidDistance float64       `yaml:"terrain_avoid_distance"`
	Weights              WeightsConfig `yaml:"weights"`
}

// WeightsConfig holds per-behaviour steering weights.
type WeightsConfig struct {
	Target       float64 `yaml:"target"`
	Separation   float64 `yaml:"separation"`
	Cohesion     float64 `yaml:"cohesion"`
	Alignment    float64 `yaml:"alignment"`
	AvoidTerrain float64 `yaml:"avoid_terrain"`
}

// TargetConfig holds the seek target. A positive orbit radius makes the
// target circle its position in the XZ plane.
type TargetConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Position    Vec3    `yaml:"position"`
	OrbitRadius float64 `yaml:"orbit_radius"`
	OrbitPeriod float64 `yaml:"orbit_period"`
}

// TerrainConfig holds static boundary point generation.
type TerrainConfig struct {
	BoundaryPoints  bool `yaml:"boundary_points"`
	BoundarySpacing int  `yaml:"boundary_spacing"` // in cells
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`
	PerfCollectorWindow int     `yaml:"perf_collector_window"`
	OutOfRangeLogRate   float64 `yaml:"out_of_range_log_rate"`
}

// ServerConfig holds flockd host parameters.
type ServerConfig struct {
	Addr     string  `yaml:"addr"`
	TickRate float64 `yaml:"tick_rate"`
}

// DerivedConfig holds computed values derived from the loaded config.
type DerivedConfig struct {
	ReportDistance float64 // half a cell width, before per-agent jitter
	HalfExtent     float64 // half the edge length of the grid volume
	Clamp          bool    // OutOfRangePolicy == PolicyClamp
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults,
// then applies FLOCK_* environment overrides and validates the result.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.computeDerived()
	return cfg, nil
}

// Validate checks the config against the embedded JSON schema and
// cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	sch, err := jsonschema.CompileString("schema.json", schemaJSON)
	if err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}

	doc, err := c.jsonDocument()
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Population.Initial > c.Population.Capacity {
		return fmt.Errorf("config validation failed: population.initial (%d) exceeds population.capacity (%d)",
			c.Population.Initial, c.Population.Capacity)
	}
	return nil
}

// jsonDocument renders the config as a decoded JSON value for schema validation.
func (c *Config) jsonDocument() (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("re-reading config: %w", err)
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("converting config to json: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding config json: %w", err)
	}
	return doc, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.ReportDistance = c.Grid.CellSize / 2
	c.Derived.HalfExtent = c.Grid.CellSize * float64(c.Grid.Dimension) / 2
	c.Derived.Clamp = c.Grid.OutOfRangePolicy != PolicyRetain
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
