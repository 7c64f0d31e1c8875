// Package main provides CMA-ES tuning of flock steering parameters.
package main

import (
	"github.com/pthm-cable/flock/config"
)

// ParamSpec defines a single optimizable parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all optimizable parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of optimizable parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			// Weights
			{Name: "w_target", Path: "boid.weights.target", Min: 0.0, Max: 2.0, Default: 0.4},
			{Name: "w_separation", Path: "boid.weights.separation", Min: 0.5, Max: 15.0, Default: 6.0},
			{Name: "w_cohesion", Path: "boid.weights.cohesion", Min: 0.0, Max: 5.0, Default: 1.0},
			{Name: "w_alignment", Path: "boid.weights.alignment", Min: 0.0, Max: 5.0, Default: 1.5},
			{Name: "w_avoid_terrain", Path: "boid.weights.avoid_terrain", Min: 1.0, Max: 50.0, Default: 20.0},
			// Motion limits (max_speed stays fixed so runs are comparable)
			{Name: "separation_distance", Path: "boid.separation_distance", Min: 1.0, Max: 10.0, Default: 4.0},
			{Name: "turn_rate", Path: "boid.turn_rate", Min: 45.0, Max: 360.0, Default: 180.0},
			{Name: "acceleration", Path: "boid.acceleration", Min: 1.0, Max: 12.0, Default: 4.0},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
// Order must match Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	c := pv.Clamp(values)
	b := &cfg.Boid

	b.Weights.Target = c[0]
	b.Weights.Separation = c[1]
	b.Weights.Cohesion = c[2]
	b.Weights.Alignment = c[3]
	b.Weights.AvoidTerrain = c[4]
	b.SeparationDistance = c[5]
	b.TurnRate = c[6]
	b.Acceleration = c[7]
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	b := cfg.Boid
	return []float64{
		b.Weights.Target,
		b.Weights.Separation,
		b.Weights.Cohesion,
		b.Weights.Alignment,
		b.Weights.AvoidTerrain,
		b.SeparationDistance,
		b.TurnRate,
		b.Acceleration,
	}
}
