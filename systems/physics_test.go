package systems

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestRotateTowards(t *testing.T) {
	s := math.Sqrt2 / 2
	tests := []struct {
		name       string
		current    r3.Vec
		target     r3.Vec
		maxRadians float64
		maxDelta   float64
		want       r3.Vec
	}{
		{"full quarter turn", r3.Vec{X: 1}, r3.Vec{Y: 1}, math.Pi / 2, 0, r3.Vec{Y: 1}},
		{"partial turn", r3.Vec{X: 1}, r3.Vec{Y: 1}, math.Pi / 4, 0, r3.Vec{X: s, Y: s}},
		{"speed up within budget", r3.Vec{X: 1}, r3.Vec{X: 3}, 0, 1, r3.Vec{X: 2}},
		{"slow down within budget", r3.Vec{Z: 4}, r3.Vec{Z: 1}, 0, 0.5, r3.Vec{Z: 3.5}},
		{"reaches target", r3.Vec{X: 1}, r3.Vec{X: 1, Y: 1}, math.Pi, 1, r3.Vec{X: 1, Y: 1}},
		{"from rest", r3.Vec{}, r3.Vec{Z: 2}, 0, 1, r3.Vec{Z: 1}},
		{"to rest", r3.Vec{Y: 2}, r3.Vec{}, 0, 0.5, r3.Vec{Y: 1.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RotateTowards(tt.current, tt.target, tt.maxRadians, tt.maxDelta)
			if !vecNear(got, tt.want, 1e-9) {
				t.Errorf("RotateTowards(%v, %v) = %v, want %v", tt.current, tt.target, got, tt.want)
			}
		})
	}
}

func TestRotateTowards_Antiparallel(t *testing.T) {
	got := RotateTowards(r3.Vec{X: 1}, r3.Vec{X: -1}, math.Pi/2, 0)
	if math.Abs(got.X) > 1e-9 {
		t.Errorf("expected a perpendicular heading, got %v", got)
	}
	if math.Abs(r3.Norm(got)-1) > 1e-9 {
		t.Errorf("speed changed: |%v| = %v", got, r3.Norm(got))
	}
}

func TestIntegrate_QuarterTurn(t *testing.T) {
	p := &SteeringParams{MaxSpeed: 1, TurnRate: 90, Acceleration: 0}
	pos, vel := Integrate(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Y: 1}, p, 1)

	if !vecNear(vel, r3.Vec{Y: 1}, 1e-9) {
		t.Errorf("velocity = %v, want (0,1,0)", vel)
	}
	if math.Abs(r3.Norm(vel)-1) > 1e-9 {
		t.Errorf("speed changed to %v", r3.Norm(vel))
	}
	if !vecNear(pos, r3.Vec{Y: 1}, 1e-9) {
		t.Errorf("position = %v, want (0,1,0)", pos)
	}
}

func TestIntegrate_TurnBudgetScalesWithDT(t *testing.T) {
	p := &SteeringParams{MaxSpeed: 1, TurnRate: 90, Acceleration: 0}
	_, vel := Integrate(r3.Vec{}, r3.Vec{X: 1}, r3.Vec{Y: 1}, p, 0.5)

	angle := math.Atan2(vel.Y, vel.X)
	if math.Abs(angle-math.Pi/4) > 1e-9 {
		t.Errorf("turned %v rad in half a second, want pi/4", angle)
	}
}

func BenchmarkIntegrate(b *testing.B) {
	p := &SteeringParams{MaxSpeed: 5, TurnRate: 120, Acceleration: 2}
	pos, vel := r3.Vec{}, r3.Vec{X: 1}
	target := r3.Vec{Y: 3, Z: 1}
	for i := 0; i < b.N; i++ {
		pos, vel = Integrate(pos, vel, target, p, 1.0/60)
	}
}
