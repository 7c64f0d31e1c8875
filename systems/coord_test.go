package systems

import (
	"errors"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestCoordinateOf(t *testing.T) {
	tests := []struct {
		name    string
		pos     r3.Vec
		dim     int
		want    Coord
		wantErr bool
	}{
		{"origin maps to centre", r3.Vec{}, 3, Coord{1, 1, 1}, false},
		{"one cell positive x", r3.Vec{X: 10}, 3, Coord{0, 1, 1}, false},
		{"one cell negative x", r3.Vec{X: -10}, 3, Coord{2, 1, 1}, false},
		{"rounds down below half", r3.Vec{X: 4.9}, 3, Coord{1, 1, 1}, false},
		{"rounds up above half", r3.Vec{X: 5.1}, 3, Coord{0, 1, 1}, false},
		{"mixed axes", r3.Vec{X: 10, Y: -10, Z: 10}, 3, Coord{0, 2, 0}, false},
		{"even dimension centre", r3.Vec{}, 4, Coord{2, 2, 2}, false},
		{"beyond positive edge", r3.Vec{X: 25}, 3, OutOfRange, true},
		{"beyond negative edge", r3.Vec{Z: -25}, 3, OutOfRange, true},
		{"half cell past edge", r3.Vec{Y: 15}, 3, OutOfRange, true},
		{"far away", r3.Vec{X: 1e6, Y: -1e6}, 3, OutOfRange, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CoordinateOf(tt.pos, r3.Vec{}, 10, tt.dim)
			if tt.wantErr {
				if !errors.Is(err, ErrOutOfRange) {
					t.Fatalf("CoordinateOf(%v) error = %v, want ErrOutOfRange", tt.pos, err)
				}
				if got != OutOfRange {
					t.Errorf("CoordinateOf(%v) = %v, want sentinel", tt.pos, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CoordinateOf(%v) unexpected error: %v", tt.pos, err)
			}
			if got != tt.want {
				t.Errorf("CoordinateOf(%v) = %v, want %v", tt.pos, got, tt.want)
			}
		})
	}
}

func TestCoordinateOf_Deterministic(t *testing.T) {
	origin := r3.Vec{X: 3, Y: -7, Z: 1.5}
	for _, p := range []r3.Vec{{}, {X: 12.3, Y: -4.4, Z: 9.9}, {X: -31, Y: 2, Z: 0.01}} {
		a, errA := CoordinateOf(p, origin, 5, 16)
		b, errB := CoordinateOf(p, origin, 5, 16)
		if a != b || (errA == nil) != (errB == nil) {
			t.Errorf("CoordinateOf(%v) not deterministic: %v/%v vs %v/%v", p, a, errA, b, errB)
		}
	}
}

func TestCoordinateOf_OriginOffset(t *testing.T) {
	got, err := CoordinateOf(r3.Vec{X: 100}, r3.Vec{X: 100}, 10, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != (Coord{1, 1, 1}) {
		t.Errorf("position at origin should map to centre, got %v", got)
	}
}

func TestClampedCoordinateOf(t *testing.T) {
	tests := []struct {
		name string
		pos  r3.Vec
		want Coord
	}{
		{"in range unchanged", r3.Vec{X: 10}, Coord{0, 1, 1}},
		{"clamps low edge", r3.Vec{X: 25}, Coord{0, 1, 1}},
		{"clamps high edge", r3.Vec{Y: -25}, Coord{1, 2, 1}},
		{"clamps huge values", r3.Vec{X: -1e12, Y: 1e12}, Coord{2, 0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampedCoordinateOf(tt.pos, r3.Vec{}, 10, 3)
			if got != tt.want {
				t.Errorf("ClampedCoordinateOf(%v) = %v, want %v", tt.pos, got, tt.want)
			}
		})
	}
}

func TestCoordInBounds(t *testing.T) {
	if !(Coord{0, 0, 0}).InBounds(1) {
		t.Error("(0,0,0) should be in bounds for dim 1")
	}
	if (Coord{0, 1, 0}).InBounds(1) {
		t.Error("(0,1,0) should be out of bounds for dim 1")
	}
	if OutOfRange.InBounds(8) {
		t.Error("sentinel must never be in bounds")
	}
}
