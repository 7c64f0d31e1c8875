package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// vecEpsilon is the length below which a vector is treated as zero.
const vecEpsilon = 1e-9

// clampFloat clamps a value between min and max.
func clampFloat(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// clampInt clamps an integer between min and max.
func clampInt(v, minVal, maxVal int) int {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}

// degToRad converts degrees to radians.
func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// unit returns the unit vector of v, or the zero vector when v has no length.
// r3.Unit yields NaN components for zero input.
func unit(v r3.Vec) r3.Vec {
	n := r3.Norm(v)
	if n < vecEpsilon {
		return r3.Vec{}
	}
	return r3.Scale(1/n, v)
}

// clampMagnitude scales v down so its length does not exceed maxLen.
func clampMagnitude(v r3.Vec, maxLen float64) r3.Vec {
	n2 := r3.Norm2(v)
	if n2 <= maxLen*maxLen {
		return v
	}
	return r3.Scale(maxLen/math.Sqrt(n2), v)
}

// moveTowards moves current in a straight line toward target by at most maxDelta.
func moveTowards(current, target r3.Vec, maxDelta float64) r3.Vec {
	d := r3.Sub(target, current)
	dist := r3.Norm(d)
	if dist <= maxDelta || dist < vecEpsilon {
		return target
	}
	return r3.Add(current, r3.Scale(maxDelta/dist, d))
}

// perpendicular returns some unit vector orthogonal to v.
func perpendicular(v r3.Vec) r3.Vec {
	axis := r3.Vec{X: 1}
	if math.Abs(v.X) > math.Abs(v.Y) {
		axis = r3.Vec{Y: 1}
	}
	return unit(r3.Cross(v, axis))
}
