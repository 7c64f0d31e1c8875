package systems

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// RotateTowards turns current toward target by at most maxRadians and changes
// its length toward target's by at most maxMagnitudeDelta.
// When either vector has no length it falls back to a straight-line move.
func RotateTowards(current, target r3.Vec, maxRadians, maxMagnitudeDelta float64) r3.Vec {
	curMag := r3.Norm(current)
	tgtMag := r3.Norm(target)
	if curMag < vecEpsilon || tgtMag < vecEpsilon {
		return moveTowards(current, target, maxMagnitudeDelta)
	}

	curDir := r3.Scale(1/curMag, current)
	tgtDir := r3.Scale(1/tgtMag, target)
	angle := math.Acos(clampFloat(r3.Dot(curDir, tgtDir), -1, 1))

	dir := tgtDir
	if angle > maxRadians {
		axis := r3.Cross(curDir, tgtDir)
		if r3.Norm(axis) < vecEpsilon {
			axis = perpendicular(curDir)
		}
		dir = unit(r3.NewRotation(maxRadians, unit(axis)).Rotate(curDir))
	}

	mag := curMag + clampFloat(tgtMag-curMag, -maxMagnitudeDelta, maxMagnitudeDelta)
	return r3.Scale(mag, dir)
}

// Integrate advances one agent by dt: velocity turns toward target within the
// turn-rate and acceleration budgets, then position moves by velocity*dt.
func Integrate(pos, vel, target r3.Vec, p *SteeringParams, dt float64) (newPos, newVel r3.Vec) {
	newVel = RotateTowards(vel, target, degToRad(p.TurnRate)*dt, p.Acceleration*dt)
	newPos = r3.Add(pos, r3.Scale(dt, newVel))
	return newPos, newVel
}
