package device

import "math"

// Approach moves current towards target by at most rate*dt and never
// overshoots. A non-positive rate or dt leaves current unchanged.
func Approach(current, target, rate, dt float64) float64 {
	step := rate * dt
	if step <= 0 {
		return current
	}
	delta := target - current
	if math.Abs(delta) <= step {
		return target
	}
	return current + math.Copysign(step, delta)
}
