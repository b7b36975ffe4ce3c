package bearing

import "math"

// WrapAngle wraps an angle into (-π, π].
func WrapAngle(a float64) float64 {
	r := math.Mod(a+math.Pi, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	r -= math.Pi
	if r <= -math.Pi {
		r = math.Pi
	}
	return r
}

// AngleDiff returns the signed shortest rotation from b to a, in (-π, π].
func AngleDiff(a, b float64) float64 {
	return WrapAngle(a - b)
}

// NormalizeAngle wraps an angle to [0, 2π).
func NormalizeAngle(a float64) float64 {
	r := math.Mod(a, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return r
}

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * 180 / math.Pi }

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * math.Pi / 180 }

// ToCompass converts a bearing (0 = east, counter-clockwise) into a compass
// heading (0 = north, clockwise) in [0, 2π).
func ToCompass(bearing float64) float64 {
	return NormalizeAngle(math.Pi/2 - bearing)
}

// FromCompass converts a compass heading back into a bearing in (-π, π].
func FromCompass(heading float64) float64 {
	return WrapAngle(math.Pi/2 - heading)
}

// CompassPoint names the 8-wind compass point nearest to a compass heading.
func CompassPoint(heading float64) string {
	points := [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}
	idx := int(math.Round(NormalizeAngle(heading)/(math.Pi/4))) % 8
	return points[idx]
}
