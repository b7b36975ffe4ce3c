package bearing

import (
	"math"

	"ble-bearing.klederson.com/internal/scanner"
)

// Point is a position on the rig plane, in inches.
type Point struct {
	X, Y float64
}

// Antenna positions relative to the rig center.
var antennas = map[scanner.Direction]Point{
	scanner.North: {0, 5},
	scanner.East:  {5, 0},
	scanner.South: {0, -5},
	scanner.West:  {-5, 0},
}

// AntennaPosition returns where a direction's antenna sits on the rig.
func AntennaPosition(d scanner.Direction) (Point, bool) {
	if !d.Valid() {
		return Point{}, false
	}
	return antennas[d], true
}

// Readings holds the latest RSSI (dBm) per direction for one device.
type Readings map[scanner.Direction]float64

// Max returns the strongest reading, or -Inf when empty.
func (r Readings) Max() float64 {
	best := math.Inf(-1)
	for _, v := range r {
		if v > best {
			best = v
		}
	}
	return best
}

// Weight converts RSSI (dBm) to a linear amplitude weight, 10^(rssi/20).
func Weight(rssi float64) float64 {
	return math.Pow(10, rssi/20)
}

// Centroid returns the weighted centroid of the antenna positions and the
// total weight. Unknown directions are ignored; with no usable weight the
// centroid is the origin.
func Centroid(r Readings) (Point, float64) {
	var sx, sy, total float64
	for d, rssi := range r {
		p, ok := AntennaPosition(d)
		if !ok {
			continue
		}
		w := Weight(rssi)
		sx += w * p.X
		sy += w * p.Y
		total += w
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return Point{}, 0
	}
	return Point{sx / total, sy / total}, total
}

// Estimate returns the bearing of a device in (-π, π], measured from the
// east axis counter-clockwise. It returns 0 when there is no usable weight.
func Estimate(r Readings) float64 {
	c, total := Centroid(r)
	if total == 0 {
		return 0
	}
	return WrapAngle(math.Atan2(c.Y, c.X))
}
