package radar

import (
	"math"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/config"
)

// CellDistance computes the distance from a cell to the plot center,
// accounting for terminal aspect ratio.
func CellDistance(col, row, centerX, centerY int) float64 {
	dx := float64(col - centerX)
	dy := float64(row-centerY) / config.AspectRatio
	return math.Sqrt(dx*dx + dy*dy)
}

// CellHeading computes the compass heading from center to a cell.
// Returns radians in [0, 2π), where 0=north, increasing clockwise.
func CellHeading(col, row, centerX, centerY int) float64 {
	dx := float64(col - centerX)
	dy := float64(row-centerY) / config.AspectRatio
	return bearing.NormalizeAngle(math.Atan2(dx, -dy))
}

// Project returns the cell at compass heading h and radius r from center.
func Project(h, r float64, centerX, centerY int) (col, row int) {
	col = centerX + int(math.Round(r*math.Sin(h)))
	row = centerY - int(math.Round(r*math.Cos(h)*config.AspectRatio))
	return col, row
}

// RSSIRadius places a signal strength on the plot: strong signals sit near
// the center, the weakest on the outer ring.
func RSSIRadius(rssi, radius float64) float64 {
	ratio := (rssi - config.StrongRSSI) / (config.WeakRSSI - config.StrongRSSI)
	ratio = math.Max(0, math.Min(1, ratio))
	return radius * (0.25 + 0.75*ratio)
}

// RingChar returns the character drawing a ring at the given heading.
func RingChar(h float64) rune {
	switch Sector(h) {
	case 0, 4:
		return '-'
	case 1, 5:
		return '/'
	case 2, 6:
		return '|'
	default:
		return '\\'
	}
}

// Sector maps a heading to one of 8 compass sectors, 0=N clockwise.
func Sector(h float64) int {
	return int(math.Round(bearing.NormalizeAngle(h)/(math.Pi/4))) % 8
}
