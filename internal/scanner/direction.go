package scanner

import "strings"

// Direction identifies one of the four directional scanners on the rig.
type Direction int

const (
	North Direction = iota
	East
	South
	West
)

// Directions lists every direction in rig order.
var Directions = [...]Direction{North, East, South, West}

func (d Direction) String() string {
	switch d {
	case North:
		return "North"
	case East:
		return "East"
	case South:
		return "South"
	case West:
		return "West"
	default:
		return "Unknown"
	}
}

// Tag returns the upper-case form used by the scanner firmware.
func (d Direction) Tag() string {
	return strings.ToUpper(d.String())
}

// Valid reports whether d is one of the four rig directions.
func (d Direction) Valid() bool {
	return d >= North && d <= West
}

// ParseDirection maps a direction name (any case) to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NORTH":
		return North, true
	case "EAST":
		return East, true
	case "SOUTH":
		return South, true
	case "WEST":
		return West, true
	}
	return 0, false
}
