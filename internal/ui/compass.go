package ui

import (
	"math"
	"strings"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/config"
	"github.com/charmbracelet/lipgloss"
)

// RenderCompass renders a compass with an arrow toward a device.
// heading: radians (0=north, clockwise), rssi: dBm. Stronger signals draw a
// longer arrow.
func RenderCompass(width, height int, heading, rssi float64) string {
	if width < 9 || height < 5 {
		return ""
	}

	grid := make([][]byte, height)
	isArrow := make([][]bool, height)
	for i := range grid {
		grid[i] = []byte(strings.Repeat(" ", width))
		isArrow[i] = make([]bool, width)
	}

	fcx := float64(width) / 2.0
	fcy := float64(height) / 2.0
	rx := math.Max(fcx-2.0, 3) // horizontal radius in columns
	ry := math.Max(fcy-2.0, 2) // vertical radius in rows

	// Ring
	const steps = 80
	for i := 0; i < steps; i++ {
		a := float64(i) * 2 * math.Pi / steps
		col := int(math.Round(fcx + rx*math.Sin(a)))
		row := int(math.Round(fcy - ry*math.Cos(a)))
		if col >= 0 && col < width && row >= 0 && row < height && grid[row][col] == ' ' {
			grid[row][col] = ringChar(a)
		}
	}

	cx := int(math.Round(fcx))
	cy := int(math.Round(fcy))

	// Cardinal markers
	setGrid(grid, cx, cy-int(math.Round(ry))-1, 'N')
	setGrid(grid, cx, cy+int(math.Round(ry))+1, 'S')
	setGrid(grid, cx+int(math.Round(rx))+1, cy, 'E')
	setGrid(grid, cx-int(math.Round(rx))-1, cy, 'W')

	// Faint axes
	for r := cy - int(ry) + 1; r < cy+int(ry); r++ {
		if r != cy && r >= 0 && r < height && cx < width && grid[r][cx] == ' ' {
			grid[r][cx] = ':'
		}
	}
	for c := cx - int(rx) + 1; c < cx+int(rx); c++ {
		if c != cx && c >= 0 && c < width && cy < height && grid[cy][c] == ' ' {
			grid[cy][c] = '.'
		}
	}

	setGrid(grid, cx, cy, '+')

	// Shaft from center toward the heading.
	const maxFrac, minFrac = 0.85, 0.3
	strength := (rssi - config.WeakRSSI) / (config.StrongRSSI - config.WeakRSSI)
	arrowFrac := minFrac + (maxFrac-minFrac)*math.Max(0, math.Min(1, strength))

	sinA, cosA := math.Sin(heading), math.Cos(heading)
	shaftSteps := max(int(math.Max(rx, ry)*arrowFrac), 2)

	tipCol, tipRow := -1, -1
	for s := 1; s <= shaftSteps; s++ {
		t := float64(s) / float64(shaftSteps) * arrowFrac
		col := int(math.Round(fcx + t*rx*sinA))
		row := int(math.Round(fcy - t*ry*cosA))
		if col >= 0 && col < width && row >= 0 && row < height {
			grid[row][col] = shaftChar(heading)
			isArrow[row][col] = true
			tipCol, tipRow = col, row
		}
	}
	if tipCol >= 0 {
		grid[tipRow][tipCol] = arrowTip(heading)
	}

	arrowSty := lipgloss.NewStyle().Foreground(lipgloss.Color(proximityColor(rssi))).Bold(true)
	ringSty := lipgloss.NewStyle().Foreground(ColorDimGreen)
	axisSty := lipgloss.NewStyle().Foreground(lipgloss.Color("#003300"))
	markSty := lipgloss.NewStyle().Foreground(ColorMatrixGreen).Bold(true)

	var sb strings.Builder
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			ch := grid[row][col]
			switch {
			case isArrow[row][col]:
				sb.WriteString(arrowSty.Render(string(ch)))
			case ch == 'N' || ch == 'S' || ch == 'E' || ch == 'W' || ch == '+':
				sb.WriteString(markSty.Render(string(ch)))
			case ch == ':' || ch == '.':
				sb.WriteString(axisSty.Render(string(ch)))
			case ch != ' ':
				sb.WriteString(ringSty.Render(string(ch)))
			default:
				sb.WriteByte(' ')
			}
		}
		if row < height-1 {
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

func setGrid(grid [][]byte, col, row int, ch byte) {
	if row >= 0 && row < len(grid) && col >= 0 && col < len(grid[row]) {
		grid[row][col] = ch
	}
}

func sector(a float64) int {
	return int(math.Round(bearing.NormalizeAngle(a)/(math.Pi/4))) % 8
}

func ringChar(a float64) byte {
	return `-\|/-\|/`[sector(a)]
}

// shaftChar returns the line character for a heading.
func shaftChar(a float64) byte {
	return `|/-\|/-\`[sector(a)]
}

// arrowTip returns the arrowhead character for a heading.
func arrowTip(a float64) byte {
	return `^/>\v/<\`[sector(a)]
}

// proximityColor maps RSSI to a green shade (brighter = stronger).
func proximityColor(rssi float64) string {
	switch {
	case rssi > -50:
		return "#00FF41"
	case rssi > -60:
		return "#00CC33"
	case rssi > -70:
		return "#00AA22"
	case rssi > -80:
		return "#008F11"
	default:
		return "#005511"
	}
}
