package ui

import (
	"fmt"
	"math"
	"strings"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/live"
	"ble-bearing.klederson.com/internal/scanner"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// RenderDetailPanel renders the device detail view that replaces the plot.
func RenderDetailPanel(e live.Estimate, width, height int) string {
	innerW := max(width-4, 20)

	title := StylePanelTitle.Render("DEVICE DETAIL")
	escHint := StyleHelp.Render("[ESC]")
	titleLine := title + strings.Repeat(" ", max(0, innerW-lipgloss.Width(title)-lipgloss.Width(escHint))) + escHint
	sep := StyleRadarRing.Render(strings.Repeat("-", innerW))

	lines := []string{titleLine, sep, ""}

	labelSty := lipgloss.NewStyle().Foreground(ColorMidGreen)
	valSty := lipgloss.NewStyle().Foreground(ColorMatrixGreen).Bold(true)

	heading := bearing.ToCompass(e.Smoothed)
	name := e.Name
	if name == "" {
		name = "(unnamed)"
	}
	held := "no"
	if e.Rejected {
		held = "yes, jump past outlier threshold"
	}

	fields := []struct{ label, value string }{
		{"Name", name},
		{"MAC", e.DeviceID},
		{"Heading", fmt.Sprintf("%.0f° %s", bearing.Degrees(heading), bearing.CompassPoint(heading))},
		{"Bearing", fmt.Sprintf("%.1f° (raw %.1f°)", bearing.Degrees(e.Smoothed), bearing.Degrees(e.Raw))},
		{"Max RSSI", fmt.Sprintf("%d dBm", e.MaxRSSI)},
		{"Held", held},
		{"Last", humanize.Time(e.LastSeen)},
	}
	for _, f := range fields {
		lines = append(lines, labelSty.Render(fmt.Sprintf("  %-10s", f.label))+valSty.Render(f.value))
	}
	lines = append(lines, "")

	// Signal bar per scanner
	barWidth := max(innerW-24, 10)
	for _, d := range scanner.Directions {
		label := labelSty.Render(fmt.Sprintf("  %-6s ", d.String()))
		rssi, ok := e.Readings[d]
		if !ok {
			lines = append(lines, label+renderSignalBar(math.Inf(-1), barWidth)+StyleHelp.Render(" no signal"))
			continue
		}
		lines = append(lines, label+renderSignalBar(float64(rssi), barWidth)+valSty.Render(fmt.Sprintf(" %ddBm", rssi)))
	}
	lines = append(lines, "")

	if len(e.History) > 0 {
		lines = append(lines, labelSty.Render("  Heading History:"))
		spark := renderSparkline(unwrapHeadings(e.History), max(innerW-4, 10))
		lines = append(lines, "  "+lipgloss.NewStyle().Foreground(ColorGreen).Render(spark))
		lines = append(lines, "")
	}

	// Compass
	compassH := max(height-len(lines)-5, 5) // leave room for label + border
	compassW := min(innerW, compassH*3)
	if compass := RenderCompass(compassW, compassH, heading, float64(e.MaxRSSI)); compass != "" {
		prefix := strings.Repeat(" ", max(0, (innerW-compassW)/2))
		for _, cl := range strings.Split(compass, "\n") {
			lines = append(lines, prefix+cl)
		}
	}

	label := fmt.Sprintf("%s  %.0f°  %ddBm", bearing.CompassPoint(heading), bearing.Degrees(heading), e.MaxRSSI)
	lines = append(lines, strings.Repeat(" ", max(0, (innerW-len(label))/2))+valSty.Render(label))

	for len(lines) < height-2 {
		lines = append(lines, "")
	}

	rendered := StylePanelActive.Width(width - 2).Height(height - 2).Render(strings.Join(lines, "\n"))
	return clampLines(rendered, height)
}

// unwrapHeadings turns smoothed bearings into continuous compass degrees so
// that a track crossing north does not jump between 0 and 360.
func unwrapHeadings(bearings []float64) []float64 {
	out := make([]float64, len(bearings))
	for i, b := range bearings {
		if i == 0 {
			out[i] = bearing.Degrees(bearing.ToCompass(b))
			continue
		}
		out[i] = out[i-1] - bearing.Degrees(bearing.AngleDiff(b, bearings[i-1]))
	}
	return out
}

func renderSignalBar(rssi float64, width int) string {
	// Map RSSI -100..-30 to 0..width filled bars
	ratio := math.Max(0, math.Min(1, (rssi+100.0)/70.0))
	filled := int(math.Round(ratio * float64(width)))

	bar := strings.Repeat("|", filled) + strings.Repeat("-", width-filled)
	filledPart := lipgloss.NewStyle().Foreground(lipgloss.Color(proximityColor(rssi))).Render(bar[:filled])
	emptyPart := lipgloss.NewStyle().Foreground(ColorDimGreen).Render(bar[filled:])
	return StyleHelp.Render("[") + filledPart + emptyPart + StyleHelp.Render("]")
}

func renderSparkline(values []float64, width int) string {
	if len(values) == 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}

	chars := []byte{'_', '.', '-', '~', '^'}

	minV, maxV := values[0], values[0]
	for _, v := range values {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	rng := math.Max(maxV-minV, 1)

	var sb strings.Builder
	for _, v := range values {
		idx := int((v - minV) / rng * float64(len(chars)-1))
		sb.WriteByte(chars[max(0, min(idx, len(chars)-1))])
	}
	return sb.String()
}
