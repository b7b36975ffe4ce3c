package radar

import (
	"math"
	"strings"

	"ble-bearing.klederson.com/internal/bearing"
	"ble-bearing.klederson.com/internal/config"
	"ble-bearing.klederson.com/internal/live"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorBright   = lipgloss.Color("#00FF41")
	colorMid      = lipgloss.Color("#008F11")
	colorDim      = lipgloss.Color("#004A0A")
	colorDevice   = lipgloss.Color("#00FFAA")
	colorSelected = lipgloss.Color("#FFFFFF")
	colorHeld     = lipgloss.Color("#FFAA00")

	styleCenter   = lipgloss.NewStyle().Foreground(colorBright).Bold(true)
	styleCardinal = lipgloss.NewStyle().Foreground(colorBright).Bold(true)
	styleRing     = lipgloss.NewStyle().Foreground(colorMid)
	styleDot      = lipgloss.NewStyle().Foreground(colorDim)
	styleDevice   = lipgloss.NewStyle().Foreground(colorDevice).Bold(true)
	styleSelected = lipgloss.NewStyle().Foreground(colorSelected).Bold(true)
	styleHeld     = lipgloss.NewStyle().Foreground(colorHeld).Bold(true)
	styleTrailNew = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA22"))
	styleTrailOld = lipgloss.NewStyle().Foreground(colorDim)
	styleLabel    = lipgloss.NewStyle().Foreground(colorDevice)
	styleLabelSel = lipgloss.NewStyle().Foreground(colorSelected).Bold(true)
)

const maxLabelLen = 8

type blip struct {
	col, row int
	est      *live.Estimate
	selected bool
	label    string
	labelCol int
	labelRow int
}

type trailCell struct {
	age float64 // 0 newest, 1 oldest
}

type segment struct{ start, end int }

// Render draws the polar bearing plot: north up, one blip per estimate at
// its smoothed bearing, with its recent bearings as a fading trail.
func Render(width, height int, estimates []live.Estimate, selected string, sweep *Sweep) string {
	if width < 10 || height < 5 {
		return ""
	}

	centerX := width / 2
	centerY := height / 2
	radius := float64(min(centerX-1, int(float64(centerY-1)/config.AspectRatio)))
	if radius < 3 {
		radius = 3
	}

	ringRadii := make([]float64, config.RingCount)
	for i := range ringRadii {
		ringRadii[i] = radius * float64(i+1) / float64(config.RingCount)
	}

	blips := placeBlips(estimates, selected, centerX, centerY, radius, width)
	trails := placeTrails(estimates, centerX, centerY, radius, width)
	cardinals := map[int]byte{}
	for i, mark := range []byte{'N', 'E', 'S', 'W'} {
		col, row := Project(float64(i)*math.Pi/2, radius, centerX, centerY)
		cardinals[row*width+col] = mark
	}

	type labelCell struct {
		blip    int
		charIdx int
	}
	labels := make(map[int]labelCell)
	blipAt := make(map[int]int)
	for i, b := range blips {
		blipAt[b.row*width+b.col] = i
		for ci := 0; ci < len(b.label); ci++ {
			labels[b.labelRow*width+b.labelCol+ci] = labelCell{blip: i, charIdx: ci}
		}
	}

	var sb strings.Builder
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			key := row*width + col
			if lc, ok := labels[key]; ok {
				b := blips[lc.blip]
				sty := styleLabel
				if b.selected {
					sty = styleLabelSel
				}
				sb.WriteString(sty.Render(string(b.label[lc.charIdx])))
				continue
			}
			if i, ok := blipAt[key]; ok {
				sb.WriteString(renderBlip(blips[i]))
				continue
			}
			if t, ok := trails[key]; ok {
				sb.WriteString(renderTrail(t))
				continue
			}
			if mark, ok := cardinals[key]; ok {
				sb.WriteString(styleCardinal.Render(string(mark)))
				continue
			}
			sb.WriteString(renderCell(col, row, centerX, centerY, radius, ringRadii, sweep))
		}
		if row < height-1 {
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

// placeBlips positions estimates and their labels. A label goes right of its
// blip, or left near the edge; on collision it tries the row below, then
// above, then is dropped.
func placeBlips(estimates []live.Estimate, selected string, centerX, centerY int, radius float64, width int) []blip {
	blips := make([]blip, 0, len(estimates))
	occupied := make(map[int][]segment)

	for i := range estimates {
		e := &estimates[i]
		h := bearing.ToCompass(e.Smoothed)
		col, row := Project(h, RSSIRadius(float64(e.MaxRSSI), radius), centerX, centerY)

		label := callsign(e)
		lc := col + 2
		if lc+len(label) >= width {
			lc = col - len(label) - 1
		}
		lc = max(lc, 0)

		lr := row
		placed := false
		for _, candidate := range []int{row, row + 1, row - 1} {
			if !collides(occupied[candidate], lc, lc+len(label)) {
				lr = candidate
				placed = true
				break
			}
		}
		if !placed {
			label = ""
		}

		blips = append(blips, blip{
			col:      col,
			row:      row,
			est:      e,
			selected: e.DeviceID == selected,
			label:    label,
			labelCol: lc,
			labelRow: lr,
		})

		occupied[row] = append(occupied[row], segment{col, col + 1})
		if label != "" {
			occupied[lr] = append(occupied[lr], segment{lc, lc + len(label)})
		}
	}
	return blips
}

func placeTrails(estimates []live.Estimate, centerX, centerY int, radius float64, width int) map[int]trailCell {
	trails := make(map[int]trailCell)
	for _, e := range estimates {
		hist := e.History
		if len(hist) > 0 {
			hist = hist[:len(hist)-1] // the newest point is the blip itself
		}
		if len(hist) > config.TrailLength {
			hist = hist[len(hist)-config.TrailLength:]
		}
		r := RSSIRadius(float64(e.MaxRSSI), radius)
		for i, b := range hist {
			col, row := Project(bearing.ToCompass(b), r, centerX, centerY)
			age := 1 - float64(i+1)/float64(len(hist))
			key := row*width + col
			if prev, ok := trails[key]; !ok || age < prev.age {
				trails[key] = trailCell{age: age}
			}
		}
	}
	return trails
}

func collides(segs []segment, start, end int) bool {
	for _, s := range segs {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

func callsign(e *live.Estimate) string {
	if e.Name != "" {
		name := e.Name
		if len(name) > maxLabelLen {
			name = name[:maxLabelLen]
		}
		return name
	}
	id := e.DeviceID
	if len(id) > 5 {
		id = id[len(id)-5:]
	}
	return "#" + id
}

func renderBlip(b blip) string {
	switch {
	case b.selected:
		return styleSelected.Render("@")
	case b.est.Rejected:
		return styleHeld.Render("*")
	default:
		return styleDevice.Render("*")
	}
}

func renderTrail(t trailCell) string {
	if t.age < 0.5 {
		return styleTrailNew.Render("o")
	}
	return styleTrailOld.Render(".")
}

func renderCell(col, row, centerX, centerY int, radius float64, ringRadii []float64, sweep *Sweep) string {
	dist := CellDistance(col, row, centerX, centerY)
	h := CellHeading(col, row, centerX, centerY)

	if dist > radius+0.5 {
		return " "
	}

	if col == centerX && row == centerY {
		return styleCenter.Render("+")
	}

	if col == centerX {
		return renderSweepChar('|', sweep, h)
	}
	if row == centerY {
		return renderSweepChar('-', sweep, h)
	}

	for _, ringR := range ringRadii {
		if math.Abs(dist-ringR) < 0.8 {
			return renderSweepChar(RingChar(h), sweep, h)
		}
	}

	return renderSweepChar('.', sweep, h)
}

func renderSweepChar(ch rune, sweep *Sweep, h float64) string {
	color := sweepColor(sweep.Intensity(h))
	if color == "" {
		if ch == '.' {
			return styleDot.Render(".")
		}
		return styleRing.Render(string(ch))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(string(ch))
}

func sweepColor(intensity float64) string {
	switch {
	case intensity <= 0:
		return ""
	case intensity > 0.8:
		return "#00FF41"
	case intensity > 0.5:
		return "#00CC33"
	case intensity > 0.3:
		return "#00AA22"
	default:
		return "#005511"
	}
}

// RenderLegend produces the plot legend line.
func RenderLegend(width int) string {
	legend := styleDevice.Render("* device") + "  " +
		styleSelected.Render("@ selected") + "  " +
		styleHeld.Render("* held") + "  " +
		styleTrailNew.Render("o trail")

	pad := max(0, (width-lipgloss.Width(legend))/2)
	return strings.Repeat(" ", pad) + legend
}
