package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// Status is what the bottom bar reports.
type Status struct {
	Running   bool
	Tracked   int
	Estimated int
	Threshold int
	Allowed   int
	Blocked   int
	Updated   time.Time // time of the last frame; zero before the first
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, s Status) string {
	state := StyleStatusRunning.Render("[LIVE]")
	if !s.Running {
		state = StyleStatusPaused.Render("[PAUSED]")
	}

	updated := "waiting"
	if !s.Updated.IsZero() {
		updated = humanize.Time(s.Updated)
	}

	info := fmt.Sprintf(" Devices: %s  Bearings: %s  Threshold: %ddBm  Allow: %d  Block: %d  Updated: %s",
		humanize.Comma(int64(s.Tracked)), humanize.Comma(int64(s.Estimated)), s.Threshold, s.Allowed, s.Blocked, updated)

	content := state + StyleStatusBar.Foreground(ColorGreen).Render(info)
	gap := max(0, width-lipgloss.Width(content))
	return StyleStatusBar.Width(width).Render(content + strings.Repeat(" ", gap))
}
