package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ComposeLayout joins the plot panel and device list horizontally,
// with menu bar on top and status bar on bottom.
func ComposeLayout(menuBar, plotPanel, deviceList, statusBar string) string {
	middle := lipgloss.JoinHorizontal(lipgloss.Top, plotPanel, deviceList)
	return lipgloss.JoinVertical(lipgloss.Left, menuBar, middle, statusBar)
}

// RenderPlotPanel wraps the polar plot with a titled border. The plot itself
// is rendered by the radar package.
func RenderPlotPanel(width, height int, plot, legend string) string {
	title := StylePanelTitle.Render("BEARINGS") + StyleHelp.Render("  north up")
	content := title + "\n" + plot + "\n" + legend
	return StylePanelBorder.Width(width - 2).Height(height - 2).Render(content)
}

// clampLines cuts or pads rendered output to exactly height lines.
// lipgloss Height() only sets a minimum; it won't truncate overflow.
func clampLines(rendered string, height int) string {
	lines := strings.Split(rendered, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
