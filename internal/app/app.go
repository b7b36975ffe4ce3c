package app

import (
	"strings"
	"time"

	"ble-bearing.klederson.com/internal/config"
	"ble-bearing.klederson.com/internal/live"
	"ble-bearing.klederson.com/internal/radar"
	"ble-bearing.klederson.com/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
)

// Controller is the part of the live aggregator the TUI drives.
type Controller interface {
	Filter() live.Filter
	Running() bool
	SetAllowList(ids []string)
	SetBlockList(ids []string)
	Block(id string)
	SetThreshold(dbm int)
	Pause()
	Resume()
}

// shared holds state shared between the Bubble Tea model copies.
// Because Bubble Tea uses value receivers, pointer fields ensure all copies
// see the same underlying data.
type shared struct {
	sweep *radar.Sweep
}

// AppModel is the root Bubble Tea model for the live bearing view.
type AppModel struct {
	width  int
	height int

	source  string
	control Controller
	onQuit  func()
	shared  *shared

	frame    live.Frame
	cursor   int
	selected string // device id under the cursor
	detail   bool

	mode  ui.InputMode
	input string
}

// New creates a new AppModel. source names where the scanners are attached;
// onQuit, if set, runs once when the user quits.
func New(control Controller, source string, onQuit func()) AppModel {
	return AppModel{
		source:  source,
		control: control,
		onQuit:  onQuit,
		shared: &shared{
			sweep: radar.NewSweep(time.Now()),
		},
	}
}

// FrameSink forwards aggregator frames into a running program.
func FrameSink(p *tea.Program) func(live.Frame) {
	return func(f live.Frame) {
		p.Send(FrameMsg(f))
	}
}

func (m AppModel) Init() tea.Cmd {
	return tickCmd()
}

func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.mode != ui.InputNone {
			return m.handleInput(msg)
		}
		return m.handleKey(msg)

	case TickMsg:
		m.shared.sweep.Advance(time.Time(msg))
		return m, tickCmd()

	case FrameMsg:
		m.frame = live.Frame(msg)
		m.follow()
		return m, nil
	}

	return m, nil
}

// follow keeps the cursor on the selected device as the order changes.
func (m *AppModel) follow() {
	estimates := m.frame.Estimates
	for i, e := range estimates {
		if e.DeviceID == m.selected {
			m.cursor = i
			return
		}
	}
	if len(estimates) == 0 {
		m.cursor = 0
		m.selected = ""
		m.detail = false
		return
	}
	// The selected device is gone; stay on the same row.
	m.cursor = min(m.cursor, len(estimates)-1)
	m.selected = estimates[m.cursor].DeviceID
	m.detail = false
}

func (m *AppModel) moveTo(i int) {
	if len(m.frame.Estimates) == 0 {
		return
	}
	m.cursor = max(0, min(i, len(m.frame.Estimates)-1))
	m.selected = m.frame.Estimates[m.cursor].DeviceID
}

func (m AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		if m.onQuit != nil {
			m.onQuit()
		}
		return m, tea.Quit

	case "s", "S":
		m.control.Resume()

	case "p", "P":
		m.control.Pause()

	case "up", "k":
		m.moveTo(m.cursor - 1)

	case "down", "j":
		m.moveTo(m.cursor + 1)

	case "home":
		m.moveTo(0)

	case "end":
		m.moveTo(len(m.frame.Estimates) - 1)

	case "enter":
		if _, ok := m.selectedEstimate(); ok {
			m.detail = true
		}

	case "esc":
		m.detail = false

	case "+", "=":
		m.control.SetThreshold(m.control.Filter().Threshold + config.ThresholdStep)

	case "-", "_":
		m.control.SetThreshold(m.control.Filter().Threshold - config.ThresholdStep)

	case "a", "A":
		m.mode = ui.InputAllow
		m.input = strings.Join(m.control.Filter().Allow(), ",")

	case "b", "B":
		m.mode = ui.InputBlock
		m.input = strings.Join(m.control.Filter().Block(), ",")

	case "x", "X":
		if m.selected != "" {
			m.control.Block(m.selected)
		}

	case "c", "C":
		m.control.SetAllowList(nil)
		m.control.SetBlockList(nil)
	}

	return m, nil
}

func (m AppModel) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.mode = ui.InputNone
		return m.handleKey(msg)

	case tea.KeyEnter:
		ids := live.ParseIDList(m.input)
		if m.mode == ui.InputAllow {
			m.control.SetAllowList(ids)
		} else {
			m.control.SetBlockList(ids)
		}
		m.mode, m.input = ui.InputNone, ""

	case tea.KeyEsc:
		m.mode, m.input = ui.InputNone, ""

	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}

	case tea.KeyRunes, tea.KeySpace:
		m.input += string(msg.Runes)
	}

	return m, nil
}

func (m AppModel) selectedEstimate() (live.Estimate, bool) {
	for _, e := range m.frame.Estimates {
		if e.DeviceID == m.selected {
			return e, true
		}
	}
	return live.Estimate{}, false
}

func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing " + config.AppName + "..."
	}

	menuH := 1
	statusH := 1
	bodyH := max(m.height-menuH-statusH, 5)

	plotW := max(m.width*2/3, 30)
	listW := m.width - plotW
	if listW < 30 {
		listW = 30
		plotW = max(m.width-listW, 20)
	}

	running := m.control.Running()
	filter := m.control.Filter()

	menuBar := ui.RenderMenuBar(m.width, m.source, running)

	var plotPanel string
	if e, ok := m.selectedEstimate(); ok && m.detail {
		plotPanel = ui.RenderDetailPanel(e, plotW, bodyH)
	} else {
		innerW := max(plotW-4, 5)
		innerH := max(bodyH-4, 3)
		plot := radar.Render(innerW, innerH, m.frame.Estimates, m.selected, m.shared.sweep)
		plotPanel = ui.RenderPlotPanel(plotW, bodyH, plot, radar.RenderLegend(innerW))
	}

	deviceList := ui.RenderDeviceList(m.frame.Estimates, listW, bodyH, m.cursor, ui.FilterState{
		Threshold: filter.Threshold,
		Allow:     filter.Allow(),
		Block:     filter.Block(),
		Mode:      m.mode,
		Text:      m.input,
	})

	statusBar := ui.RenderStatusBar(m.width, ui.Status{
		Running:   running,
		Tracked:   m.frame.Tracked,
		Estimated: len(m.frame.Estimates),
		Threshold: filter.Threshold,
		Allowed:   len(filter.Allow()),
		Blocked:   len(filter.Block()),
		Updated:   m.frame.Time,
	})

	return ui.ComposeLayout(menuBar, plotPanel, deviceList, statusBar)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(config.TargetFPS), func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
