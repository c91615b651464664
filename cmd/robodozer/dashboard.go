package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/robodozer/pkg/dozer"
	"github.com/gwillem/robodozer/pkg/remote"
	"github.com/gwillem/robodozer/pkg/robot"
	"github.com/gwillem/robodozer/pkg/sim"
)

const (
	headerHeight = 3 // title + status + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	keysHeight   = 1
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border
	chartRate    = 100 * time.Millisecond
)

// Series colors
var seriesColors = []struct {
	name  string
	color string
}{
	{"proximity", "46"}, // green
	{"left", "208"},     // orange
	{"right", "51"},     // cyan
	{"shovel", "201"},   // magenta
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	modeStyles  = map[dozer.Mode]lipgloss.Style{
		dozer.Driving: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		dozer.Auto:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
	}
	escapeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

// simKey is a dashboard key that presses a remote button combination.
type simKey struct {
	implement bool
	cmd       remote.Command
}

// simKeys turn the keyboard into the infrared remote when running simulated.
var simKeys = map[string]simKey{
	"up":    {cmd: remote.TopBoth},
	"w":     {cmd: remote.TopBoth},
	"down":  {cmd: remote.BottomBoth},
	"s":     {cmd: remote.BottomBoth},
	"left":  {cmd: remote.TopLeftBottomRight},
	"a":     {cmd: remote.TopLeftBottomRight},
	"right": {cmd: remote.TopRightBottomLeft},
	"d":     {cmd: remote.TopRightBottomLeft},
	"r":     {implement: true, cmd: remote.TopLeft},
	"f":     {implement: true, cmd: remote.BottomLeft},
}

type dashboardModel struct {
	ctrl     *dozer.Controller
	behavior robot.Behavior
	world    *sim.World // nil on hardware
	runID    string
	// stop halts the controller and then the motors.
	stop func()

	chart    *streamlinechart.Model
	width    int      // terminal width
	height   int      // terminal height
	logs     []string // last N log messages
	state    dozer.State
	quitting bool
}

func (m *dashboardModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the controller
type stateMsg dozer.State
type logMsg string
type tickMsg time.Time

func waitForState(ctrl *dozer.Controller) tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-ctrl.States())
	}
}

func waitForLog(ctrl *dozer.Controller) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-ctrl.Logs())
	}
}

func tick() tea.Cmd {
	return tea.Tick(chartRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *dashboardModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - keysHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *dashboardModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func newDashboardModel(ctrl *dozer.Controller, b robot.Behavior, world *sim.World, runID string) dashboardModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(-100, 100),
	)
	for _, s := range seriesColors {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color))
		chart.SetDataSetStyles(s.name, runes.ThinLineStyle, style)
	}

	return dashboardModel{
		ctrl:     ctrl,
		behavior: b,
		world:    world,
		runID:    runID,
		chart:    &chart,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		waitForState(m.ctrl),
		waitForLog(m.ctrl),
		tick(),
	)
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			if m.quitting {
				return m, nil
			}
			m.quitting = true
			stop := m.stop
			return m, func() tea.Msg {
				if stop != nil {
					stop()
				}
				return tea.Quit()
			}
		}
		if m.world != nil {
			m.simKey(key)
		}
		return m, nil

	case stateMsg:
		m.state = dozer.State(msg)
		return m, waitForState(m.ctrl)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.ctrl)

	case tickMsg:
		m.chart.PushDataSet("proximity", m.state.Proximity)
		m.chart.PushDataSet("left", float64(m.state.Drive.Left))
		m.chart.PushDataSet("right", float64(m.state.Drive.Right))
		if m.world != nil {
			m.chart.PushDataSet("shovel", m.world.Snapshot().Shovel)
		}
		m.chart.DrawAll()
		return m, tick()
	}

	return m, nil
}

func (m *dashboardModel) simKey(key string) {
	switch key {
	case "t", " ":
		m.world.TapTouch()
	case "esc":
		m.world.PressEscape()
		m.addLog("Escape pressed, stopping after this round")
	case "enter":
		m.world.AssertExit()
	default:
		k, ok := simKeys[key]
		if !ok {
			return
		}
		channel := m.behavior.DriveChannel
		if k.implement {
			channel = m.behavior.ImplementChannel
		}
		m.world.SetRemote(channel, int(k.cmd))
	}
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Stopping the dozer after the current step...\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("RoboDozer"))
	if m.world != nil {
		sb.WriteString(statusStyle.Render(" (simulated)"))
	}
	sb.WriteString(statusStyle.Render("  run " + shortID(m.runID)))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(m.renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4).
		Foreground(lipgloss.Color("9")) // bright red

	var logLines string
	if len(m.logs) == 0 {
		logLines = statusStyle.Render("Waiting for the engine...")
	} else {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render(m.keyHelp()))

	return sb.String()
}

func (m dashboardModel) renderStatus() string {
	s := m.state
	var parts []string
	parts = append(parts, modeStyles[s.Mode].Render(strings.ToUpper(s.Mode.String())))
	parts = append(parts, fmt.Sprintf("iter %d", s.Iteration))
	switch s.Mode {
	case dozer.Driving:
		parts = append(parts,
			fmt.Sprintf("drive %s", s.DriveCommand),
			fmt.Sprintf("shovel %s", s.ImplementCommand))
	case dozer.Auto:
		parts = append(parts, fmt.Sprintf("proximity %.0f", s.Proximity))
		if s.Escaping {
			parts = append(parts, escapeStyle.Render("ESCAPING"))
		}
	}
	parts = append(parts, "touch "+s.Touch.String())
	if m.world != nil {
		snap := m.world.Snapshot()
		parts = append(parts,
			fmt.Sprintf("wall %.0f", snap.Distance),
			fmt.Sprintf("lanes %d", snap.Lanes))
	}
	return strings.Join(parts, statusStyle.Render("  |  "))
}

func (m dashboardModel) renderLegend() string {
	var items []string
	for _, s := range seriesColors {
		if s.name == "shovel" && m.world == nil {
			continue
		}
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(s.color)).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+s.name)
	}
	return strings.Join(items, "  ")
}

func (m dashboardModel) keyHelp() string {
	if m.world == nil {
		return "q quit"
	}
	return "w/a/s/d drive  r/f shovel  t touch  esc escape  enter exit  q quit"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
