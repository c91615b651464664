package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/robodozer/pkg/bridge"
	"github.com/gwillem/robodozer/pkg/remote"
	"github.com/gwillem/robodozer/pkg/robot"
)

type InfoCommand struct {
	Live bool `long:"live" description:"Also read every sensor on the brick once"`
}

func (c *InfoCommand) Execute(args []string) error {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", opts.Config, err)
		os.Exit(1)
	}

	fmt.Println(headerStyle.Render("RoboDozer Configuration"))
	fmt.Println(renderTable([]string{"Setting", "Value"}, configRows(cfg)))

	if !c.Live {
		return nil
	}

	b, err := bridge.Open(cfg.Bridge)
	if err != nil {
		return err
	}
	defer b.Close()

	fmt.Println()
	fmt.Println(headerStyle.Render("Sensors"))
	fmt.Println(renderTable([]string{"Sensor", "Reading"}, sensorRows(b, cfg)))
	return nil
}

func configRows(cfg *robot.Config) [][]string {
	b := cfg.Behavior
	rows := [][]string{
		{"brick port", cfg.Bridge.Port},
		{"baud rate", strconv.Itoa(cfg.Bridge.BaudRate)},
		{"shovel motor", string(cfg.Ports.Implement)},
		{"drive motors", fmt.Sprintf("%s / %s", cfg.Ports.DriveLeft, cfg.Ports.DriveRight)},
		{"touch sensor", string(cfg.Ports.Touch)},
		{"infrared sensor", string(cfg.Ports.Infrared)},
		{"shovel driver", cfg.Implement.Driver},
	}
	if cfg.Implement.Driver == robot.ImplementFeetech {
		cal := cfg.Implement.Calibration
		rows = append(rows,
			[]string{"shovel servo", fmt.Sprintf("%d on %s", cal.ID, cfg.Implement.ServoPort)},
			[]string{"shovel travel", fmt.Sprintf("%d..%d", cal.RangeMin, cal.RangeMax)})
	}
	rows = append(rows,
		[]string{"drive channel", fmt.Sprintf("%d (power %d)", b.DriveChannel, b.DrivePower)},
		[]string{"shovel channel", fmt.Sprintf("%d (power %d)", b.ImplementChannel, b.ImplementPower)},
		[]string{"obstacle below", fmt.Sprintf("%.0f", b.ObstacleThreshold)},
		[]string{"cruise power", strconv.Itoa(b.CruisePower)},
		[]string{"back off", fmt.Sprintf("%d for %s", b.BackOffPower, b.BackOffTime.Duration())},
		[]string{"pivot", fmt.Sprintf("%d/%d for %s", b.PivotLeft, b.PivotRight, b.PivotTime.Duration())},
		[]string{"log", fmt.Sprintf("%s (%s)", cfg.Log.File, cfg.Log.Level)},
	)
	return rows
}

func sensorRows(b *bridge.Bridge, cfg *robot.Config) [][]string {
	reading := func(v any, err error) string {
		if err != nil {
			return "error: " + err.Error()
		}
		return fmt.Sprint(v)
	}

	touch, err := b.Touch(cfg.Ports.Touch)
	rows := [][]string{{"touch", reading(touch, err)}}

	prox, err := b.Proximity(cfg.Ports.Infrared)
	if err == nil {
		rows = append(rows, []string{"proximity", fmt.Sprintf("%.0f (normalized %.0f)", prox, cfg.Proximity.Normalize(prox))})
	} else {
		rows = append(rows, []string{"proximity", reading(nil, err)})
	}

	for ch := remote.MinChannel; ch <= remote.MaxChannel; ch++ {
		raw, err := b.Remote(cfg.Ports.Infrared, ch)
		if err == nil {
			rows = append(rows, []string{fmt.Sprintf("remote channel %d", ch), fmt.Sprintf("%d (%s)", raw, remote.Decode(raw))})
		} else {
			rows = append(rows, []string{fmt.Sprintf("remote channel %d", ch), reading(nil, err)})
		}
	}

	for _, name := range []string{"ENTER", "ESCAPE"} {
		pressed, err := b.Button(name)
		rows = append(rows, []string{"button " + name, reading(pressed, err)})
	}
	return rows
}

func renderTable(headers []string, rows [][]string) string {
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
			}
			if col == 0 {
				return keyStyle
			}
			return cellStyle
		}).
		Render()
}
