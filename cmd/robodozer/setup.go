package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/robodozer/pkg/bridge"
	"github.com/gwillem/robodozer/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type SetupCommand struct {
	Baud        int    `long:"baud" default:"115200" description:"Baud rate of the brick bridge"`
	Calibration string `long:"calibration" description:"Import the shovel servo calibration from a file instead of recording it"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("RoboDozer Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━"))
	fmt.Println()

	config := robot.DefaultConfig()
	if existing, err := robot.LoadConfigFrom(opts.Config); err == nil {
		config = existing
	}

	ports := listPorts()
	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		fmt.Println("Make sure the brick is connected and powered on.")
		os.Exit(1)
	}

	// Step 1: Find the brick
	brickPort := findBrick(ports, c.Baud)
	config.Bridge.Port = brickPort
	config.Bridge.BaudRate = c.Baud

	// Step 2: Remote channels
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Remote Channels ━━━"))
	fmt.Println()
	askChannels(&config.Behavior)

	// Step 3: Shovel driver
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Shovel ━━━"))
	fmt.Println()
	setupImplement(&config.Implement, ports, brickPort, c.Calibration)

	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := config.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"))
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start the dozer with: " + headerStyle.Render("robodozer run"))

	return nil
}

func listPorts() []string {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var out []string
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}
		out = append(out, port)
	}
	return out
}

func findBrick(ports []string, baud int) string {
	fmt.Println("Looking for the brick...")
	fmt.Println()

	var found []string
	for _, port := range ports {
		if bridge.Probe(port, baud) {
			fmt.Printf("  Found brick on %s\n", port)
			found = append(found, port)
		}
	}

	switch len(found) {
	case 0:
		fmt.Println("No brick answered.")
		fmt.Println("Make sure the bridge program is running on the brick.")
		os.Exit(1)
	case 1:
		return found[0]
	}

	var options []huh.Option[string]
	for _, port := range found {
		options = append(options, huh.NewOption(port, port))
	}

	var port string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which brick drives the dozer?").
				Options(options...).
				Value(&port),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return port
}

func askChannels(b *robot.Behavior) {
	drive := strconv.Itoa(b.DriveChannel)
	implement := strconv.Itoa(b.ImplementChannel)

	channelOptions := func() []huh.Option[string] {
		var options []huh.Option[string]
		for ch := 1; ch <= 4; ch++ {
			options = append(options, huh.NewOption(fmt.Sprintf("Channel %d", ch), strconv.Itoa(ch)))
		}
		return options
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Drive channel").
				Description("Remote channel that steers the tracks").
				Options(channelOptions()...).
				Value(&drive),
			huh.NewSelect[string]().
				Title("Shovel channel").
				Description("Remote channel that raises and lowers the shovel").
				Options(channelOptions()...).
				Value(&implement),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	b.DriveChannel, _ = strconv.Atoi(drive)
	b.ImplementChannel, _ = strconv.Atoi(implement)
}

func setupImplement(ic *robot.ImplementConfig, ports []string, brickPort, calibrationFile string) {
	var useServo bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Is the shovel moved by a Feetech servo?").
				Description("Choose No when it runs on a brick motor port").
				Affirmative("Servo").
				Negative("Brick motor").
				Value(&useServo),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}

	if !useServo {
		ic.Driver = robot.ImplementBridge
		return
	}

	port, servo, ok := findServo(ports, brickPort)
	if !ok {
		fmt.Println("No servo found, keeping the brick motor.")
		ic.Driver = robot.ImplementBridge
		return
	}

	ic.Driver = robot.ImplementFeetech
	ic.ServoPort = port
	if calibrationFile == "" {
		ic.Calibration = calibrateServo(port, servo)
		return
	}

	cal, err := importCalibration(calibrationFile, servo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing calibration: %v\n", err)
		os.Exit(1)
	}
	ic.Calibration = cal
	fmt.Printf("Imported shovel travel %d..%d from %s\n", cal.RangeMin, cal.RangeMax, calibrationFile)
}

// importCalibration reads a servo calibration file for the servo found on
// the bus. A file without an id applies to that servo.
func importCalibration(path string, found feetech.FoundServo) (robot.ServoCalibration, error) {
	cal, err := robot.LoadServoCalibration(path)
	if err != nil {
		return robot.ServoCalibration{}, err
	}
	if cal.ID == 0 {
		cal.ID = found.ID
	}
	if cal.ID != found.ID {
		return robot.ServoCalibration{}, fmt.Errorf("calibration is for servo %d, found servo %d", cal.ID, found.ID)
	}
	if !cal.IsCalibrated() {
		return robot.ServoCalibration{}, fmt.Errorf("no travel range in %s", path)
	}
	return cal, nil
}

func findServo(ports []string, brickPort string) (string, feetech.FoundServo, bool) {
	fmt.Println("Scanning for servos...")

	type candidate struct {
		port  string
		servo feetech.FoundServo
	}
	var found []candidate
	for _, port := range ports {
		if port == brickPort {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		servos, err := robot.ScanServos(ctx, port)
		cancel()
		if err != nil {
			continue
		}
		for _, s := range servos {
			fmt.Printf("  Found servo %d on %s\n", s.ID, port)
			found = append(found, candidate{port, s})
		}
	}

	switch len(found) {
	case 0:
		return "", feetech.FoundServo{}, false
	case 1:
		return found[0].port, found[0].servo, true
	}

	var options []huh.Option[int]
	for i, c := range found {
		options = append(options, huh.NewOption(fmt.Sprintf("Servo %d on %s", c.servo.ID, c.port), i))
	}
	var choice int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[int]().
				Title("Which servo moves the shovel?").
				Options(options...).
				Value(&choice),
		),
	)
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
	return found[choice].port, found[choice].servo, true
}

func calibrateServo(port string, found feetech.FoundServo) robot.ServoCalibration {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to servo: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()

	servo := feetech.NewServo(bus, found.ID, found.Model)
	ctx := context.Background()
	wiggle(ctx, servo, port)

	// Disable torque so the shovel can be moved by hand
	servo.Disable(ctx)

	pos, err := servo.Position(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading servo: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(subHeaderStyle.Render("Record shovel travel"))
	fmt.Println("Move the shovel to its lowest AND highest positions.")
	fmt.Println()

	p := tea.NewProgram(calibrationModel{servo: servo, cur: pos, min: pos, max: pos})
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running calibration: %v\n", err)
		os.Exit(1)
	}
	cm := finalModel.(calibrationModel)

	fmt.Println("Shovel calibrated.")
	return robot.ServoCalibration{
		ID:       found.ID,
		RangeMin: cm.min,
		RangeMax: cm.max,
	}
}

// wiggle twitches the servo so the operator can check it is the shovel.
func wiggle(ctx context.Context, servo *feetech.Servo, port string) {
	originalPos, err := servo.Position(ctx)
	if err != nil {
		fmt.Printf("  Error reading position: %v\n", err)
		return
	}
	if err := servo.Enable(ctx); err != nil {
		fmt.Printf("  Error enabling servo: %v\n", err)
		return
	}

	fmt.Printf("  Wiggling shovel on %s...\n\n", port)

	wiggleAmount := 30
	moveTimeMs := 500
	servo.SetPositionWithTime(ctx, originalPos+wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	servo.SetPositionWithTime(ctx, originalPos-wiggleAmount, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
	servo.SetPositionWithTime(ctx, originalPos, moveTimeMs)
	time.Sleep(time.Duration(moveTimeMs+100) * time.Millisecond)
}

// Calibration TUI model
type calibrationModel struct {
	servo         *feetech.Servo
	cur, min, max int
	quitting      bool
}

type calibrationTickMsg time.Time

func calibrationTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return calibrationTickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return calibrationTick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter", "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case calibrationTickMsg:
		pos, err := m.servo.Position(context.Background())
		if err == nil {
			m.cur = pos
			m.min = min(m.min, pos)
			m.max = max(m.max, pos)
		}
		return m, calibrationTick()
	}

	return m, nil
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	rangeSize := m.max - m.min
	rangeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
	if rangeSize > 500 {
		rangeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	}
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	currentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Current", "Min", "Max", "Range").
		Row(strconv.Itoa(m.cur), strconv.Itoa(m.min), strconv.Itoa(m.max), strconv.Itoa(rangeSize)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
			}
			switch col {
			case 0:
				return currentStyle
			case 3:
				return rangeStyle
			default:
				return cellStyle
			}
		})

	return t.Render() + "\n\n" + dimStyle.Render("Press Enter when done")
}
