// Package remote decodes infrared remote readings into button commands.
package remote

// Command is the button combination pressed on the remote for one channel.
type Command int

// Commands in the numbering the infrared receiver reports them.
const (
	None Command = iota
	TopLeft
	BottomLeft
	TopRight
	BottomRight
	TopBoth
	TopLeftBottomRight
	TopRightBottomLeft
	BottomBoth
)

// Channel numbers selectable on the remote.
const (
	MinChannel = 1
	MaxChannel = 4
)

var commandNames = [...]string{
	None:               "none",
	TopLeft:            "top_left",
	BottomLeft:         "bottom_left",
	TopRight:           "top_right",
	BottomRight:        "bottom_right",
	TopBoth:            "top_both",
	TopLeftBottomRight: "top_left_bottom_right",
	TopRightBottomLeft: "top_right_bottom_left",
	BottomBoth:         "bottom_both",
}

func (c Command) String() string {
	if c < None || int(c) >= len(commandNames) {
		return "none"
	}
	return commandNames[c]
}

// AllCommands returns every command except None, in receiver order.
func AllCommands() []Command {
	return []Command{
		TopLeft,
		BottomLeft,
		TopRight,
		BottomRight,
		TopBoth,
		TopLeftBottomRight,
		TopRightBottomLeft,
		BottomBoth,
	}
}

// Decode maps a raw receiver value to a Command.
// The beacon (9), the same-side pairs (10, 11) and anything unknown are None.
func Decode(raw int) Command {
	if raw < int(TopLeft) || raw > int(BottomBoth) {
		return None
	}
	return Command(raw)
}

// Receiver reads raw values from an infrared receiver.
type Receiver interface {
	Read(channel int) int
}

// Decoder samples a receiver and decodes the reading.
type Decoder struct {
	rx Receiver
}

// NewDecoder creates a decoder on top of rx.
func NewDecoder(rx Receiver) *Decoder {
	return &Decoder{rx: rx}
}

// Command samples channel once and returns the decoded command.
// Channels outside 1-4 are never read and yield None.
func (d *Decoder) Command(channel int) Command {
	if channel < MinChannel || channel > MaxChannel {
		return None
	}
	return Decode(d.rx.Read(channel))
}
