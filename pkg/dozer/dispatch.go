package dozer

import "github.com/gwillem/robodozer/pkg/remote"

// DriveAction is what the drive pair does for one remote command.
type DriveAction struct {
	Left, Right int
	Brake       bool
}

// ImplementAction is what the shovel motor does for one remote command.
type ImplementAction struct {
	Power int
	Brake bool
}

// driveSigns holds the direction of each track per command, scaled by the drive power.
var driveSigns = map[remote.Command][2]int{
	remote.TopLeft:            {0, -1},
	remote.BottomLeft:         {0, 1},
	remote.TopRight:           {-1, 0},
	remote.BottomRight:        {1, 0},
	remote.TopBoth:            {-1, -1},
	remote.TopLeftBottomRight: {1, -1},
	remote.TopRightBottomLeft: {-1, 1},
	remote.BottomBoth:         {1, 1},
}

// implementSigns holds the shovel direction per command.
var implementSigns = map[remote.Command]int{
	remote.TopLeft:    1,
	remote.BottomLeft: -1,
}

// DriveActionFor returns the drive action for cmd. Commands without an entry
// brake both tracks.
func DriveActionFor(cmd remote.Command, power int) DriveAction {
	s, ok := driveSigns[cmd]
	if !ok {
		return DriveAction{Brake: true}
	}
	return DriveAction{Left: s[0] * power, Right: s[1] * power}
}

// ImplementActionFor returns the shovel action for cmd. Commands without an
// entry brake the shovel.
func ImplementActionFor(cmd remote.Command, power int) ImplementAction {
	s, ok := implementSigns[cmd]
	if !ok {
		return ImplementAction{Brake: true}
	}
	return ImplementAction{Power: s * power}
}
