package state

import "fmt"

// GlobalMode is the process-wide operating mode used to arbitrate between
// interactive hardware commands and long-running operations.
type GlobalMode int

const (
	ModeIdle GlobalMode = iota
	ModeLive
	ModeAcquiring
	ModeAborting
	ModeError
)

func (m GlobalMode) String() string {
	switch m {
	case ModeIdle:
		return "Idle"
	case ModeLive:
		return "Live"
	case ModeAcquiring:
		return "Acquiring"
	case ModeAborting:
		return "Aborting"
	case ModeError:
		return "Error"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// BlocksUIHardwareCommands reports whether hardware commands arriving over
// the event bus must be ignored in this mode.
func (m GlobalMode) BlocksUIHardwareCommands() bool {
	return m == ModeAcquiring || m == ModeAborting
}
