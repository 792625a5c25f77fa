package transfer

// State is a phase of one data transfer.
type State int

const (
	Idle State = iota
	PassiveOpened
	CommandSent
	Streaming
	ClosedSuccess
	ClosedFailure
)

var stateNames = [...]string{
	Idle:          "idle",
	PassiveOpened: "passive-opened",
	CommandSent:   "command-sent",
	Streaming:     "streaming",
	ClosedSuccess: "closed(success)",
	ClosedFailure: "closed(failure)",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether s ends a transfer.
func (s State) Terminal() bool { return s == ClosedSuccess || s == ClosedFailure }
