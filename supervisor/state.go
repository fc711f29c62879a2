package supervisor

type State int32

const (
	Idle State = iota
	Starting
	Running
	Failed
	BackingOff
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Failed:
		return "Failed"
	case BackingOff:
		return "BackingOff"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
