package workflow

// State is a step of a single reporting run.
type State string

const (
	StateIdle               State = "idle"
	StateAwaitingPermission State = "awaiting_permission"
	StateAwaitingFix        State = "awaiting_fix"
	StateReporting          State = "reporting"

	// Terminal states that end a run without a report.
	StateDisabled         State = "disabled"
	StatePermissionDenied State = "permission_denied"
	StateFixUnavailable   State = "fix_unavailable"
	StateBusy             State = "busy"
)

func (s State) String() string {
	return string(s)
}
