package scanning

import "github.com/anstrom/portsweep/internal/osdetect"

// EventKind identifies the type of a session event.
type EventKind string

const (
	EventOSGuessed    EventKind = "os_guessed"
	EventOpenPort     EventKind = "open_port"
	EventProgress     EventKind = "progress"
	EventScanComplete EventKind = "scan_complete"
)

// Event is one notification emitted by a scan session.
type Event struct {
	Kind      EventKind        `json:"kind"`
	SessionID string           `json:"session_id"`
	OSGuess   osdetect.OSGuess `json:"os_guess,omitempty"`
	Record    *OpenPortRecord  `json:"record,omitempty"`
	Completed int              `json:"completed,omitempty"`
	Total     int              `json:"total,omitempty"`
	State     State            `json:"state,omitempty"`
}

// eventCapacity is large enough that a session never blocks on emit:
// one progress event per port, at most one open-port event per port,
// plus the OS guess and the completion event.
func eventCapacity(total int) int {
	return 2*total + 2
}
