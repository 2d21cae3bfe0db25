package toolloop

import "fmt"

// Status categorizes how a loop run ended.
type Status int

const (
	// StatusResponded means the model answered in plain text without
	// calling any tool. Result carries the text.
	StatusResponded Status = iota

	// StatusDone means the model called finish. Result carries its
	// summary and the session is marked finished.
	StatusDone

	// StatusExhausted means the iteration budget ran out before the
	// model finished. Result carries ExhaustedMessage and the session
	// stays unfinished.
	StatusExhausted
)

// String returns a human-readable name for the status.
func (s Status) String() string {
	switch s {
	case StatusResponded:
		return "Responded"
	case StatusDone:
		return "Done"
	case StatusExhausted:
		return "Exhausted"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// Outcome reports how a run ended and after how many model calls.
type Outcome struct {
	Status     Status
	Result     string
	Iterations int
}
