package discovery

// State is a phase of one discovery run
type State int

const (
	StateInit State = iota
	StateSessionReady
	StateScrollAndSample
	StateFatalRetry
	StateTerminated
	StateFlushed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateSessionReady:
		return "session_ready"
	case StateScrollAndSample:
		return "scroll_and_sample"
	case StateFatalRetry:
		return "fatal_retry"
	case StateTerminated:
		return "terminated"
	case StateFlushed:
		return "flushed"
	default:
		return "unknown"
	}
}

// ScrollState holds the two stall counters that decide when a feed is
// exhausted. It lives only as long as one scroll-and-sample phase.
type ScrollState struct {
	// ScrollStalls counts consecutive iterations whose page height did not change
	ScrollStalls int
	// RecordStalls counts consecutive iterations that found no new record
	RecordStalls int
}

// Observe folds one iteration's outcome into the counters
func (s *ScrollState) Observe(heightChanged, newRecords bool) {
	if heightChanged {
		s.ScrollStalls = 0
	} else {
		s.ScrollStalls++
	}
	if newRecords {
		s.RecordStalls = 0
	} else {
		s.RecordStalls++
	}
}

// Reset zeroes both counters
func (s *ScrollState) Reset() {
	*s = ScrollState{}
}

// Exhausted reports whether either counter is past its bound
func (s ScrollState) Exhausted(scrollBound, recordBound int) bool {
	return s.ScrollStalls > scrollBound || s.RecordStalls > recordBound
}
