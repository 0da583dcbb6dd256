package contracts

// QueueState is the run state of a timing queue.
type QueueState int

const (
	QueueStopped QueueState = iota
	QueueRunning
	QueuePaused
)

func (s QueueState) String() string {
	switch s {
	case QueueStopped:
		return "stopped"
	case QueueRunning:
		return "running"
	case QueuePaused:
		return "paused"
	}
	return "invalid"
}

// QueueTempo is the timing parameterization of a queue: microseconds per
// quarter note plus pulses per quarter note.
type QueueTempo struct {
	Tempo uint32 // microseconds per quarter note
	PPQ   int
}

// BPM converts the microsecond tempo to beats per minute.
func (t QueueTempo) BPM() float64 {
	if t.Tempo == 0 {
		return 0
	}
	return 60e6 / float64(t.Tempo)
}

// QueueInfo is the directory entry of a queue.
type QueueInfo struct {
	QueueID int
	Name    string
	Owner   int
	Locked  bool
}

// QueueStatus is a point-in-time snapshot of a queue's clock. Tick is
// monotonically non-decreasing while the queue is Running.
type QueueStatus struct {
	QueueID int
	State   QueueState
	Tick    uint32
	Time    RealTime
	Events  int // events still pending on the queue
}
