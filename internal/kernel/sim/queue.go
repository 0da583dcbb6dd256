package sim

import (
	"sort"
	"time"

	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// queue is one simulated timing queue. Position is tracked as a (baseTick,
// baseTime, resumedAt) triple: while Running, the current tick/time is the
// base plus the elapsed wall time scaled by tempo; while halted it is the
// base itself. All methods run under Kernel.mu.
type queue struct {
	id    int
	name  string
	owner int

	tempo uint32 // microseconds per quarter note
	ppq   int

	state     contracts.QueueState
	baseTick  float64
	baseTime  time.Duration
	resumedAt time.Time

	pending []*scheduled
	timer   *time.Timer
}

// scheduled is one event parked on the queue until its timestamp is due. It
// occupies a slot in the writer's output pool until delivered or discarded.
type scheduled struct {
	ev    contracts.Event
	order uint64
	src   *client
	real  bool
}

// release frees the writer's output pool slot.
func (s *scheduled) release() {
	if s.src != nil {
		s.src.outUsed--
		s.src = nil
	}
}

func newQueue(id int, name string, owner int) *queue {
	return &queue{
		id:    id,
		name:  name,
		owner: owner,
		tempo: defaultTempo,
		ppq:   defaultPPQ,
		state: contracts.QueueStopped,
	}
}

func (q *queue) runningTime(now time.Time) time.Duration {
	if q.state == contracts.QueueRunning {
		return q.baseTime + now.Sub(q.resumedAt)
	}
	return q.baseTime
}

func (q *queue) tickAt(now time.Time) uint32 {
	tick := q.baseTick
	if q.state == contracts.QueueRunning {
		elapsed := now.Sub(q.resumedAt)
		tick += float64(elapsed.Microseconds()) * float64(q.ppq) / float64(q.tempo)
	}
	return uint32(tick)
}

// rebase folds the elapsed time into the base so tempo changes do not move
// the current position.
func (q *queue) rebase(now time.Time) {
	q.baseTick = float64(q.tickAt(now))
	q.baseTime = q.runningTime(now)
	q.resumedAt = now
}

// start resets the position to zero and runs the queue. Starting a queue
// that is already Running resets it the same way.
func (q *queue) start(now time.Time) {
	q.baseTick = 0
	q.baseTime = 0
	q.resumedAt = now
	q.state = contracts.QueueRunning
}

// pause halts the clock holding the current position for resume.
func (q *queue) pause(now time.Time) {
	if q.state != contracts.QueueRunning {
		return
	}
	q.rebase(now)
	q.state = contracts.QueuePaused
}

// resume continues from the held position.
func (q *queue) resume(now time.Time) {
	if q.state == contracts.QueueRunning {
		return
	}
	q.resumedAt = now
	q.state = contracts.QueueRunning
}

func (q *queue) setTickPosition(now time.Time, tick uint32) {
	q.baseTick = float64(tick)
	q.baseTime = time.Duration(tick) * time.Duration(q.tempo) * time.Microsecond / time.Duration(q.ppq)
	q.resumedAt = now
}

func (q *queue) setTimePosition(now time.Time, pos time.Duration) {
	q.baseTime = pos
	q.baseTick = float64(pos.Microseconds()) * float64(q.ppq) / float64(q.tempo)
	q.resumedAt = now
}

func (q *queue) schedule(s *scheduled) {
	q.pending = append(q.pending, s)
}

// dueIn computes the wall delay until the scheduled event is due; zero or
// negative means due now.
func (q *queue) dueIn(s *scheduled, now time.Time) time.Duration {
	if s.real {
		target := time.Duration(s.ev.Time.Real.Seconds)*time.Second +
			time.Duration(s.ev.Time.Real.Nanoseconds)
		return target - q.runningTime(now)
	}
	delta := float64(s.ev.Time.Tick) - q.baseTick
	if q.state == contracts.QueueRunning {
		delta -= float64(now.Sub(q.resumedAt).Microseconds()) * float64(q.ppq) / float64(q.tempo)
	}
	return time.Duration(delta * float64(q.tempo) / float64(q.ppq) * float64(time.Microsecond))
}

// takeDue removes and returns all due events ordered by (timestamp,
// submission order) so equal timestamps keep FIFO order.
func (q *queue) takeDue(now time.Time) []*scheduled {
	var due []*scheduled
	kept := q.pending[:0]
	for _, s := range q.pending {
		if q.dueIn(s, now) <= 0 {
			due = append(due, s)
		} else {
			kept = append(kept, s)
		}
	}
	q.pending = kept
	sort.Slice(due, func(i, j int) bool {
		a, b := due[i], due[j]
		if a.real != b.real {
			return !a.real
		}
		if a.real {
			at := time.Duration(a.ev.Time.Real.Seconds)*time.Second + time.Duration(a.ev.Time.Real.Nanoseconds)
			bt := time.Duration(b.ev.Time.Real.Seconds)*time.Second + time.Duration(b.ev.Time.Real.Nanoseconds)
			if at != bt {
				return at < bt
			}
		} else if a.ev.Time.Tick != b.ev.Time.Tick {
			return a.ev.Time.Tick < b.ev.Time.Tick
		}
		return a.order < b.order
	})
	return due
}

// rearm points the queue timer at the earliest pending event. Only Running
// queues fire; pause and stop leave events parked.
func (q *queue) rearm(k *Kernel) {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if q.state != contracts.QueueRunning || len(q.pending) == 0 {
		return
	}
	now := k.now()
	earliest := q.dueIn(q.pending[0], now)
	for _, s := range q.pending[1:] {
		if d := q.dueIn(s, now); d < earliest {
			earliest = d
		}
	}
	if earliest < 0 {
		earliest = 0
	}
	id := q.id
	q.timer = time.AfterFunc(earliest+time.Millisecond, func() { k.deliverDue(id) })
}

// free cancels the timer and discards pending events, returning their output
// pool slots.
func (q *queue) free() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	for _, s := range q.pending {
		s.release()
	}
	q.pending = nil
	q.state = contracts.QueueStopped
}

func (q *queue) status(now time.Time) contracts.QueueStatus {
	rt := q.runningTime(now)
	return contracts.QueueStatus{
		QueueID: q.id,
		State:   q.state,
		Tick:    q.tickAt(now),
		Time: contracts.RealTime{
			Seconds:     uint32(rt / time.Second),
			Nanoseconds: uint32(rt % time.Second),
		},
		Events: len(q.pending),
	}
}
