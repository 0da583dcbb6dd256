// Package sim is an in-memory stand-in for the kernel sequencer. It backs
// the client library on platforms without /dev/snd/seq and gives tests a
// deterministic kernel: client/port directory, subscription graph with
// exclusivity rules, timing queues with tempo-driven scheduling, and bounded
// per-client event FIFOs with write backpressure.
package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/alsaseq/internal/codec"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

const (
	// firstUserClient matches the kernel's user-client id range.
	firstUserClient   = 128
	maxClients        = 192
	maxPortsPerClient = 253
	maxQueues         = 32

	defaultFifoEvents = 256

	// Default queue timing: 120 bpm at 96 ppq.
	defaultTempo uint32 = 500000
	defaultPPQ          = 96
)

// Kernel is one simulated sequencer node shared by any number of clients.
type Kernel struct {
	mu     sync.Mutex
	waitCh chan struct{} // closed and replaced on every state change

	clients    map[int]*client
	nextClient int

	queues    map[int]*queue
	nextQueue int

	subs []contracts.Subscription
	seq  uint64 // submission order counter, FIFO tie-break for equal timestamps

	now func() time.Time
}

// NewKernel creates a sequencer node with the system client (timer and
// announce ports) already registered.
func NewKernel() *Kernel {
	k := &Kernel{
		waitCh:     make(chan struct{}),
		clients:    make(map[int]*client),
		nextClient: firstUserClient,
		queues:     make(map[int]*queue),
		nextQueue:  1,
		now:        time.Now,
	}

	system := &client{
		k:  k,
		id: int(contracts.SystemClient),
		info: contracts.ClientInfo{
			ClientID: int(contracts.SystemClient),
			Name:     "System",
			Type:     contracts.KernelClient,
			CardID:   -1,
			PID:      -1,
		},
		ports:    make(map[int]*contracts.PortInfo),
		closedCh: make(chan struct{}),
	}
	system.ports[int(contracts.SystemTimerPort)] = &contracts.PortInfo{
		Addr:       contracts.SystemTimer,
		Name:       "Timer",
		Capability: contracts.CapWrite | contracts.CapSubsWrite | contracts.CapNoExport,
		Type:       contracts.TypeSpecific,
	}
	system.ports[int(contracts.SystemAnnouncePort)] = &contracts.PortInfo{
		Addr:       contracts.SystemAnnounce,
		Name:       "Announce",
		Capability: contracts.CapWrite | contracts.CapSubsWrite | contracts.CapNoExport,
		Type:       contracts.TypeSpecific,
	}
	k.clients[system.id] = system
	return k
}

// OpenClient registers a new user client and returns its device handle.
// fifoEvents bounds the client's input FIFO; 0 applies the default.
func (k *Kernel) OpenClient(name string, fifoEvents int) (contracts.Device, error) {
	if fifoEvents <= 0 {
		fifoEvents = defaultFifoEvents
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	// Scan the whole user-client range once, continuing from the last
	// allocation, so freed ids behind the cursor are reused before the
	// table counts as full.
	id := -1
	for i := 0; i < maxClients-firstUserClient; i++ {
		cand := k.nextClient
		k.nextClient++
		if k.nextClient >= maxClients {
			k.nextClient = firstUserClient
		}
		if k.clients[cand] == nil {
			id = cand
			break
		}
	}
	if id < 0 {
		return nil, fmt.Errorf("%w: client table full", contracts.ErrResourceExhausted)
	}

	c := &client{
		k:  k,
		id: id,
		info: contracts.ClientInfo{
			ClientID: id,
			Name:     name,
			Type:     contracts.UserClient,
			CardID:   -1,
			PID:      -1,
		},
		ports:       make(map[int]*contracts.PortInfo),
		freedQueues: make(map[int]bool),
		fifoCap:     fifoEvents,
		outCap:      defaultFifoEvents,
		closedCh:    make(chan struct{}),
	}
	k.clients[id] = c
	k.announceLocked(contracts.Event{
		Type: contracts.EventClientStart,
		Data: contracts.AddrData{Addr: contracts.Address{Client: uint8(id)}},
	})
	k.changedLocked()
	return c, nil
}

// changedLocked wakes every waiter; callers hold k.mu.
func (k *Kernel) changedLocked() {
	close(k.waitCh)
	k.waitCh = make(chan struct{})
}

// announceLocked delivers a directory-change event through the announce
// port's subscriptions. Announcements are best effort: full FIFOs drop and
// count the loss.
func (k *Kernel) announceLocked(ev contracts.Event) {
	ev.Source = contracts.SystemAnnounce
	ev.Dest = contracts.AllSubscribers
	ev.Queue = contracts.QueueDirect
	k.deliverLocked(ev, false)
}

// targetsLocked expands an event's destination to concrete client FIFOs.
func (k *Kernel) targetsLocked(ev contracts.Event) ([]delivery, error) {
	var out []delivery
	switch {
	case ev.Dest.Client == contracts.AddressSubscribers:
		for _, sub := range k.subs {
			if sub.Sender != ev.Source {
				continue
			}
			stamped := ev
			stamped.Dest = sub.Dest
			if sub.TimeUpdate {
				k.stampLocked(&stamped, sub)
			}
			if dst := k.clients[int(sub.Dest.Client)]; dst != nil {
				out = append(out, delivery{dst: dst, ev: stamped})
			}
		}
	case ev.Dest.Client == contracts.AddressBroadcast:
		for _, dst := range k.clients {
			if dst.id == int(ev.Source.Client) || dst.id == int(contracts.SystemClient) {
				continue
			}
			stamped := ev
			out = append(out, delivery{dst: dst, ev: stamped})
		}
	default:
		dst := k.clients[int(ev.Dest.Client)]
		if dst == nil {
			return nil, fmt.Errorf("%w: client %d", contracts.ErrNotFound, ev.Dest.Client)
		}
		if dst.ports[int(ev.Dest.Port)] == nil {
			return nil, fmt.Errorf("%w: port %s", contracts.ErrNotFound, ev.Dest)
		}
		out = append(out, delivery{dst: dst, ev: ev})
	}
	return out, nil
}

type delivery struct {
	dst *client
	ev  contracts.Event
}

// deliverLocked routes one event. With backpressure, a full destination FIFO
// fails the whole delivery with ErrWouldBlock and nothing is enqueued;
// without it (scheduled and announce traffic), full destinations drop the
// event and record the loss.
func (k *Kernel) deliverLocked(ev contracts.Event, backpressure bool) error {
	targets, err := k.targetsLocked(ev)
	if err != nil {
		return err
	}
	if backpressure {
		for _, t := range targets {
			if len(t.dst.fifo) >= t.dst.fifoCap {
				return fmt.Errorf("%w: input pool of client %d full", contracts.ErrWouldBlock, t.dst.id)
			}
		}
	}
	for _, t := range targets {
		if t.dst.closed {
			continue
		}
		if len(t.dst.fifo) >= t.dst.fifoCap {
			t.dst.info.EventLost++
			continue
		}
		buf, err := codec.Encode(t.ev)
		if err != nil {
			continue
		}
		t.dst.fifo = append(t.dst.fifo, buf)
	}
	if len(targets) > 0 {
		k.changedLocked()
	}
	return nil
}

// stampLocked rewrites the event timestamp from the subscription's queue
// clock, honoring the edge's tick/real conversion flag.
func (k *Kernel) stampLocked(ev *contracts.Event, sub contracts.Subscription) {
	q := k.queues[int(sub.Queue)]
	if q == nil {
		return
	}
	now := k.now()
	if sub.TimeReal {
		rt := q.runningTime(now)
		ev.Time = contracts.WallTime(uint32(rt/time.Second), uint32(rt%time.Second))
		ev.Flags |= contracts.FlagTimeReal
	} else {
		ev.Time = contracts.TickTime(q.tickAt(now))
		ev.Flags &^= contracts.FlagTimeReal
	}
}

// removeSubsTouchingLocked drops every edge with addr as an endpoint,
// announcing each removal.
func (k *Kernel) removeSubsTouchingLocked(addr contracts.Address) {
	kept := k.subs[:0]
	for _, sub := range k.subs {
		if sub.Touches(addr) {
			k.announceLocked(contracts.Event{
				Type: contracts.EventPortUnsubscribed,
				Data: contracts.ConnectData{Sender: sub.Sender, Dest: sub.Dest},
			})
			continue
		}
		kept = append(kept, sub)
	}
	k.subs = kept
}

// controlQueueLocked applies a queue-control event addressed to the system
// timer port.
func (k *Kernel) controlQueueLocked(ev contracts.Event) error {
	data, ok := ev.Data.(contracts.QueueControlData)
	if !ok {
		return fmt.Errorf("%w: queue control without queue payload", contracts.ErrInvalidArgument)
	}
	q := k.queues[int(data.Queue)]
	if q == nil {
		return fmt.Errorf("%w: queue %d", contracts.ErrNotFound, data.Queue)
	}
	now := k.now()
	switch ev.Type {
	case contracts.EventQueueStart:
		q.start(now)
	case contracts.EventQueueStop:
		q.pause(now)
	case contracts.EventQueueContinue:
		q.resume(now)
	case contracts.EventQueueTempo:
		if data.Value <= 0 {
			return fmt.Errorf("%w: tempo %d", contracts.ErrInvalidArgument, data.Value)
		}
		q.rebase(now)
		q.tempo = uint32(data.Value)
	case contracts.EventQueuePosTick:
		q.setTickPosition(now, data.Time.Tick)
	case contracts.EventQueuePosTime:
		q.setTimePosition(now, time.Duration(data.Time.Real.Seconds)*time.Second+
			time.Duration(data.Time.Real.Nanoseconds))
	default:
		return fmt.Errorf("%w: event %d is not a queue control", contracts.ErrInvalidArgument, ev.Type)
	}
	q.rearm(k)
	k.changedLocked()
	return nil
}

// deliverDue moves every due pending event of queue id into destination
// FIFOs, in (timestamp, submission order) order. Runs from queue timers.
func (k *Kernel) deliverDue(id int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	q := k.queues[id]
	if q == nil || q.state != contracts.QueueRunning {
		return
	}
	due := q.takeDue(k.now())
	for _, s := range due {
		s.release()
		// Scheduled traffic cannot block: the writer has long returned.
		_ = k.deliverLocked(s.ev, false)
	}
	q.rearm(k)
	if len(due) > 0 {
		k.changedLocked()
	}
}
