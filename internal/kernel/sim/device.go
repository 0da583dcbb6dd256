package sim

import (
	"fmt"
	"time"

	"github.com/leandrodaf/alsaseq/internal/codec"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// client is one open connection to the simulated kernel; it implements
// contracts.Device.
type client struct {
	k  *Kernel
	id int

	info        contracts.ClientInfo
	ports       map[int]*contracts.PortInfo
	nextPort    int
	freedQueues map[int]bool

	fifo    [][]byte
	fifoCap int

	// Output pool accounting: events parked on timing queues by this
	// client. Direct writes pass straight through and never occupy it.
	outCap  int
	outUsed int

	closed   bool
	closedCh chan struct{}
}

func (c *client) ClientID() int { return c.id }

func (c *client) checkOpenLocked() error {
	if c.closed {
		return fmt.Errorf("%w: device", contracts.ErrClosed)
	}
	return nil
}

func (c *client) ClientInfo(id int) (contracts.ClientInfo, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return contracts.ClientInfo{}, err
	}
	target := c.k.clients[id]
	if target == nil {
		return contracts.ClientInfo{}, fmt.Errorf("%w: client %d", contracts.ErrNotFound, id)
	}
	info := target.info
	info.NumPorts = len(target.ports)
	return info, nil
}

func (c *client) SetClientInfo(info contracts.ClientInfo) error {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	if info.ClientID != 0 && info.ClientID != c.id {
		return fmt.Errorf("%w: client %d", contracts.ErrNotOwned, info.ClientID)
	}
	if info.Name != "" {
		c.info.Name = info.Name
	}
	c.info.BroadcastFilter = info.BroadcastFilter
	c.info.ErrorBounce = info.ErrorBounce
	c.k.announceLocked(contracts.Event{
		Type: contracts.EventClientChange,
		Data: contracts.AddrData{Addr: contracts.Address{Client: uint8(c.id)}},
	})
	return nil
}

// SetClientPool resizes the event pools. Shrinking the input pool below its
// current fill keeps the pending events; further deliveries block until the
// reader drains under the new bound.
func (c *client) SetClientPool(inputEvents, outputEvents int) error {
	if inputEvents < 0 || outputEvents < 0 {
		return fmt.Errorf("%w: pool sizes %d/%d", contracts.ErrInvalidArgument, inputEvents, outputEvents)
	}
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	if inputEvents > 0 {
		c.fifoCap = inputEvents
	}
	if outputEvents > 0 {
		c.outCap = outputEvents
	}
	c.k.changedLocked()
	return nil
}

func (c *client) NextClient(after int) (contracts.ClientInfo, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return contracts.ClientInfo{}, err
	}
	best := -1
	for id := range c.k.clients {
		if id > after && (best < 0 || id < best) {
			best = id
		}
	}
	if best < 0 {
		return contracts.ClientInfo{}, fmt.Errorf("%w: no client after %d", contracts.ErrNotFound, after)
	}
	target := c.k.clients[best]
	info := target.info
	info.NumPorts = len(target.ports)
	return info, nil
}

func (c *client) CreatePort(info contracts.PortInfo) (int, error) {
	if err := info.Capability.Validate(); err != nil {
		return 0, err
	}
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return 0, err
	}
	if len(c.ports) >= maxPortsPerClient {
		return 0, fmt.Errorf("%w: port table of client %d full", contracts.ErrResourceExhausted, c.id)
	}
	for c.ports[c.nextPort] != nil {
		c.nextPort = (c.nextPort + 1) % maxPortsPerClient
	}
	id := c.nextPort
	c.nextPort = (c.nextPort + 1) % maxPortsPerClient

	stored := info
	stored.Addr = contracts.Address{Client: uint8(c.id), Port: uint8(id)}
	stored.ClientName = ""
	c.ports[id] = &stored

	c.k.announceLocked(contracts.Event{
		Type: contracts.EventPortStart,
		Data: contracts.AddrData{Addr: stored.Addr},
	})
	c.k.changedLocked()
	return id, nil
}

func (c *client) DeletePort(port int) error {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	info := c.ports[port]
	if info == nil {
		return fmt.Errorf("%w: port %d:%d", contracts.ErrNotFound, c.id, port)
	}
	delete(c.ports, port)
	c.k.removeSubsTouchingLocked(info.Addr)
	c.k.announceLocked(contracts.Event{
		Type: contracts.EventPortExit,
		Data: contracts.AddrData{Addr: info.Addr},
	})
	c.k.changedLocked()
	return nil
}

func (c *client) PortInfo(addr contracts.Address) (contracts.PortInfo, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return contracts.PortInfo{}, err
	}
	target := c.k.clients[int(addr.Client)]
	if target == nil {
		return contracts.PortInfo{}, fmt.Errorf("%w: client %d", contracts.ErrNotFound, addr.Client)
	}
	info := target.ports[int(addr.Port)]
	if info == nil {
		return contracts.PortInfo{}, fmt.Errorf("%w: port %s", contracts.ErrNotFound, addr)
	}
	out := *info
	out.ClientName = target.info.Name
	return out, nil
}

func (c *client) SetPortInfo(port int, info contracts.PortInfo) error {
	if err := info.Capability.Validate(); err != nil {
		return err
	}
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	current := c.ports[port]
	if current == nil {
		return fmt.Errorf("%w: port %d:%d", contracts.ErrNotFound, c.id, port)
	}
	if info.Name != "" {
		current.Name = info.Name
	}
	current.Capability = info.Capability
	if info.Type != 0 {
		current.Type = info.Type
	}
	current.TimestampEnabled = info.TimestampEnabled
	current.TimestampReal = info.TimestampReal
	current.TimestampQueue = info.TimestampQueue
	c.k.announceLocked(contracts.Event{
		Type: contracts.EventPortChange,
		Data: contracts.AddrData{Addr: current.Addr},
	})
	return nil
}

func (c *client) NextPort(clientID, after int) (contracts.PortInfo, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return contracts.PortInfo{}, err
	}
	target := c.k.clients[clientID]
	if target == nil {
		return contracts.PortInfo{}, fmt.Errorf("%w: client %d", contracts.ErrNotFound, clientID)
	}
	best := -1
	for id := range target.ports {
		if id > after && (best < 0 || id < best) {
			best = id
		}
	}
	if best < 0 {
		return contracts.PortInfo{}, fmt.Errorf("%w: no port of client %d after %d",
			contracts.ErrNotFound, clientID, after)
	}
	out := *target.ports[best]
	out.ClientName = target.info.Name
	return out, nil
}

func (c *client) Subscribe(sub contracts.Subscription) error {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	sender, err := c.portLocked(sub.Sender)
	if err != nil {
		return err
	}
	dest, err := c.portLocked(sub.Dest)
	if err != nil {
		return err
	}
	if sender.Capability&contracts.CapSubsWrite == 0 {
		return fmt.Errorf("%w: sender %s lacks subscribable-write", contracts.ErrCapabilityMismatch, sub.Sender)
	}
	if dest.Capability&contracts.CapSubsRead == 0 {
		return fmt.Errorf("%w: destination %s lacks subscribable-read", contracts.ErrCapabilityMismatch, sub.Dest)
	}
	if sub.Queue != 0 && c.k.queues[int(sub.Queue)] == nil {
		return fmt.Errorf("%w: queue %d", contracts.ErrNotFound, sub.Queue)
	}
	for _, existing := range c.k.subs {
		if existing.SameEdge(sub) {
			if existing.Exclusive {
				return fmt.Errorf("%w: %s->%s held exclusively", contracts.ErrPortBusy, sub.Sender, sub.Dest)
			}
			return fmt.Errorf("%w: %s->%s", contracts.ErrAlreadyConnected, sub.Sender, sub.Dest)
		}
		touches := existing.Touches(sub.Sender) || existing.Touches(sub.Dest)
		if touches && (existing.Exclusive || sub.Exclusive) {
			return fmt.Errorf("%w: endpoint of %s->%s", contracts.ErrPortBusy, sub.Sender, sub.Dest)
		}
	}
	c.k.subs = append(c.k.subs, sub)
	c.k.announceLocked(contracts.Event{
		Type: contracts.EventPortSubscribed,
		Data: contracts.ConnectData{Sender: sub.Sender, Dest: sub.Dest},
	})
	c.k.changedLocked()
	return nil
}

func (c *client) Unsubscribe(sub contracts.Subscription) error {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	for i, existing := range c.k.subs {
		if existing.SameEdge(sub) {
			c.k.subs = append(c.k.subs[:i], c.k.subs[i+1:]...)
			c.k.announceLocked(contracts.Event{
				Type: contracts.EventPortUnsubscribed,
				Data: contracts.ConnectData{Sender: sub.Sender, Dest: sub.Dest},
			})
			c.k.changedLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: subscription %s->%s", contracts.ErrNotFound, sub.Sender, sub.Dest)
}

func (c *client) QuerySubscription(root contracts.Address, dir contracts.SubQueryDir, index int) (contracts.Subscription, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return contracts.Subscription{}, err
	}
	n := 0
	for _, sub := range c.k.subs {
		var match bool
		if dir == contracts.QueryOutbound {
			match = sub.Sender == root
		} else {
			match = sub.Dest == root
		}
		if !match {
			continue
		}
		if n == index {
			return sub, nil
		}
		n++
	}
	return contracts.Subscription{}, fmt.Errorf("%w: subscription %d of %s", contracts.ErrNotFound, index, root)
}

func (c *client) portLocked(addr contracts.Address) (*contracts.PortInfo, error) {
	target := c.k.clients[int(addr.Client)]
	if target == nil {
		return nil, fmt.Errorf("%w: client %d", contracts.ErrNotFound, addr.Client)
	}
	info := target.ports[int(addr.Port)]
	if info == nil {
		return nil, fmt.Errorf("%w: port %s", contracts.ErrNotFound, addr)
	}
	return info, nil
}

func (c *client) CreateQueue(name string) (int, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return 0, err
	}
	if len(c.k.queues) >= maxQueues {
		return 0, fmt.Errorf("%w: queue table full", contracts.ErrResourceExhausted)
	}
	id := c.k.nextQueue
	c.k.nextQueue++
	c.k.queues[id] = newQueue(id, name, c.id)
	c.k.changedLocked()
	return id, nil
}

func (c *client) FreeQueue(id int) error {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	q := c.k.queues[id]
	if q == nil {
		if c.freedQueues[id] {
			return nil // idempotent for queues this client already freed
		}
		return fmt.Errorf("%w: queue %d", contracts.ErrNotFound, id)
	}
	if q.owner != c.id {
		return fmt.Errorf("%w: queue %d owned by client %d", contracts.ErrNotOwned, id, q.owner)
	}
	q.free()
	delete(c.k.queues, id)
	c.freedQueues[id] = true
	c.k.changedLocked()
	return nil
}

func (c *client) SetQueueTempo(id int, tempo contracts.QueueTempo) error {
	if tempo.Tempo == 0 || tempo.PPQ <= 0 {
		return fmt.Errorf("%w: tempo %d ppq %d", contracts.ErrInvalidArgument, tempo.Tempo, tempo.PPQ)
	}
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	q := c.k.queues[id]
	if q == nil {
		return fmt.Errorf("%w: queue %d", contracts.ErrNotFound, id)
	}
	q.rebase(c.k.now())
	q.tempo = tempo.Tempo
	q.ppq = tempo.PPQ
	q.rearm(c.k)
	return nil
}

func (c *client) QueueTempo(id int) (contracts.QueueTempo, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return contracts.QueueTempo{}, err
	}
	q := c.k.queues[id]
	if q == nil {
		return contracts.QueueTempo{}, fmt.Errorf("%w: queue %d", contracts.ErrNotFound, id)
	}
	return contracts.QueueTempo{Tempo: q.tempo, PPQ: q.ppq}, nil
}

func (c *client) QueueInfo(id int) (contracts.QueueInfo, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return contracts.QueueInfo{}, err
	}
	q := c.k.queues[id]
	if q == nil {
		return contracts.QueueInfo{}, fmt.Errorf("%w: queue %d", contracts.ErrNotFound, id)
	}
	return contracts.QueueInfo{QueueID: q.id, Name: q.name, Owner: q.owner}, nil
}

func (c *client) QueueStatus(id int) (contracts.QueueStatus, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return contracts.QueueStatus{}, err
	}
	q := c.k.queues[id]
	if q == nil {
		return contracts.QueueStatus{}, fmt.Errorf("%w: queue %d", contracts.ErrNotFound, id)
	}
	return q.status(c.k.now()), nil
}

func (c *client) ReadEvent() ([]byte, error) {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: device", contracts.ErrClosed)
	}
	if len(c.fifo) == 0 {
		return nil, fmt.Errorf("%w: no event pending", contracts.ErrWouldBlock)
	}
	buf := c.fifo[0]
	c.fifo = c.fifo[1:]
	c.k.changedLocked() // input space freed
	return buf, nil
}

func (c *client) WriteEvent(buf []byte, direct bool) error {
	ev, _, err := codec.Decode(buf)
	if err != nil {
		return err
	}
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}

	// The kernel stamps the source client; only the port is caller-chosen.
	ev.Source.Client = uint8(c.id)

	if ev.Dest == contracts.SystemTimer {
		switch ev.Type {
		case contracts.EventQueueStart, contracts.EventQueueStop,
			contracts.EventQueueContinue, contracts.EventQueueTempo,
			contracts.EventQueuePosTick, contracts.EventQueuePosTime:
			return c.k.controlQueueLocked(ev)
		}
	}

	if c.ports[int(ev.Source.Port)] == nil {
		return fmt.Errorf("%w: source port %d:%d", contracts.ErrNotFound, c.id, ev.Source.Port)
	}

	if !direct && ev.Queue != 0 && ev.Queue != contracts.QueueDirect {
		q := c.k.queues[int(ev.Queue)]
		if q == nil {
			return fmt.Errorf("%w: queue %d", contracts.ErrNotFound, ev.Queue)
		}
		if c.outUsed >= c.outCap {
			return fmt.Errorf("%w: output pool of client %d full", contracts.ErrWouldBlock, c.id)
		}
		c.k.seq++
		c.outUsed++
		q.schedule(&scheduled{
			ev:    ev,
			order: c.k.seq,
			src:   c,
			real:  ev.Flags&contracts.FlagTimeReal != 0,
		})
		q.rearm(c.k)
		return nil
	}

	return c.k.deliverLocked(ev, true)
}

func (c *client) DrainOutput() error {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	// Writes are accepted synchronously; nothing is ever left buffered.
	return c.checkOpenLocked()
}

func (c *client) DropInput() error {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	c.fifo = nil
	c.k.changedLocked()
	return nil
}

func (c *client) DropOutput() error {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	return c.checkOpenLocked()
}

// Wait blocks until the requested readiness, expiry or close. A negative
// timeout waits forever.
func (c *client) Wait(mode contracts.WaitMode, timeout time.Duration) error {
	var timer *time.Timer
	var expired <-chan time.Time
	if timeout >= 0 {
		timer = time.NewTimer(timeout)
		expired = timer.C
		defer timer.Stop()
	}
	for {
		c.k.mu.Lock()
		if c.closed {
			c.k.mu.Unlock()
			return fmt.Errorf("%w: device", contracts.ErrClosed)
		}
		if c.readyLocked(mode) {
			c.k.mu.Unlock()
			return nil
		}
		wait := c.k.waitCh
		c.k.mu.Unlock()

		select {
		case <-wait:
		case <-c.closedCh:
			return fmt.Errorf("%w: device", contracts.ErrClosed)
		case <-expired:
			return fmt.Errorf("%w: after %v", contracts.ErrTimedOut, timeout)
		}
	}
}

// readyLocked evaluates readiness under the kernel lock. Write readiness is
// conservative: every destination FIFO must have room, so a retried write
// cannot immediately block again.
func (c *client) readyLocked(mode contracts.WaitMode) bool {
	if mode&contracts.WaitRead != 0 && len(c.fifo) > 0 {
		return true
	}
	if mode&contracts.WaitWrite != 0 {
		if c.outUsed >= c.outCap {
			return false
		}
		for _, other := range c.k.clients {
			if len(other.fifo) >= other.fifoCap {
				return false
			}
		}
		return true
	}
	return false
}

// Close removes the client and everything it owns from the kernel: ports
// (cascading their subscriptions), owned queues, pending FIFO contents.
// Pending Wait calls return ErrClosed.
func (c *client) Close() error {
	c.k.mu.Lock()
	defer c.k.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closedCh)

	for id, info := range c.ports {
		c.k.removeSubsTouchingLocked(info.Addr)
		delete(c.ports, id)
	}
	for id, q := range c.k.queues {
		if q.owner == c.id {
			q.free()
			delete(c.k.queues, id)
		}
	}
	delete(c.k.clients, c.id)
	c.fifo = nil
	c.k.announceLocked(contracts.Event{
		Type: contracts.EventClientExit,
		Data: contracts.AddrData{Addr: contracts.Address{Client: uint8(c.id)}},
	})
	c.k.changedLocked()
	return nil
}
