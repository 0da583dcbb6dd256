package sequencer

import (
	"fmt"
	"math"

	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// CreateQueue allocates a timing queue owned by this client, named when name
// is non-empty. A full kernel queue table fails with ErrResourceExhausted.
func (c *Client) CreateQueue(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return 0, err
	}
	id, err := c.dev.CreateQueue(name)
	if err != nil {
		return 0, err
	}
	c.queues[id] = true
	delete(c.freedQueues, id)
	c.log.Debug("queue allocated",
		c.log.Field().Int("queue", id),
		c.log.Field().String("name", name),
	)
	return id, nil
}

// FreeQueue releases a queue owned by this client, force-stopping it first
// if it is still running. Freeing an already-freed own queue is a no-op.
func (c *Client) FreeQueue(queue int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !c.queues[queue] {
		if c.freedQueues[queue] {
			return nil
		}
		return fmt.Errorf("%w: queue %d", contracts.ErrNotOwned, queue)
	}
	if err := c.dev.FreeQueue(queue); err != nil {
		return err
	}
	delete(c.queues, queue)
	c.freedQueues[queue] = true
	c.log.Debug("queue freed", c.log.Field().Int("queue", queue))
	return nil
}

// SetQueueTempo sets the queue clock to bpm beats per minute at ppq pulses
// per quarter note. Non-positive values fail with ErrInvalidArgument.
func (c *Client) SetQueueTempo(queue int, bpm float64, ppq int) error {
	if bpm <= 0 || ppq <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return fmt.Errorf("%w: bpm %v ppq %d", contracts.ErrInvalidArgument, bpm, ppq)
	}
	tempo := uint32(math.Round(60e6 / bpm)) // microseconds per quarter note
	if tempo == 0 {
		return fmt.Errorf("%w: bpm %v too fast", contracts.ErrInvalidArgument, bpm)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.dev.SetQueueTempo(queue, contracts.QueueTempo{Tempo: tempo, PPQ: ppq})
}

// QueueTempo returns the queue's current tempo parameterization.
func (c *Client) QueueTempo(queue int) (contracts.QueueTempo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return contracts.QueueTempo{}, err
	}
	return c.dev.QueueTempo(queue)
}

// QueueStatus snapshots the queue clock. Tick is monotonically
// non-decreasing between snapshots while the queue is Running.
func (c *Client) QueueStatus(queue int) (contracts.QueueStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return contracts.QueueStatus{}, err
	}
	return c.dev.QueueStatus(queue)
}

// StartQueue resets the queue position to zero and starts it running.
// Starting an already-Running queue resets it to zero the same way; resuming
// a paused queue without a reset is ContinueQueue.
func (c *Client) StartQueue(queue int) error {
	return c.controlQueue(queue, contracts.EventQueueStart)
}

// StopQueue pauses the queue, holding the position for ContinueQueue.
func (c *Client) StopQueue(queue int) error {
	return c.controlQueue(queue, contracts.EventQueueStop)
}

// ContinueQueue resumes a paused queue from its held position.
func (c *Client) ContinueQueue(queue int) error {
	return c.controlQueue(queue, contracts.EventQueueContinue)
}

// controlQueue drives the queue state machine the way the kernel expects:
// a queue-control event delivered directly to the system timer port.
func (c *Client) controlQueue(queue int, typ contracts.EventType) error {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	ev := contracts.Event{
		Type:   typ,
		Queue:  contracts.QueueDirect,
		Source: contracts.Address{Client: uint8(c.dev.ClientID()), Port: c.anyOwnPortLocked()},
		Dest:   contracts.SystemTimer,
		Data:   contracts.QueueControlData{Queue: uint8(queue)},
	}
	c.mu.Unlock()

	if err := c.WriteDirect(ev); err != nil {
		return err
	}
	c.log.Debug("queue control sent",
		c.log.Field().Int("queue", queue),
		c.log.Field().Uint8("type", uint8(typ)),
	)
	return nil
}

// anyOwnPortLocked picks a source port for control traffic; clients without
// ports fall back to port 0, which the kernel accepts for control events.
func (c *Client) anyOwnPortLocked() uint8 {
	for id := range c.ports {
		return uint8(id)
	}
	return 0
}
