package sequencer

import (
	"errors"
	"fmt"
	"time"

	"github.com/leandrodaf/alsaseq/internal/codec"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// noDeadline makes waits unbounded.
const noDeadline time.Duration = -1

// Read returns the next pending event. In blocking mode it suspends until an
// event arrives or the handle is closed (ErrClosed); in non-blocking mode an
// idle client fails with ErrWouldBlock.
func (c *Client) Read() (contracts.Event, error) {
	if !c.blocking {
		return c.readOnce()
	}
	return c.readWait(noDeadline)
}

// ReadTimeout is Read with a bounded wait; expiry fails with ErrTimedOut and
// leaves the handle usable.
func (c *Client) ReadTimeout(timeout time.Duration) (contracts.Event, error) {
	if timeout < 0 {
		return contracts.Event{}, fmt.Errorf("%w: negative timeout", contracts.ErrInvalidArgument)
	}
	return c.readWait(timeout)
}

func (c *Client) readOnce() (contracts.Event, error) {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return contracts.Event{}, err
	}
	buf, err := c.dev.ReadEvent()
	c.mu.Unlock()
	if err != nil {
		return contracts.Event{}, err
	}
	ev, _, err := codec.Decode(buf)
	return ev, err
}

// readWait retries the non-blocking read, parking on the device's readiness
// primitive between attempts. The handle lock is never held while parked, so
// Close and administrative calls stay possible and Close interrupts the wait
// with ErrClosed.
func (c *Client) readWait(timeout time.Duration) (contracts.Event, error) {
	deadline := newDeadline(timeout)
	for {
		ev, err := c.readOnce()
		if !errors.Is(err, contracts.ErrWouldBlock) {
			return ev, err
		}
		if err := c.dev.Wait(contracts.WaitRead, deadline.remaining()); err != nil {
			return contracts.Event{}, err
		}
	}
}

// Write submits one event. Events with a zero queue id are delivered
// directly; events carrying a timing-queue id are scheduled by the kernel
// against that queue's clock. In blocking mode a full kernel buffer suspends
// the call (backpressure) until space frees or the handle closes; in
// non-blocking mode it fails with ErrWouldBlock.
func (c *Client) Write(ev contracts.Event) error {
	return c.write(ev, false)
}

// WriteDirect submits one event bypassing queue scheduling entirely.
func (c *Client) WriteDirect(ev contracts.Event) error {
	return c.write(ev, true)
}

func (c *Client) write(ev contracts.Event, direct bool) error {
	if ev.Queue == 0 {
		ev.Queue = contracts.QueueDirect
	}
	buf, err := codec.Encode(ev)
	if err != nil {
		return err
	}

	deadline := newDeadline(noDeadline)
	for {
		c.mu.Lock()
		if err := c.checkOpen(); err != nil {
			c.mu.Unlock()
			return err
		}
		err = c.dev.WriteEvent(buf, direct)
		c.mu.Unlock()
		if !errors.Is(err, contracts.ErrWouldBlock) {
			return err
		}
		if !c.blocking {
			return err
		}
		if err := c.dev.Wait(contracts.WaitWrite, deadline.remaining()); err != nil {
			return err
		}
	}
}

// Drain blocks until every previously submitted write has been accepted by
// the kernel.
func (c *Client) Drain() error {
	for {
		c.mu.Lock()
		if err := c.checkOpen(); err != nil {
			c.mu.Unlock()
			return err
		}
		err := c.dev.DrainOutput()
		c.mu.Unlock()
		if !errors.Is(err, contracts.ErrWouldBlock) {
			return err
		}
		if err := c.dev.Wait(contracts.WaitWrite, noDeadline); err != nil {
			return err
		}
	}
}

// DropInput discards every event pending on the kernel input buffer.
func (c *Client) DropInput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.dev.DropInput()
}

// DropOutput discards buffered output that the kernel has not delivered.
func (c *Client) DropOutput() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.dev.DropOutput()
}

// Wait is the multiplexed readiness primitive: it blocks until the client is
// ready in any requested direction, the timeout expires (ErrTimedOut), or
// the handle closes (ErrClosed). A negative timeout waits forever.
func (c *Client) Wait(mode contracts.WaitMode, timeout time.Duration) error {
	if mode == 0 {
		return fmt.Errorf("%w: empty wait mode", contracts.ErrInvalidArgument)
	}
	return c.dev.Wait(mode, timeout)
}

// deadline tracks the remaining budget of a bounded wait across retries.
type deadline struct {
	at      time.Time
	bounded bool
}

func newDeadline(timeout time.Duration) deadline {
	if timeout < 0 {
		return deadline{}
	}
	return deadline{at: time.Now().Add(timeout), bounded: true}
}

func (d deadline) remaining() time.Duration {
	if !d.bounded {
		return noDeadline
	}
	left := time.Until(d.at)
	if left < 0 {
		return 0
	}
	return left
}
