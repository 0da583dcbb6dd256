// Package sequencer implements the sequencer client: one open connection to
// the kernel subsystem composing port registration, the subscription graph,
// timing queues and event I/O.
package sequencer

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// Client is one logical connection to the kernel sequencer. All mutating
// operations are serialized behind a single lock to preserve per-writer
// event ordering; blocking reads and writes release the lock while waiting
// so Close can interrupt them.
type Client struct {
	dev      contracts.Device
	log      contracts.Logger
	blocking bool

	mu     sync.Mutex
	closed bool

	// Resources registered under this handle, released on Close.
	ports       map[int]bool // live ports
	freedPorts  map[int]bool // deleted ports, for idempotent DeletePort
	queues      map[int]bool
	freedQueues map[int]bool
}

// New wraps an open device in a sequencer client and registers the client
// name with the kernel directory.
func New(dev contracts.Device, opts *contracts.ClientOptions) (*Client, error) {
	c := &Client{
		dev:         dev,
		log:         opts.Logger,
		blocking:    !opts.Nonblocking,
		ports:       make(map[int]bool),
		freedPorts:  make(map[int]bool),
		queues:      make(map[int]bool),
		freedQueues: make(map[int]bool),
	}
	if opts.ClientName != "" {
		if err := dev.SetClientInfo(contracts.ClientInfo{Name: opts.ClientName}); err != nil {
			_ = dev.Close()
			return nil, fmt.Errorf("%w: set client name: %v", contracts.ErrOpen, err)
		}
	}
	if opts.InputBufferEvents > 0 || opts.OutputBufferEvents > 0 {
		if err := dev.SetClientPool(opts.InputBufferEvents, opts.OutputBufferEvents); err != nil {
			_ = dev.Close()
			return nil, fmt.Errorf("%w: size event pools: %v", contracts.ErrOpen, err)
		}
	}
	c.log.Info("sequencer client opened",
		c.log.Field().Int("client_id", dev.ClientID()),
		c.log.Field().String("name", opts.ClientName),
		c.log.Field().Bool("blocking", c.blocking),
	)
	return c, nil
}

// ClientID returns the kernel-assigned client id.
func (c *Client) ClientID() int { return c.dev.ClientID() }

// Close releases every port, subscription and queue created through this
// handle and invalidates it. Blocked reads and writes return ErrClosed.
// Close is idempotent; release failures are aggregated, and the device is
// closed regardless.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	var err error
	for id := range c.queues {
		if e := c.dev.FreeQueue(id); e != nil {
			err = multierr.Append(err, fmt.Errorf("free queue %d: %w", id, e))
		}
	}
	for id := range c.ports {
		if e := c.dev.DeletePort(id); e != nil {
			err = multierr.Append(err, fmt.Errorf("delete port %d: %w", id, e))
		}
	}
	c.mu.Unlock()

	// Closing the device also unblocks any reader waiting in dev.Wait.
	err = multierr.Append(err, c.dev.Close())
	if err != nil {
		c.log.Error("sequencer client closed with errors", c.log.Field().Error("error", err))
		return err
	}
	c.log.Info("sequencer client closed", c.log.Field().Int("client_id", c.dev.ClientID()))
	return nil
}

func (c *Client) checkOpen() error {
	if c.closed {
		return fmt.Errorf("%w: client handle", contracts.ErrClosed)
	}
	return nil
}

// Info returns this client's directory entry.
func (c *Client) Info() (contracts.ClientInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return contracts.ClientInfo{}, err
	}
	return c.dev.ClientInfo(c.dev.ClientID())
}

// SetInfo updates this client's name and filter advertisement.
func (c *Client) SetInfo(info contracts.ClientInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.dev.SetClientInfo(info)
}
