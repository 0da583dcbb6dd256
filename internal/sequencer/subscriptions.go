package sequencer

import (
	"errors"
	"fmt"

	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// Subscribe creates a directed subscription edge. Wildcard endpoints are
// rejected: edges connect concrete ports. The endpoints must advertise the
// subscribable capabilities for their role, duplicate edges fail with
// ErrAlreadyConnected, and an exclusive edge on either endpoint fails the
// call with ErrPortBusy.
func (c *Client) Subscribe(sub contracts.Subscription) error {
	if sub.Sender.IsWildcard() || sub.Dest.IsWildcard() {
		return fmt.Errorf("%w: subscription endpoints must be concrete ports", contracts.ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.dev.Subscribe(sub); err != nil {
		return err
	}
	c.log.Debug("ports connected",
		c.log.Field().String("sender", sub.Sender.String()),
		c.log.Field().String("dest", sub.Dest.String()),
		c.log.Field().Uint8("queue", sub.Queue),
		c.log.Field().Bool("exclusive", sub.Exclusive),
	)
	return nil
}

// Unsubscribe removes the edge keyed by (sender, dest, queue); a miss fails
// with ErrNotFound.
func (c *Client) Unsubscribe(sender, dest contracts.Address, queue uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := c.dev.Unsubscribe(contracts.Subscription{Sender: sender, Dest: dest, Queue: queue}); err != nil {
		return err
	}
	c.log.Debug("ports disconnected",
		c.log.Field().String("sender", sender.String()),
		c.log.Field().String("dest", dest.String()),
	)
	return nil
}

// Subscriptions snapshots both the inbound and outbound edges of a port at
// call time. Edge order follows kernel enumeration order.
func (c *Client) Subscriptions(addr contracts.Address) ([]contracts.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	var out []contracts.Subscription
	for _, dir := range []contracts.SubQueryDir{contracts.QueryOutbound, contracts.QueryInbound} {
		for index := 0; ; index++ {
			sub, err := c.dev.QuerySubscription(addr, dir, index)
			if err != nil {
				if errors.Is(err, contracts.ErrNotFound) {
					break
				}
				return nil, err
			}
			out = append(out, sub)
		}
	}
	return out, nil
}
