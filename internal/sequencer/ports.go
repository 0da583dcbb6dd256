package sequencer

import (
	"fmt"

	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// CreatePort registers a named port under this client and returns its
// address. Contradictory capability combinations fail with
// ErrInvalidCapability before the kernel is involved.
func (c *Client) CreatePort(name string, caps contracts.PortCaps, ptype contracts.PortType) (contracts.Address, error) {
	if name == "" {
		return contracts.Address{}, fmt.Errorf("%w: empty port name", contracts.ErrInvalidArgument)
	}
	if err := caps.Validate(); err != nil {
		return contracts.Address{}, fmt.Errorf("%w: port %q", err, name)
	}
	if ptype == 0 {
		ptype = contracts.DefaultPortType
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return contracts.Address{}, err
	}
	id, err := c.dev.CreatePort(contracts.PortInfo{
		Name:       name,
		Capability: caps,
		Type:       ptype,
	})
	if err != nil {
		return contracts.Address{}, err
	}
	c.ports[id] = true
	delete(c.freedPorts, id)

	addr := contracts.Address{Client: uint8(c.dev.ClientID()), Port: uint8(id)}
	c.log.Debug("port created",
		c.log.Field().String("addr", addr.String()),
		c.log.Field().String("name", name),
	)
	return addr, nil
}

// DeletePort destroys a port owned by this client, cascading removal of
// every subscription touching it. Deleting an already-deleted own port is a
// no-op; a port this client never owned fails with ErrNotOwned.
func (c *Client) DeletePort(port int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !c.ports[port] {
		if c.freedPorts[port] {
			return nil
		}
		return fmt.Errorf("%w: port %d", contracts.ErrNotOwned, port)
	}
	if err := c.dev.DeletePort(port); err != nil {
		return err
	}
	delete(c.ports, port)
	c.freedPorts[port] = true
	c.log.Debug("port deleted", c.log.Field().Int("port", port))
	return nil
}

// UpdatePort applies a partial update of a port's name, capabilities and
// type flags, validated on the same grounds as creation.
func (c *Client) UpdatePort(port int, info contracts.PortInfo) error {
	if err := info.Capability.Validate(); err != nil {
		return fmt.Errorf("%w: port %d", err, port)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !c.ports[port] {
		return fmt.Errorf("%w: port %d", contracts.ErrNotOwned, port)
	}
	return c.dev.SetPortInfo(port, info)
}

// PortInfo returns the directory entry of any port, own or foreign.
func (c *Client) PortInfo(addr contracts.Address) (contracts.PortInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return contracts.PortInfo{}, err
	}
	return c.dev.PortInfo(addr)
}
