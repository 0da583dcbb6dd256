package sequencer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// ParseAddress parses "client:port" text into an address. Both components
// accept numeric ids; non-numeric components are resolved against the live
// client/port directory by name. A bare client name (or id) addresses its
// port 0. The wildcard literals "any", "subscribers" and "broadcast" are
// recognized without touching the directory.
//
// Malformed text fails with ErrAddressSyntax; a name that matches no live
// client or port fails with ErrNotFound.
func (c *Client) ParseAddress(text string) (contracts.Address, error) {
	text = strings.TrimSpace(text)
	switch strings.ToLower(text) {
	case "":
		return contracts.Address{}, fmt.Errorf("%w: empty address", contracts.ErrAddressSyntax)
	case "any", "unknown":
		return contracts.Unknown, nil
	case "subscribers":
		return contracts.AllSubscribers, nil
	case "broadcast":
		return contracts.Broadcast, nil
	}

	clientPart, portPart, hasPort := strings.Cut(text, ":")
	if clientPart == "" || (hasPort && portPart == "") {
		return contracts.Address{}, fmt.Errorf("%w: %q", contracts.ErrAddressSyntax, text)
	}

	clientID, err := c.resolveClient(clientPart)
	if err != nil {
		return contracts.Address{}, err
	}
	if !hasPort {
		return contracts.Address{Client: clientID, Port: 0}, nil
	}
	portID, err := c.resolvePort(clientID, portPart)
	if err != nil {
		return contracts.Address{}, err
	}
	return contracts.Address{Client: clientID, Port: portID}, nil
}

func (c *Client) resolveClient(part string) (uint8, error) {
	if n, err := strconv.ParseUint(part, 10, 16); err == nil {
		if n > 255 {
			return 0, fmt.Errorf("%w: client id %d out of range", contracts.ErrAddressSyntax, n)
		}
		return uint8(n), nil
	}
	clients, err := c.Clients()
	if err != nil {
		return 0, err
	}
	for _, info := range clients {
		if info.Name == part {
			return uint8(info.ClientID), nil
		}
	}
	return 0, fmt.Errorf("%w: client %q", contracts.ErrNotFound, part)
}

func (c *Client) resolvePort(clientID uint8, part string) (uint8, error) {
	if n, err := strconv.ParseUint(part, 10, 16); err == nil {
		if n > 255 {
			return 0, fmt.Errorf("%w: port id %d out of range", contracts.ErrAddressSyntax, n)
		}
		return uint8(n), nil
	}
	ports, err := c.Ports(int(clientID))
	if err != nil {
		return 0, err
	}
	for _, info := range ports {
		if info.Name == part {
			return info.Addr.Port, nil
		}
	}
	return 0, fmt.Errorf("%w: port %q of client %d", contracts.ErrNotFound, part, clientID)
}

// Clients snapshots the live client directory at call time. Order follows
// kernel enumeration order; the snapshot does not track later changes.
func (c *Client) Clients() ([]contracts.ClientInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	var out []contracts.ClientInfo
	after := -1
	for {
		info, err := c.dev.NextClient(after)
		if err != nil {
			if errors.Is(err, contracts.ErrNotFound) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, info)
		after = info.ClientID
	}
}

// Ports snapshots the port directory of one client.
func (c *Client) Ports(client int) ([]contracts.PortInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return c.portsLocked(client)
}

func (c *Client) portsLocked(client int) ([]contracts.PortInfo, error) {
	var out []contracts.PortInfo
	after := -1
	for {
		info, err := c.dev.NextPort(client, after)
		if err != nil {
			if errors.Is(err, contracts.ErrNotFound) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, info)
		after = int(info.Addr.Port)
	}
}

// ListPorts snapshots every port of every live client, with client names
// filled in, in kernel enumeration order.
func (c *Client) ListPorts() ([]contracts.PortInfo, error) {
	clients, err := c.Clients()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	var out []contracts.PortInfo
	for _, info := range clients {
		ports, err := c.portsLocked(info.ClientID)
		if err != nil {
			if errors.Is(err, contracts.ErrNotFound) {
				continue // client vanished between snapshots
			}
			return nil, err
		}
		out = append(out, ports...)
	}
	return out, nil
}
