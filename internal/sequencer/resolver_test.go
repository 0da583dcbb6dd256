package sequencer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leandrodaf/alsaseq/internal/kernel/sim"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

func TestParseAddressLiterals(t *testing.T) {
	k := sim.NewKernel()
	c := open(t, k, "resolver", false)

	cases := map[string]contracts.Address{
		"any":          contracts.Unknown,
		"unknown":      contracts.Unknown,
		"SUBSCRIBERS":  contracts.AllSubscribers,
		"broadcast":    contracts.Broadcast,
		"0:0":          contracts.SystemTimer,
		"0:1":          contracts.SystemAnnounce,
		"14:36":        {Client: 14, Port: 36},
		" 14:36 ":      {Client: 14, Port: 36},
		"\tbroadcast ": contracts.Broadcast,
	}
	for text, want := range cases {
		got, err := c.ParseAddress(text)
		if err != nil {
			t.Errorf("ParseAddress(%q): %v", text, err)
			continue
		}
		if got != want {
			t.Errorf("ParseAddress(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestParseAddressByName(t *testing.T) {
	k := sim.NewKernel()
	c := open(t, k, "resolver", false)
	target := open(t, k, "My Synth", false)
	in := mustCreatePort(t, target, "input", contracts.ReadPort)

	got, err := c.ParseAddress("My Synth:input")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if got != in {
		t.Errorf("resolved %s, want %s", got, in)
	}

	// A numeric client with a named port, and the other way round.
	mixed := fmt.Sprintf("%d:input", target.ClientID())
	if got, err := c.ParseAddress(mixed); err != nil || got != in {
		t.Errorf("ParseAddress(%q) = %s, %v; want %s", mixed, got, err, in)
	}
	byPortID := fmt.Sprintf("My Synth:%d", in.Port)
	if got, err := c.ParseAddress(byPortID); err != nil || got != in {
		t.Errorf("ParseAddress(%q) = %s, %v; want %s", byPortID, got, err, in)
	}

	// A bare client resolves to its port 0.
	got, err = c.ParseAddress("My Synth")
	if err != nil {
		t.Fatalf("ParseAddress bare client: %v", err)
	}
	if got != (contracts.Address{Client: uint8(target.ClientID()), Port: 0}) {
		t.Errorf("bare client = %s", got)
	}
}

func TestParseAddressErrors(t *testing.T) {
	k := sim.NewKernel()
	c := open(t, k, "resolver", false)

	for _, text := range []string{"", "  ", ":", "128:", ":0", "300:0", "0:300"} {
		if _, err := c.ParseAddress(text); !errors.Is(err, contracts.ErrAddressSyntax) {
			t.Errorf("ParseAddress(%q) err = %v, want ErrAddressSyntax", text, err)
		}
	}
	for _, text := range []string{"No Such Client", "No Such Client:0", "resolver:no-such-port"} {
		if _, err := c.ParseAddress(text); !errors.Is(err, contracts.ErrNotFound) {
			t.Errorf("ParseAddress(%q) err = %v, want ErrNotFound", text, err)
		}
	}
}

func TestClientsSnapshot(t *testing.T) {
	k := sim.NewKernel()
	a := open(t, k, "alpha", false)
	open(t, k, "beta", false)

	clients, err := a.Clients()
	if err != nil {
		t.Fatalf("Clients: %v", err)
	}
	var names []string
	for _, info := range clients {
		names = append(names, info.Name)
	}
	if len(names) != 3 || names[0] != "System" || names[1] != "alpha" || names[2] != "beta" {
		t.Fatalf("clients = %v", names)
	}
	if clients[0].Type != contracts.KernelClient {
		t.Errorf("system client type = %v", clients[0].Type)
	}
}

func TestListPorts(t *testing.T) {
	k := sim.NewKernel()
	a := open(t, k, "alpha", false)
	b := open(t, k, "beta", false)
	mustCreatePort(t, a, "a-out", contracts.WritePort)
	mustCreatePort(t, b, "b-in", contracts.ReadPort)

	ports, err := a.ListPorts()
	if err != nil {
		t.Fatalf("ListPorts: %v", err)
	}
	byName := map[string]contracts.PortInfo{}
	for _, p := range ports {
		byName[p.Name] = p
	}
	// System timer and announce come first in enumeration order.
	for _, want := range []string{"Timer", "Announce", "a-out", "b-in"} {
		if _, ok := byName[want]; !ok {
			t.Errorf("port %q missing from listing: %v", want, ports)
		}
	}
	if p := byName["a-out"]; p.ClientName != "alpha" {
		t.Errorf("a-out client name = %q", p.ClientName)
	}
	if p := byName["Timer"]; p.ClientName != "System" {
		t.Errorf("Timer client name = %q", p.ClientName)
	}
}
