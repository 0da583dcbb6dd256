package sequencer

import (
	"errors"
	"testing"

	"github.com/leandrodaf/alsaseq/internal/kernel/sim"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

func TestSubscribeRejectsWildcards(t *testing.T) {
	k := sim.NewKernel()
	c := open(t, k, "subs", false)
	in := mustCreatePort(t, c, "in", contracts.ReadPort)

	err := c.Subscribe(contracts.Subscription{Sender: contracts.AllSubscribers, Dest: in})
	if !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Errorf("wildcard sender err = %v, want ErrInvalidArgument", err)
	}
	err = c.Subscribe(contracts.Subscription{Sender: in, Dest: contracts.Broadcast})
	if !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Errorf("wildcard dest err = %v, want ErrInvalidArgument", err)
	}
}

func TestSubscriptionQueryBothDirections(t *testing.T) {
	k := sim.NewKernel()
	a := open(t, k, "a", false)
	b := open(t, k, "b", false)
	out := mustCreatePort(t, a, "out", contracts.RWPort)
	in := mustCreatePort(t, b, "in", contracts.RWPort)

	edge := contracts.Subscription{Sender: out, Dest: in, TimeUpdate: true}
	if err := a.Subscribe(edge); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for _, addr := range []contracts.Address{out, in} {
		subs, err := b.Subscriptions(addr)
		if err != nil {
			t.Fatalf("Subscriptions(%s): %v", addr, err)
		}
		if len(subs) != 1 {
			t.Fatalf("Subscriptions(%s) = %v, want one edge", addr, subs)
		}
		if subs[0].Sender != out || subs[0].Dest != in || !subs[0].TimeUpdate {
			t.Errorf("edge = %+v", subs[0])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	k := sim.NewKernel()
	a := open(t, k, "a", false)
	b := open(t, k, "b", false)
	out := mustCreatePort(t, a, "out", contracts.RWPort)
	in := mustCreatePort(t, b, "in", contracts.RWPort)

	if err := a.Subscribe(contracts.Subscription{Sender: out, Dest: in}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := a.Unsubscribe(out, in, 0); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := a.Unsubscribe(out, in, 0); !errors.Is(err, contracts.ErrNotFound) {
		t.Errorf("repeated unsubscribe err = %v, want ErrNotFound", err)
	}

	subs, err := a.Subscriptions(out)
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("edges after unsubscribe = %v", subs)
	}
}

func TestSubscribeErrorTaxonomy(t *testing.T) {
	k := sim.NewKernel()
	a := open(t, k, "a", false)
	b := open(t, k, "b", false)
	out := mustCreatePort(t, a, "out", contracts.RWPort)
	in := mustCreatePort(t, b, "in", contracts.RWPort)
	edge := contracts.Subscription{Sender: out, Dest: in}

	if err := a.Subscribe(edge); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Subscribe(edge); !errors.Is(err, contracts.ErrAlreadyConnected) {
		t.Errorf("duplicate err = %v, want ErrAlreadyConnected", err)
	}

	other := mustCreatePort(t, b, "in2", contracts.RWPort)
	excl := contracts.Subscription{Sender: out, Dest: other, Exclusive: true}
	if err := a.Subscribe(excl); !errors.Is(err, contracts.ErrPortBusy) {
		t.Errorf("exclusive over busy endpoint err = %v, want ErrPortBusy", err)
	}

	missing := contracts.Address{Client: uint8(a.ClientID()), Port: 200}
	err := a.Subscribe(contracts.Subscription{Sender: missing, Dest: in})
	if !errors.Is(err, contracts.ErrNotFound) {
		t.Errorf("absent endpoint err = %v, want ErrNotFound", err)
	}
}
