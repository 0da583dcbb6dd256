package sequencer

import (
	"errors"
	"math"
	"testing"

	"github.com/leandrodaf/alsaseq/internal/kernel/sim"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

func TestQueueTempoRoundTrip(t *testing.T) {
	k := sim.NewKernel()
	c := open(t, k, "tempo", false)
	qid, err := c.CreateQueue("clock")
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}

	if err := c.SetQueueTempo(qid, 120, 480); err != nil {
		t.Fatalf("SetQueueTempo: %v", err)
	}
	tempo, err := c.QueueTempo(qid)
	if err != nil {
		t.Fatalf("QueueTempo: %v", err)
	}
	if tempo.Tempo != 500000 || tempo.PPQ != 480 {
		t.Errorf("tempo = %+v, want 500000us at 480 ppq", tempo)
	}
	if bpm := tempo.BPM(); bpm != 120 {
		t.Errorf("BPM() = %v, want 120", bpm)
	}

	for _, bad := range []struct {
		bpm float64
		ppq int
	}{
		{0, 96}, {-10, 96}, {120, 0}, {120, -1},
		{math.NaN(), 96}, {math.Inf(1), 96},
	} {
		err := c.SetQueueTempo(qid, bad.bpm, bad.ppq)
		if !errors.Is(err, contracts.ErrInvalidArgument) {
			t.Errorf("SetQueueTempo(%v, %d) err = %v, want ErrInvalidArgument", bad.bpm, bad.ppq, err)
		}
	}
}

func TestQueueStateTransitions(t *testing.T) {
	k := sim.NewKernel()
	c := open(t, k, "state", false)
	qid, err := c.CreateQueue("clock")
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}

	state := func() contracts.QueueState {
		t.Helper()
		st, err := c.QueueStatus(qid)
		if err != nil {
			t.Fatalf("QueueStatus: %v", err)
		}
		return st.State
	}

	if s := state(); s != contracts.QueueStopped {
		t.Fatalf("fresh queue state = %v", s)
	}
	if err := c.StartQueue(qid); err != nil {
		t.Fatalf("StartQueue: %v", err)
	}
	if s := state(); s != contracts.QueueRunning {
		t.Fatalf("after start state = %v", s)
	}
	if err := c.StopQueue(qid); err != nil {
		t.Fatalf("StopQueue: %v", err)
	}
	if s := state(); s != contracts.QueuePaused {
		t.Fatalf("after stop state = %v", s)
	}
	if err := c.ContinueQueue(qid); err != nil {
		t.Fatalf("ContinueQueue: %v", err)
	}
	if s := state(); s != contracts.QueueRunning {
		t.Fatalf("after continue state = %v", s)
	}
}

func TestQueueControlWithoutPorts(t *testing.T) {
	// Queue control traffic is accepted from a client that never created a
	// port of its own.
	k := sim.NewKernel()
	c := open(t, k, "portless", false)
	qid, err := c.CreateQueue("clock")
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if err := c.StartQueue(qid); err != nil {
		t.Fatalf("StartQueue: %v", err)
	}
	st, err := c.QueueStatus(qid)
	if err != nil {
		t.Fatalf("QueueStatus: %v", err)
	}
	if st.State != contracts.QueueRunning {
		t.Errorf("state = %v, want running", st.State)
	}
}

func TestFreeQueueOwnership(t *testing.T) {
	k := sim.NewKernel()
	a := open(t, k, "owner", false)
	b := open(t, k, "other", false)
	qid, err := a.CreateQueue("mine")
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}

	if err := b.FreeQueue(qid); !errors.Is(err, contracts.ErrNotOwned) {
		t.Errorf("foreign free err = %v, want ErrNotOwned", err)
	}
	if err := a.FreeQueue(qid); err != nil {
		t.Fatalf("FreeQueue: %v", err)
	}
	if err := a.FreeQueue(qid); err != nil {
		t.Errorf("repeated free of own queue: %v, want nil", err)
	}
	if _, err := a.QueueStatus(qid); !errors.Is(err, contracts.ErrNotFound) {
		t.Errorf("freed queue still resolvable: err = %v", err)
	}
	if err := a.StartQueue(qid); !errors.Is(err, contracts.ErrNotFound) {
		t.Errorf("start of freed queue err = %v, want ErrNotFound", err)
	}
}
