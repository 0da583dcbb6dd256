package sequencer

import (
	"errors"
	"testing"
	"time"

	"github.com/leandrodaf/alsaseq/internal/kernel/sim"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// connect wires a sender and receiver pair on one kernel and returns both
// ends with the subscription in place.
func connect(t *testing.T, k *sim.Kernel, nonblocking bool, fifoEvents int) (*Client, *Client, contracts.Address, contracts.Address) {
	t.Helper()
	sender := open(t, k, "sender", nonblocking)
	receiver := openFifo(t, k, "receiver", nonblocking, fifoEvents)
	out := mustCreatePort(t, sender, "out", contracts.RWPort)
	in := mustCreatePort(t, receiver, "in", contracts.RWPort)
	if err := sender.Subscribe(contracts.Subscription{Sender: out, Dest: in}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return sender, receiver, out, in
}

func noteAt(src contracts.Address, queue uint8, tick uint32, note uint8) contracts.Event {
	return contracts.Event{
		Type:   contracts.EventNoteOn,
		Queue:  queue,
		Time:   contracts.TickTime(tick),
		Source: src,
		Dest:   contracts.AllSubscribers,
		Data:   contracts.NoteData{Note: note, Velocity: 100},
	}
}

// Two events scheduled for the same tick arrive in submission order once the
// queue clock passes the tick.
func TestScheduledDeliveryOrder(t *testing.T) {
	k := sim.NewKernel()
	sender, receiver, out, _ := connect(t, k, false, 0)

	qid, err := sender.CreateQueue("sched")
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	if err := sender.SetQueueTempo(qid, 120, 480); err != nil {
		t.Fatalf("SetQueueTempo: %v", err)
	}
	if err := sender.StartQueue(qid); err != nil {
		t.Fatalf("StartQueue: %v", err)
	}

	// Tick 100 at 120 bpm and 480 ppq is ~104ms out.
	for _, note := range []uint8{60, 62} {
		if err := sender.Write(noteAt(out, uint8(qid), 100, note)); err != nil {
			t.Fatalf("Write note %d: %v", note, err)
		}
	}

	for i, want := range []uint8{60, 62} {
		got, err := receiver.ReadTimeout(2 * time.Second)
		if err != nil {
			t.Fatalf("ReadTimeout %d: %v", i, err)
		}
		data, ok := got.Data.(contracts.NoteData)
		if !ok || data.Note != want {
			t.Fatalf("delivery %d = %#v, want note %d", i, got.Data, want)
		}
		if got.Time.Tick != 100 {
			t.Errorf("delivery %d tick = %d, want 100", i, got.Time.Tick)
		}
	}
}

func TestWriteDirectBypassesQueue(t *testing.T) {
	k := sim.NewKernel()
	sender, receiver, out, _ := connect(t, k, false, 0)

	qid, err := sender.CreateQueue("idle")
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	// The queue is never started; a direct write must not park on it.
	if err := sender.WriteDirect(noteAt(out, uint8(qid), 500, 72)); err != nil {
		t.Fatalf("WriteDirect: %v", err)
	}
	got, err := receiver.ReadTimeout(time.Second)
	if err != nil {
		t.Fatalf("ReadTimeout: %v", err)
	}
	if data, ok := got.Data.(contracts.NoteData); !ok || data.Note != 72 {
		t.Fatalf("payload = %#v, want note 72", got.Data)
	}
}

func TestNonblockingRead(t *testing.T) {
	k := sim.NewKernel()
	_, receiver, _, _ := connect(t, k, true, 0)

	if _, err := receiver.Read(); !errors.Is(err, contracts.ErrWouldBlock) {
		t.Errorf("idle non-blocking read err = %v, want ErrWouldBlock", err)
	}
}

func TestNonblockingWriteBackpressure(t *testing.T) {
	k := sim.NewKernel()
	sender, receiver, out, _ := connect(t, k, true, 1)

	if err := sender.Write(noteAt(out, 0, 0, 60)); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := sender.Write(noteAt(out, 0, 0, 61)); !errors.Is(err, contracts.ErrWouldBlock) {
		t.Fatalf("write into full pool err = %v, want ErrWouldBlock", err)
	}

	if _, err := receiver.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if err := sender.Write(noteAt(out, 0, 0, 61)); err != nil {
		t.Errorf("write after drain: %v", err)
	}
}

func TestBlockingWriteWaitsForSpace(t *testing.T) {
	k := sim.NewKernel()
	sender, receiver, out, _ := connect(t, k, false, 1)

	if err := sender.Write(noteAt(out, 0, 0, 60)); err != nil {
		t.Fatalf("first write: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sender.Write(noteAt(out, 0, 0, 61)) }()

	select {
	case err := <-done:
		t.Fatalf("blocking write returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := receiver.Read(); err != nil {
		t.Fatalf("Read: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("blocked write: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("write did not resume after space freed")
	}
}

func TestReadTimeout(t *testing.T) {
	k := sim.NewKernel()
	_, receiver, _, _ := connect(t, k, false, 0)

	start := time.Now()
	_, err := receiver.ReadTimeout(50 * time.Millisecond)
	if !errors.Is(err, contracts.ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the deadline", elapsed)
	}

	if _, err := receiver.ReadTimeout(-time.Second); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Errorf("negative timeout err = %v, want ErrInvalidArgument", err)
	}
}

// A blocked read returns ErrClosed when the handle closes underneath it.
func TestCloseUnblocksRead(t *testing.T) {
	k := sim.NewKernel()
	_, receiver, _, _ := connect(t, k, false, 0)

	done := make(chan error, 1)
	go func() {
		_, err := receiver.Read()
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	if err := receiver.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, contracts.ErrClosed) {
			t.Errorf("blocked read err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("read did not return after Close")
	}
}

func TestDropInputDiscardsPending(t *testing.T) {
	k := sim.NewKernel()
	sender, receiver, out, _ := connect(t, k, true, 0)

	for i := 0; i < 3; i++ {
		if err := sender.Write(noteAt(out, 0, 0, uint8(60+i))); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	if err := receiver.DropInput(); err != nil {
		t.Fatalf("DropInput: %v", err)
	}
	if _, err := receiver.Read(); !errors.Is(err, contracts.ErrWouldBlock) {
		t.Errorf("read after drop err = %v, want ErrWouldBlock", err)
	}
}

func TestWaitModes(t *testing.T) {
	k := sim.NewKernel()
	sender, receiver, out, _ := connect(t, k, false, 0)

	if err := receiver.Wait(0, 0); !errors.Is(err, contracts.ErrInvalidArgument) {
		t.Errorf("empty mode err = %v, want ErrInvalidArgument", err)
	}
	if err := receiver.Wait(contracts.WaitRead, 0); !errors.Is(err, contracts.ErrTimedOut) {
		t.Errorf("idle wait err = %v, want ErrTimedOut", err)
	}

	if err := sender.Write(noteAt(out, 0, 0, 60)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := receiver.Wait(contracts.WaitRead, time.Second); err != nil {
		t.Errorf("wait with pending event: %v", err)
	}
	if err := sender.Drain(); err != nil {
		t.Errorf("Drain: %v", err)
	}
}
