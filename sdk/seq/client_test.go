package seq

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leandrodaf/alsaseq/internal/kernel/sim"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

func TestNewSequencerClientWithInjectedDevice(t *testing.T) {
	k := sim.NewKernel()
	dev, err := k.OpenClient("", 0)
	if err != nil {
		t.Fatalf("OpenClient: %v", err)
	}

	client, err := NewSequencerClient(
		contracts.WithDevice(dev),
		contracts.WithClientName("injected"),
		contracts.WithLogLevel(contracts.ErrorLevel),
	)
	if err != nil {
		t.Fatalf("NewSequencerClient: %v", err)
	}
	defer client.Close()

	info, err := client.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name != "injected" {
		t.Errorf("client name = %q, want %q", info.Name, "injected")
	}
}

func TestDefaultClientName(t *testing.T) {
	k := sim.NewKernel()
	dev, err := k.OpenClient("", 0)
	if err != nil {
		t.Fatalf("OpenClient: %v", err)
	}

	client, err := NewSequencerClient(
		contracts.WithDevice(dev),
		contracts.WithLogLevel(contracts.ErrorLevel),
	)
	if err != nil {
		t.Fatalf("NewSequencerClient: %v", err)
	}
	defer client.Close()

	info, err := client.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Name == "" {
		t.Error("default client name not applied")
	}
}

func TestWithLogFilePathRoutesOutput(t *testing.T) {
	k := sim.NewKernel()
	dev, err := k.OpenClient("", 0)
	if err != nil {
		t.Fatalf("OpenClient: %v", err)
	}

	logPath := filepath.Join(t.TempDir(), "seq.log")
	client, err := NewSequencerClient(
		contracts.WithDevice(dev),
		contracts.WithClientName("logged"),
		contracts.WithLogFilePath(logPath),
	)
	if err != nil {
		t.Fatalf("NewSequencerClient: %v", err)
	}
	defer client.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if len(data) == 0 {
		t.Error("log file empty after client open")
	}
}

func TestRoundTripThroughPublicSurface(t *testing.T) {
	k := sim.NewKernel()
	openOne := func(name string) contracts.SequencerClient {
		dev, err := k.OpenClient("", 0)
		if err != nil {
			t.Fatalf("OpenClient: %v", err)
		}
		c, err := NewSequencerClient(
			contracts.WithDevice(dev),
			contracts.WithClientName(name),
			contracts.WithLogLevel(contracts.ErrorLevel),
			contracts.WithNonblocking(),
		)
		if err != nil {
			t.Fatalf("NewSequencerClient(%q): %v", name, err)
		}
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	sender := openOne("pub-sender")
	receiver := openOne("pub-receiver")

	out, err := sender.CreatePort("out", contracts.RWPort, 0)
	if err != nil {
		t.Fatalf("CreatePort: %v", err)
	}
	in, err := receiver.CreatePort("in", contracts.RWPort, 0)
	if err != nil {
		t.Fatalf("CreatePort: %v", err)
	}
	if err := sender.Subscribe(contracts.Subscription{Sender: out, Dest: in}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// The receiver can locate the sender through the directory.
	addr, err := receiver.ParseAddress("pub-sender:out")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if addr != out {
		t.Errorf("resolved %s, want %s", addr, out)
	}

	ev := contracts.Event{
		Type:   contracts.EventNoteOn,
		Source: out,
		Dest:   contracts.AllSubscribers,
		Data:   contracts.NoteData{Note: 64, Velocity: 90},
	}
	if err := sender.Write(ev); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := receiver.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Data != ev.Data {
		t.Errorf("payload = %#v, want %#v", got.Data, ev.Data)
	}

	if _, err := receiver.Read(); !errors.Is(err, contracts.ErrWouldBlock) {
		t.Errorf("drained read err = %v, want ErrWouldBlock", err)
	}
}
