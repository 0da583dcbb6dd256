//go:build linux

package devfs

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// newPollDevice builds a device around an eventfd so the readiness plumbing
// is testable without /dev/snd/seq.
func newPollDevice(t *testing.T) *device {
	t.Helper()
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		t.Fatalf("eventfd: %v", err)
	}
	d := &device{fd: fd, epfd: -1, wakeFd: -1}
	if err := d.initPoll(); err != nil {
		unix.Close(fd)
		t.Fatalf("initPoll: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDevicePathFor(t *testing.T) {
	for _, name := range []string{"", "default", "hw"} {
		path, err := devicePathFor(name)
		if err != nil || path != devicePath {
			t.Errorf("devicePathFor(%q) = %q, %v", name, path, err)
		}
	}
	if _, err := devicePathFor("usb-midi-3"); !errors.Is(err, contracts.ErrNotFound) {
		t.Errorf("unknown node err = %v, want ErrNotFound", err)
	}
}

func TestWaitTimeout(t *testing.T) {
	d := newPollDevice(t)
	start := time.Now()
	err := d.Wait(contracts.WaitRead, 20*time.Millisecond)
	if !errors.Is(err, contracts.ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("returned after %v, before the deadline", elapsed)
	}
}

func TestWaitReadiness(t *testing.T) {
	d := newPollDevice(t)
	one := [8]byte{7: 1}
	if _, err := unix.Write(d.fd, one[:]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := d.Wait(contracts.WaitRead, time.Second); err != nil {
		t.Fatalf("Wait with readable fd: %v", err)
	}
}

// Closing while a waiter is parked, or about to park, must read as ErrClosed
// rather than a raw descriptor error.
func TestCloseUnblocksWait(t *testing.T) {
	d := newPollDevice(t)
	done := make(chan error, 1)
	go func() { done <- d.Wait(contracts.WaitRead, -1) }()

	time.Sleep(10 * time.Millisecond)
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, contracts.ErrClosed) {
			t.Errorf("Wait err = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after Close")
	}

	if err := d.Wait(contracts.WaitRead, time.Second); !errors.Is(err, contracts.ErrClosed) {
		t.Errorf("Wait after Close err = %v, want ErrClosed", err)
	}
}

func TestWaitCloseRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := newPollDevice(t)
		done := make(chan error, 1)
		go func() { done <- d.Wait(contracts.WaitRead, time.Second) }()
		_ = d.Close()
		if err := <-done; !errors.Is(err, contracts.ErrClosed) {
			t.Fatalf("iteration %d: err = %v, want ErrClosed", i, err)
		}
	}
}
