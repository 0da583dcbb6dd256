//go:build linux

// Package devfs is the production sequencer backend: it drives the kernel
// subsystem through /dev/snd/seq with ioctl calls for administration, raw
// reads/writes for event I/O, and epoll for readiness. The descriptor is
// kept non-blocking; blocking semantics are built above via Wait.
package devfs

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/leandrodaf/alsaseq/internal/codec"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

const devicePath = "/dev/snd/seq"

// devicePathFor maps a sequencer node name to its device file. Only the
// kernel node exists; alsa-lib's configured aliases for it are accepted.
func devicePathFor(name string) (string, error) {
	switch name {
	case "", "default", "hw":
		return devicePath, nil
	}
	return "", fmt.Errorf("%w: sequencer node %q", contracts.ErrNotFound, name)
}

type device struct {
	fd       int
	epfd     int
	wakeFd   int // eventfd poked by Close to unblock waiters
	clientID int

	mu     sync.Mutex
	rbuf   []byte // residue of the last kernel read
	closed bool
}

// Open connects to the kernel sequencer and returns the device handle.
func Open(opts *contracts.ClientOptions) (contracts.Device, error) {
	path, err := devicePathFor(opts.SequencerName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contracts.ErrOpen, err)
	}
	flags := unix.O_RDWR
	switch opts.Direction {
	case contracts.OpenInput:
		flags = unix.O_RDONLY
	case contracts.OpenOutput:
		flags = unix.O_WRONLY
	}
	fd, err := unix.Open(path, flags|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contracts.ErrOpen, path, err)
	}

	d := &device{fd: fd, epfd: -1, wakeFd: -1}
	var id int32
	if err := d.ioctl("client_id", ioctlClientID, unsafe.Pointer(&id)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: query client id: %v", contracts.ErrOpen, err)
	}
	d.clientID = int(id)

	if err := d.initPoll(); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %v", contracts.ErrOpen, err)
	}
	return d, nil
}

func (d *device) initPoll() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return fmt.Errorf("epoll_create1: %v", err)
	}
	wake, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return fmt.Errorf("eventfd: %v", err)
	}
	err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wake, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(wake),
	})
	if err == nil {
		// Re-armed per Wait call with the requested direction.
		err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, d.fd, &unix.EpollEvent{
			Events: unix.EPOLLIN,
			Fd:     int32(d.fd),
		})
	}
	if err != nil {
		unix.Close(epfd)
		unix.Close(wake)
		return fmt.Errorf("epoll_ctl: %v", err)
	}
	d.epfd = epfd
	d.wakeFd = wake
	return nil
}

func (d *device) ClientID() int { return d.clientID }

func (d *device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *device) ioctl(op string, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), req, uintptr(arg))
	if errno != 0 {
		return contracts.NewKernelError(op, int(errno))
	}
	return nil
}

func (d *device) ClientInfo(client int) (contracts.ClientInfo, error) {
	var raw seqClientInfo
	if client == d.clientID {
		raw.Client = int32(client)
		if err := d.ioctl("get_client_info", ioctlGetClientInfo, unsafe.Pointer(&raw)); err != nil {
			return contracts.ClientInfo{}, err
		}
		return clientInfoFromRaw(&raw), nil
	}
	// The kernel only answers GET_CLIENT_INFO for the caller; foreign
	// clients are reached through directory enumeration.
	raw.Client = int32(client) - 1
	if err := d.ioctl("query_next_client", ioctlQueryNextClient, unsafe.Pointer(&raw)); err != nil {
		return contracts.ClientInfo{}, err
	}
	if int(raw.Client) != client {
		return contracts.ClientInfo{}, fmt.Errorf("%w: client %d", contracts.ErrNotFound, client)
	}
	return clientInfoFromRaw(&raw), nil
}

func (d *device) SetClientInfo(info contracts.ClientInfo) error {
	var raw seqClientInfo
	raw.Client = int32(d.clientID)
	if err := d.ioctl("get_client_info", ioctlGetClientInfo, unsafe.Pointer(&raw)); err != nil {
		return err
	}
	if info.Name != "" {
		setCString(raw.Name[:], info.Name)
	}
	raw.Filter &^= filterBroadcast | filterBounce
	if info.BroadcastFilter {
		raw.Filter |= filterBroadcast
	}
	if info.ErrorBounce {
		raw.Filter |= filterBounce
	}
	return d.ioctl("set_client_info", ioctlSetClientInfo, unsafe.Pointer(&raw))
}

func (d *device) SetClientPool(inputEvents, outputEvents int) error {
	if inputEvents < 0 || outputEvents < 0 {
		return fmt.Errorf("%w: pool sizes %d/%d", contracts.ErrInvalidArgument, inputEvents, outputEvents)
	}
	var raw seqClientPool
	raw.Client = int32(d.clientID)
	if err := d.ioctl("get_client_pool", ioctlGetClientPool, unsafe.Pointer(&raw)); err != nil {
		return err
	}
	if inputEvents > 0 {
		raw.InputPool = int32(inputEvents)
	}
	if outputEvents > 0 {
		raw.OutputPool = int32(outputEvents)
	}
	return d.ioctl("set_client_pool", ioctlSetClientPool, unsafe.Pointer(&raw))
}

func (d *device) NextClient(after int) (contracts.ClientInfo, error) {
	var raw seqClientInfo
	raw.Client = int32(after)
	if err := d.ioctl("query_next_client", ioctlQueryNextClient, unsafe.Pointer(&raw)); err != nil {
		return contracts.ClientInfo{}, err
	}
	return clientInfoFromRaw(&raw), nil
}

func clientInfoFromRaw(raw *seqClientInfo) contracts.ClientInfo {
	return contracts.ClientInfo{
		ClientID:        int(raw.Client),
		Name:            cString(raw.Name[:]),
		Type:            contracts.ClientType(raw.Type),
		BroadcastFilter: raw.Filter&filterBroadcast != 0,
		ErrorBounce:     raw.Filter&filterBounce != 0,
		CardID:          int(raw.Card),
		PID:             int(raw.Pid),
		NumPorts:        int(raw.NumPorts),
		EventLost:       int(raw.EventLost),
	}
}

func (d *device) CreatePort(info contracts.PortInfo) (int, error) {
	raw := portInfoToRaw(info)
	raw.Addr.Client = uint8(d.clientID)
	if err := d.ioctl("create_port", ioctlCreatePort, unsafe.Pointer(&raw)); err != nil {
		return 0, err
	}
	return int(raw.Addr.Port), nil
}

func (d *device) DeletePort(port int) error {
	var raw seqPortInfo
	raw.Addr = seqAddr{Client: uint8(d.clientID), Port: uint8(port)}
	return d.ioctl("delete_port", ioctlDeletePort, unsafe.Pointer(&raw))
}

func (d *device) PortInfo(addr contracts.Address) (contracts.PortInfo, error) {
	var raw seqPortInfo
	raw.Addr = seqAddr{Client: addr.Client, Port: addr.Port}
	if err := d.ioctl("get_port_info", ioctlGetPortInfo, unsafe.Pointer(&raw)); err != nil {
		return contracts.PortInfo{}, err
	}
	return portInfoFromRaw(&raw), nil
}

func (d *device) SetPortInfo(port int, info contracts.PortInfo) error {
	raw := portInfoToRaw(info)
	raw.Addr = seqAddr{Client: uint8(d.clientID), Port: uint8(port)}
	return d.ioctl("set_port_info", ioctlSetPortInfo, unsafe.Pointer(&raw))
}

func (d *device) NextPort(client, after int) (contracts.PortInfo, error) {
	var raw seqPortInfo
	// The kernel returns the nearest port at or after the requested number.
	raw.Addr = seqAddr{Client: uint8(client), Port: uint8(after + 1)}
	if err := d.ioctl("query_next_port", ioctlQueryNextPort, unsafe.Pointer(&raw)); err != nil {
		return contracts.PortInfo{}, err
	}
	return portInfoFromRaw(&raw), nil
}

func portInfoToRaw(info contracts.PortInfo) seqPortInfo {
	var raw seqPortInfo
	setCString(raw.Name[:], info.Name)
	raw.Capability = uint32(info.Capability)
	raw.Type = uint32(info.Type)
	raw.MidiChannels = int32(info.MidiChannels)
	raw.MidiVoices = int32(info.MidiVoices)
	raw.SynthVoices = int32(info.SynthVoices)
	if info.TimestampEnabled {
		raw.Flags |= portFlagTimestamp
		if info.TimestampReal {
			raw.Flags |= portFlagTimeReal
		}
		raw.TimeQueue = uint8(info.TimestampQueue)
	}
	return raw
}

func portInfoFromRaw(raw *seqPortInfo) contracts.PortInfo {
	return contracts.PortInfo{
		Addr:             contracts.Address{Client: raw.Addr.Client, Port: raw.Addr.Port},
		Name:             cString(raw.Name[:]),
		Capability:       contracts.PortCaps(raw.Capability),
		Type:             contracts.PortType(raw.Type),
		MidiChannels:     int(raw.MidiChannels),
		MidiVoices:       int(raw.MidiVoices),
		SynthVoices:      int(raw.SynthVoices),
		ReadUse:          int(raw.ReadUse),
		WriteUse:         int(raw.WriteUse),
		TimestampEnabled: raw.Flags&portFlagTimestamp != 0,
		TimestampReal:    raw.Flags&portFlagTimeReal != 0,
		TimestampQueue:   int(raw.TimeQueue),
	}
}

func subscribeToRaw(sub contracts.Subscription) seqPortSubscribe {
	raw := seqPortSubscribe{
		Sender: seqAddr{Client: sub.Sender.Client, Port: sub.Sender.Port},
		Dest:   seqAddr{Client: sub.Dest.Client, Port: sub.Dest.Port},
		Queue:  uint32(sub.Queue),
	}
	if sub.Exclusive {
		raw.Flags |= subsExclusive
	}
	if sub.TimeUpdate {
		raw.Flags |= subsTimestamp
	}
	if sub.TimeReal {
		raw.Flags |= subsTimeReal
	}
	return raw
}

func (d *device) Subscribe(sub contracts.Subscription) error {
	raw := subscribeToRaw(sub)
	return d.ioctl("subscribe_port", ioctlSubscribePort, unsafe.Pointer(&raw))
}

func (d *device) Unsubscribe(sub contracts.Subscription) error {
	raw := subscribeToRaw(sub)
	return d.ioctl("unsubscribe_port", ioctlUnsubscribePort, unsafe.Pointer(&raw))
}

func (d *device) QuerySubscription(root contracts.Address, dir contracts.SubQueryDir, index int) (contracts.Subscription, error) {
	var raw seqQuerySubs
	raw.Root = seqAddr{Client: root.Client, Port: root.Port}
	raw.Type = querySubsRead
	if dir == contracts.QueryInbound {
		raw.Type = querySubsWrite
	}
	raw.Index = int32(index)
	if err := d.ioctl("query_subs", ioctlQuerySubs, unsafe.Pointer(&raw)); err != nil {
		return contracts.Subscription{}, err
	}
	if int(raw.Index) >= int(raw.NumSubs) {
		return contracts.Subscription{}, fmt.Errorf("%w: subscription %d of %s", contracts.ErrNotFound, index, root)
	}
	other := contracts.Address{Client: raw.Addr.Client, Port: raw.Addr.Port}
	sub := contracts.Subscription{
		Queue:      uint8(raw.Queue),
		Exclusive:  raw.Flags&subsExclusive != 0,
		TimeUpdate: raw.Flags&subsTimestamp != 0,
		TimeReal:   raw.Flags&subsTimeReal != 0,
	}
	if dir == contracts.QueryOutbound {
		sub.Sender, sub.Dest = root, other
	} else {
		sub.Sender, sub.Dest = other, root
	}
	return sub, nil
}

func (d *device) CreateQueue(name string) (int, error) {
	var raw seqQueueInfo
	raw.Owner = int32(d.clientID)
	setCString(raw.Name[:], name)
	if err := d.ioctl("create_queue", ioctlCreateQueue, unsafe.Pointer(&raw)); err != nil {
		return 0, err
	}
	return int(raw.Queue), nil
}

func (d *device) FreeQueue(queue int) error {
	var raw seqQueueInfo
	raw.Queue = int32(queue)
	return d.ioctl("delete_queue", ioctlDeleteQueue, unsafe.Pointer(&raw))
}

func (d *device) SetQueueTempo(queue int, tempo contracts.QueueTempo) error {
	raw := seqQueueTempo{
		Queue:    int32(queue),
		Tempo:    tempo.Tempo,
		PPQ:      int32(tempo.PPQ),
		SkewBase: 0x10000,
		SkewVal:  0x10000,
	}
	return d.ioctl("set_queue_tempo", ioctlSetQueueTempo, unsafe.Pointer(&raw))
}

func (d *device) QueueTempo(queue int) (contracts.QueueTempo, error) {
	var raw seqQueueTempo
	raw.Queue = int32(queue)
	if err := d.ioctl("get_queue_tempo", ioctlGetQueueTempo, unsafe.Pointer(&raw)); err != nil {
		return contracts.QueueTempo{}, err
	}
	return contracts.QueueTempo{Tempo: raw.Tempo, PPQ: int(raw.PPQ)}, nil
}

func (d *device) QueueInfo(queue int) (contracts.QueueInfo, error) {
	var raw seqQueueInfo
	raw.Queue = int32(queue)
	if err := d.ioctl("get_queue_info", ioctlGetQueueInfo, unsafe.Pointer(&raw)); err != nil {
		return contracts.QueueInfo{}, err
	}
	return contracts.QueueInfo{
		QueueID: int(raw.Queue),
		Name:    cString(raw.Name[:]),
		Owner:   int(raw.Owner),
		Locked:  raw.Locked != 0,
	}, nil
}

func (d *device) QueueStatus(queue int) (contracts.QueueStatus, error) {
	var raw seqQueueStatus
	raw.Queue = int32(queue)
	if err := d.ioctl("get_queue_status", ioctlGetQueueStatus, unsafe.Pointer(&raw)); err != nil {
		return contracts.QueueStatus{}, err
	}
	status := contracts.QueueStatus{
		QueueID: int(raw.Queue),
		Tick:    raw.Tick,
		Time:    contracts.RealTime{Seconds: raw.Time.Sec, Nanoseconds: raw.Time.Nsec},
		Events:  int(raw.Events),
	}
	// The kernel reports only a running bit: a halted queue that has
	// advanced is distinguished from a fresh one by its position.
	switch {
	case raw.Running != 0:
		status.State = contracts.QueueRunning
	case raw.Tick != 0 || raw.Time.Sec != 0 || raw.Time.Nsec != 0:
		status.State = contracts.QueuePaused
	default:
		status.State = contracts.QueueStopped
	}
	return status, nil
}

// ReadEvent returns the next complete encoded event. The kernel hands out
// whole events but a single read may carry several; the residue buffer keeps
// what the caller has not consumed yet.
func (d *device) ReadEvent() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: device", contracts.ErrClosed)
	}
	for {
		if n := codec.FrameSize(d.rbuf); n > 0 {
			buf := make([]byte, n)
			copy(buf, d.rbuf[:n])
			d.rbuf = d.rbuf[n:]
			return buf, nil
		}
		chunk := make([]byte, 4096)
		n, err := unix.Read(d.fd, chunk)
		if err != nil {
			if err == unix.EAGAIN {
				return nil, fmt.Errorf("%w: no event pending", contracts.ErrWouldBlock)
			}
			return nil, contracts.NewKernelError("event_read", int(err.(unix.Errno)))
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: device", contracts.ErrClosed)
		}
		d.rbuf = append(d.rbuf, chunk[:n]...)
	}
}

func (d *device) WriteEvent(buf []byte, direct bool) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: device", contracts.ErrClosed)
	}
	_ = direct // direct delivery is selected by the queue byte in the envelope
	if _, err := unix.Write(d.fd, buf); err != nil {
		if err == unix.EAGAIN {
			return fmt.Errorf("%w: kernel output pool full", contracts.ErrWouldBlock)
		}
		return contracts.NewKernelError("event_write", int(err.(unix.Errno)))
	}
	return nil
}

// DrainOutput is a no-op: events are handed to the kernel synchronously by
// WriteEvent, nothing is buffered on the user side.
func (d *device) DrainOutput() error { return nil }

func (d *device) DropInput() error {
	d.mu.Lock()
	d.rbuf = nil
	d.mu.Unlock()
	raw := seqRemoveEvents{Remove: removeInput}
	return d.ioctl("remove_events", ioctlRemoveEvents, unsafe.Pointer(&raw))
}

func (d *device) DropOutput() error {
	raw := seqRemoveEvents{Remove: removeOutput}
	return d.ioctl("remove_events", ioctlRemoveEvents, unsafe.Pointer(&raw))
}

// Wait blocks in epoll until the descriptor is ready in a requested
// direction, the timeout expires, or Close pokes the wake eventfd.
func (d *device) Wait(mode contracts.WaitMode, timeout time.Duration) error {
	var want uint32
	if mode&contracts.WaitRead != 0 {
		want |= unix.EPOLLIN
	}
	if mode&contracts.WaitWrite != 0 {
		want |= unix.EPOLLOUT
	}
	if d.isClosed() {
		return fmt.Errorf("%w: device", contracts.ErrClosed)
	}
	err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, d.fd, &unix.EpollEvent{
		Events: want,
		Fd:     int32(d.fd),
	})
	if err != nil {
		// Close tears the descriptors down under a racing waiter; that
		// loss must read as a close, not a kernel failure.
		if d.isClosed() {
			return fmt.Errorf("%w: device", contracts.ErrClosed)
		}
		return contracts.NewKernelError("epoll_ctl", int(err.(unix.Errno)))
	}

	deadlineMs := -1
	if timeout >= 0 {
		deadlineMs = int(timeout.Milliseconds())
	}

	events := make([]unix.EpollEvent, 4)
	for {
		n, err := unix.EpollWait(d.epfd, events, deadlineMs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			if d.isClosed() {
				return fmt.Errorf("%w: device", contracts.ErrClosed)
			}
			return contracts.NewKernelError("epoll_wait", int(err.(unix.Errno)))
		}
		if n == 0 {
			return fmt.Errorf("%w: after %v", contracts.ErrTimedOut, timeout)
		}
		for _, ev := range events[:n] {
			if int(ev.Fd) == d.wakeFd {
				return fmt.Errorf("%w: device", contracts.ErrClosed)
			}
			// EPOLLERR/EPOLLHUP also count: the caller retries the
			// operation and surfaces the real error.
			if int(ev.Fd) == d.fd {
				return nil
			}
		}
	}
}

func (d *device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	// Unblock waiters before tearing the descriptors down.
	var one = [8]byte{7: 1}
	_, _ = unix.Write(d.wakeFd, one[:])

	err := unix.Close(d.fd)
	unix.Close(d.epfd)
	unix.Close(d.wakeFd)
	if err != nil {
		return contracts.NewKernelError("close", int(err.(unix.Errno)))
	}
	return nil
}
