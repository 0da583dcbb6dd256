package contracts

import "time"

// WaitMode selects the readiness directions of a multiplexed wait.
type WaitMode uint8

const (
	WaitRead WaitMode = 1 << iota
	WaitWrite
)

// SubQueryDir selects which side of the subscription graph a query walks.
type SubQueryDir int

const (
	// QueryOutbound enumerates edges where the queried address is the
	// sender.
	QueryOutbound SubQueryDir = iota
	// QueryInbound enumerates edges where the queried address is the
	// destination.
	QueryInbound
)

// Device is the ioctl-style surface of one open sequencer connection. The
// production backend talks to the kernel; tests and embedders may inject
// their own. All methods map kernel failures onto the error taxonomy.
//
// ReadEvent and WriteEvent move encoded envelopes and never block; they
// return ErrWouldBlock and the caller decides whether to Wait. Wait returns
// nil on readiness, ErrTimedOut on expiry (timeout < 0 waits forever) and
// ErrClosed once the device is closed, including closes issued while
// waiting.
type Device interface {
	ClientID() int

	ClientInfo(client int) (ClientInfo, error)
	SetClientInfo(info ClientInfo) error
	// SetClientPool resizes the kernel-side event pools, in events. A zero
	// value leaves that pool at its current size.
	SetClientPool(inputEvents, outputEvents int) error
	NextClient(after int) (ClientInfo, error)

	CreatePort(info PortInfo) (int, error)
	DeletePort(port int) error
	PortInfo(addr Address) (PortInfo, error)
	SetPortInfo(port int, info PortInfo) error
	NextPort(client, after int) (PortInfo, error)

	Subscribe(sub Subscription) error
	Unsubscribe(sub Subscription) error
	QuerySubscription(root Address, dir SubQueryDir, index int) (Subscription, error)

	CreateQueue(name string) (int, error)
	FreeQueue(queue int) error
	SetQueueTempo(queue int, tempo QueueTempo) error
	QueueTempo(queue int) (QueueTempo, error)
	QueueInfo(queue int) (QueueInfo, error)
	QueueStatus(queue int) (QueueStatus, error)

	ReadEvent() ([]byte, error)
	WriteEvent(buf []byte, direct bool) error
	DrainOutput() error
	DropInput() error
	DropOutput() error

	Wait(mode WaitMode, timeout time.Duration) error
	Close() error
}

// SequencerClient is one logical connection to the kernel sequencer. A
// handle is not safe for unsynchronized concurrent mutation; all operations
// on one handle are serialized internally to preserve per-writer event
// ordering. Independent handles need no coordination.
//
// Close releases every port, subscription and queue the handle created and
// unblocks pending blocked calls with ErrClosed.
type SequencerClient interface {
	ClientID() int
	Close() error

	Info() (ClientInfo, error)
	SetInfo(info ClientInfo) error

	CreatePort(name string, caps PortCaps, ptype PortType) (Address, error)
	DeletePort(port int) error
	UpdatePort(port int, info PortInfo) error
	PortInfo(addr Address) (PortInfo, error)

	Clients() ([]ClientInfo, error)
	Ports(client int) ([]PortInfo, error)
	ListPorts() ([]PortInfo, error)
	ParseAddress(text string) (Address, error)

	Subscribe(sub Subscription) error
	Unsubscribe(sender, dest Address, queue uint8) error
	Subscriptions(addr Address) ([]Subscription, error)

	CreateQueue(name string) (int, error)
	FreeQueue(queue int) error
	SetQueueTempo(queue int, bpm float64, ppq int) error
	QueueTempo(queue int) (QueueTempo, error)
	QueueStatus(queue int) (QueueStatus, error)
	StartQueue(queue int) error
	StopQueue(queue int) error
	ContinueQueue(queue int) error

	Read() (Event, error)
	ReadTimeout(timeout time.Duration) (Event, error)
	Write(ev Event) error
	WriteDirect(ev Event) error
	Drain() error
	DropInput() error
	DropOutput() error

	Wait(mode WaitMode, timeout time.Duration) error
}
