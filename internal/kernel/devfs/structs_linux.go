//go:build linux

package devfs

import "unsafe"

// ioctl request encoding, linux generic layout.
const (
	iocWrite uintptr = 1
	iocRead  uintptr = 2

	seqIoctlType uintptr = 'S'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<30 | size<<16 | seqIoctlType<<8 | nr
}

func ior(nr, size uintptr) uintptr  { return ioc(iocRead, nr, size) }
func iow(nr, size uintptr) uintptr  { return ioc(iocWrite, nr, size) }
func iowr(nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, nr, size) }

// Kernel sequencer ioctl numbers.
var (
	ioctlClientID = ior(0x01, unsafe.Sizeof(int32(0)))

	ioctlGetClientInfo = iowr(0x10, unsafe.Sizeof(seqClientInfo{}))
	ioctlSetClientInfo = iow(0x11, unsafe.Sizeof(seqClientInfo{}))

	ioctlCreatePort  = iowr(0x20, unsafe.Sizeof(seqPortInfo{}))
	ioctlDeletePort  = iow(0x21, unsafe.Sizeof(seqPortInfo{}))
	ioctlGetPortInfo = iowr(0x22, unsafe.Sizeof(seqPortInfo{}))
	ioctlSetPortInfo = iow(0x23, unsafe.Sizeof(seqPortInfo{}))

	ioctlSubscribePort   = iow(0x30, unsafe.Sizeof(seqPortSubscribe{}))
	ioctlUnsubscribePort = iow(0x31, unsafe.Sizeof(seqPortSubscribe{}))

	ioctlCreateQueue    = iowr(0x32, unsafe.Sizeof(seqQueueInfo{}))
	ioctlDeleteQueue    = iow(0x33, unsafe.Sizeof(seqQueueInfo{}))
	ioctlGetQueueInfo   = iowr(0x34, unsafe.Sizeof(seqQueueInfo{}))
	ioctlSetQueueInfo   = iowr(0x35, unsafe.Sizeof(seqQueueInfo{}))
	ioctlGetQueueStatus = iowr(0x40, unsafe.Sizeof(seqQueueStatus{}))
	ioctlGetQueueTempo  = iowr(0x41, unsafe.Sizeof(seqQueueTempo{}))
	ioctlSetQueueTempo  = iow(0x42, unsafe.Sizeof(seqQueueTempo{}))

	ioctlGetClientPool = iowr(0x4b, unsafe.Sizeof(seqClientPool{}))
	ioctlSetClientPool = iow(0x4c, unsafe.Sizeof(seqClientPool{}))

	ioctlRemoveEvents    = iow(0x4e, unsafe.Sizeof(seqRemoveEvents{}))
	ioctlQuerySubs       = iowr(0x4f, unsafe.Sizeof(seqQuerySubs{}))
	ioctlQueryNextClient = iowr(0x51, unsafe.Sizeof(seqClientInfo{}))
	ioctlQueryNextPort   = iowr(0x52, unsafe.Sizeof(seqPortInfo{}))
)

// Client filter bits.
const (
	filterBroadcast uint32 = 1 << 0
	filterMulticast uint32 = 1 << 1
	filterBounce    uint32 = 1 << 2
)

// Port flag bits.
const (
	portFlagGivenPort uint32 = 1 << 0
	portFlagTimestamp uint32 = 1 << 1
	portFlagTimeReal  uint32 = 1 << 2
)

// Subscription flag bits.
const (
	subsExclusive uint32 = 1 << 0
	subsTimestamp uint32 = 1 << 1
	subsTimeReal  uint32 = 1 << 2
)

// Query directions for ioctlQuerySubs.
const (
	querySubsRead  int32 = 0 // edges where root is the sender
	querySubsWrite int32 = 1 // edges where root is the destination
)

// Remove-events condition bits.
const (
	removeInput  uint32 = 1 << 0
	removeOutput uint32 = 1 << 1
)

type seqAddr struct {
	Client uint8
	Port   uint8
}

type seqClientInfo struct {
	Client          int32
	Type            int32
	Name            [64]byte
	Filter          uint32
	MulticastFilter [8]byte
	EventFilter     [32]byte
	NumPorts        int32
	EventLost       int32
	Card            int32
	Pid             int32
	Reserved        [56]byte
}

type seqPortInfo struct {
	Addr         seqAddr
	Name         [64]byte
	Capability   uint32
	Type         uint32
	MidiChannels int32
	MidiVoices   int32
	SynthVoices  int32
	ReadUse      int32
	WriteUse     int32
	Kernel       uint64 // kernel-internal pointer, opaque to user space
	Flags        uint32
	TimeQueue    uint8
	Reserved     [59]byte
}

type seqPortSubscribe struct {
	Sender   seqAddr
	Dest     seqAddr
	Queue    uint32
	Flags    uint32
	Reserved [64]byte
}

type seqQuerySubs struct {
	Root     seqAddr
	Type     int32
	Index    int32
	NumSubs  int32
	Addr     seqAddr
	Queue    uint8
	Flags    uint32
	Reserved [64]byte
}

type seqQueueInfo struct {
	Queue    int32
	Owner    int32
	Locked   uint32
	Name     [64]byte
	Flags    uint32
	Reserved [60]byte
}

type seqRealTime struct {
	Sec  uint32
	Nsec uint32
}

type seqQueueStatus struct {
	Queue    int32
	Events   int32
	Tick     uint32
	Time     seqRealTime
	Running  int32
	Flags    int32
	Reserved [64]byte
}

type seqQueueTempo struct {
	Queue    int32
	Tempo    uint32
	PPQ      int32
	SkewVal  uint32
	SkewBase uint32
	Reserved [24]byte
}

type seqClientPool struct {
	Client     int32
	OutputPool int32
	InputPool  int32
	OutputRoom int32
	OutputFree int32
	InputFree  int32
	Reserved   [64]byte
}

type seqRemoveEvents struct {
	Remove   uint32
	Queue    uint8
	Time     [8]byte
	Dest     seqAddr
	Channel  uint8
	Type     int32
	Tag      int8
	Reserved [10]int32
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func setCString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
