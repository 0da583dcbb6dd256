package contracts

// PortCaps is the capability flag set of a port. Read/write are seen from
// the port's own side: a port the application sends events out of is
// writable, a port it receives events on is readable. The subscribable bits
// gate participation in subscription edges.
type PortCaps uint32

const (
	CapRead      PortCaps = 1 << 0
	CapWrite     PortCaps = 1 << 1
	CapSyncRead  PortCaps = 1 << 2
	CapSyncWrite PortCaps = 1 << 3
	CapDuplex    PortCaps = 1 << 4
	CapSubsRead  PortCaps = 1 << 5
	CapSubsWrite PortCaps = 1 << 6
	CapNoExport  PortCaps = 1 << 7
)

// Common capability presets.
const (
	ReadPort  = CapRead | CapSubsRead
	WritePort = CapWrite | CapSubsWrite
	RWPort    = ReadPort | WritePort
)

// PortType describes what kind of endpoint a port represents.
type PortType uint32

const (
	TypeSpecific     PortType = 1 << 0
	TypeMIDIGeneric  PortType = 1 << 1
	TypeMIDIGM       PortType = 1 << 2
	TypeMIDIGS       PortType = 1 << 3
	TypeMIDIXG       PortType = 1 << 4
	TypeMIDIMT32     PortType = 1 << 5
	TypeMIDIGM2      PortType = 1 << 6
	TypeSynth        PortType = 1 << 10
	TypeDirectSample PortType = 1 << 11
	TypeSample       PortType = 1 << 12
	TypeHardware     PortType = 1 << 16
	TypeSoftware     PortType = 1 << 17
	TypeSynthesizer  PortType = 1 << 18
	TypePort         PortType = 1 << 19
	TypeApplication  PortType = 1 << 20
)

// DefaultPortType is applied when a port is created without explicit types.
const DefaultPortType = TypeMIDIGeneric | TypeSoftware

// PortInfo is the directory entry of a port: a snapshot at query time, not a
// live view.
type PortInfo struct {
	Addr       Address
	Name       string
	ClientName string // filled by directory enumeration, empty otherwise
	Capability PortCaps
	Type       PortType

	MidiChannels int
	MidiVoices   int
	SynthVoices  int

	// Subscriber use counts maintained by the kernel.
	ReadUse  int
	WriteUse int

	// TimestampQueue, when TimestampEnabled, stamps every event passing
	// through the port against that queue.
	TimestampEnabled bool
	TimestampReal    bool
	TimestampQueue   int
}

// Validate reports the first contradiction in the capability set. The
// subscribable bits are refinements of the base read/write capabilities and
// cannot appear without them.
func (c PortCaps) Validate() error {
	if c == 0 {
		return ErrInvalidCapability
	}
	if c&CapSubsRead != 0 && c&CapRead == 0 {
		return ErrInvalidCapability
	}
	if c&CapSubsWrite != 0 && c&CapWrite == 0 {
		return ErrInvalidCapability
	}
	if c&CapDuplex != 0 && (c&CapRead == 0 || c&CapWrite == 0) {
		return ErrInvalidCapability
	}
	return nil
}
