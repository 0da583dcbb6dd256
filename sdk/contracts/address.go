package contracts

import "fmt"

// Reserved address byte values defined by the sequencer ABI. They apply to
// the client and port bytes independently.
const (
	AddressUnknown     uint8 = 253
	AddressSubscribers uint8 = 254
	AddressBroadcast   uint8 = 255
)

// SystemClient is the kernel's own client id; its timer and announce ports
// carry queue control and directory-change events.
const (
	SystemClient       uint8 = 0
	SystemTimerPort    uint8 = 0
	SystemAnnouncePort uint8 = 1
)

// Address identifies a port as a (client, port) pair. It is an immutable
// value type; the reserved byte values form the wildcard addresses below.
type Address struct {
	Client uint8
	Port   uint8
}

// Wildcard and well-known addresses. These are recognized literals, never
// resolved against the client directory.
var (
	Unknown        = Address{AddressUnknown, AddressUnknown}
	AllSubscribers = Address{AddressSubscribers, AddressUnknown}
	Broadcast      = Address{AddressBroadcast, AddressBroadcast}
	SystemTimer    = Address{SystemClient, SystemTimerPort}
	SystemAnnounce = Address{SystemClient, SystemAnnouncePort}
)

// String renders the canonical "client:port" form, with symbolic names for
// the wildcard addresses.
func (a Address) String() string {
	switch a {
	case Unknown:
		return "unknown"
	case AllSubscribers:
		return "subscribers"
	case Broadcast:
		return "broadcast"
	}
	return fmt.Sprintf("%d:%d", a.Client, a.Port)
}

// IsWildcard reports whether either byte holds a reserved value.
func (a Address) IsWildcard() bool {
	return a.Client >= AddressUnknown || a.Port >= AddressUnknown
}
