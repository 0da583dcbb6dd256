package contracts

// ClientType distinguishes user-space clients from kernel-resident ones.
type ClientType int

const (
	UserClient   ClientType = 1
	KernelClient ClientType = 2
)

func (t ClientType) String() string {
	switch t {
	case UserClient:
		return "user"
	case KernelClient:
		return "kernel"
	}
	return "unknown"
}

// ClientInfo is the directory entry of a sequencer client. CardID and PID
// are negative when the kernel does not report them.
type ClientInfo struct {
	ClientID        int
	Name            string
	Type            ClientType
	BroadcastFilter bool
	ErrorBounce     bool
	CardID          int
	PID             int
	NumPorts        int
	EventLost       int
}
