package contracts

// Subscription is a directed edge allowing events to flow from Sender to
// Dest. Edges are keyed by (Sender, Dest, Queue): two edges differing only
// in queue id are distinct. An exclusive edge forbids any other edge
// touching either endpoint.
type Subscription struct {
	Sender Address
	Dest   Address

	// Queue, when non-zero, timestamps forwarded events against that
	// queue's clock.
	Queue uint8

	Exclusive  bool
	TimeUpdate bool
	TimeReal   bool
}

// SameEdge reports whether two subscriptions address the same edge key.
func (s Subscription) SameEdge(o Subscription) bool {
	return s.Sender == o.Sender && s.Dest == o.Dest && s.Queue == o.Queue
}

// Touches reports whether the edge has addr as either endpoint.
func (s Subscription) Touches(addr Address) bool {
	return s.Sender == addr || s.Dest == addr
}
