package contracts

// EventType is the envelope type tag. Values match the kernel ABI.
type EventType uint8

const (
	EventSystem EventType = 0
	EventResult EventType = 1

	EventNote            EventType = 5
	EventNoteOn          EventType = 6
	EventNoteOff         EventType = 7
	EventKeyPressure     EventType = 8
	EventControlChange   EventType = 10
	EventProgramChange   EventType = 11
	EventChannelPressure EventType = 12
	EventPitchBend       EventType = 13
	EventControl14       EventType = 14
	EventNonRegParam     EventType = 15
	EventRegParam        EventType = 16
	EventSongPosition    EventType = 17
	EventSongSelect      EventType = 18
	EventQFrame          EventType = 19
	EventTimeSignature   EventType = 20
	EventKeySignature    EventType = 21

	EventQueueStart    EventType = 30
	EventQueueContinue EventType = 31
	EventQueueStop     EventType = 32
	EventQueuePosTick  EventType = 33
	EventQueuePosTime  EventType = 34
	EventQueueTempo    EventType = 35
	EventClock         EventType = 36
	EventTick          EventType = 37
	EventQueueSkew     EventType = 38
	EventSyncPosition  EventType = 39

	EventTuneRequest EventType = 40
	EventReset       EventType = 41
	EventSensing     EventType = 42

	EventEcho EventType = 50
	EventOSS  EventType = 51

	EventClientStart      EventType = 60
	EventClientExit       EventType = 61
	EventClientChange     EventType = 62
	EventPortStart        EventType = 63
	EventPortExit         EventType = 64
	EventPortChange       EventType = 65
	EventPortSubscribed   EventType = 66
	EventPortUnsubscribed EventType = 67

	EventUser0 EventType = 90
	EventUser1 EventType = 91
	EventUser2 EventType = 92
	EventUser3 EventType = 93
	EventUser4 EventType = 94
	EventUser5 EventType = 95
	EventUser6 EventType = 96
	EventUser7 EventType = 97
	EventUser8 EventType = 98
	EventUser9 EventType = 99

	EventSysEx    EventType = 130
	EventBounce   EventType = 131
	EventUserVar0 EventType = 135
	EventUserVar1 EventType = 136
	EventUserVar2 EventType = 137
	EventUserVar3 EventType = 138
	EventUserVar4 EventType = 139

	EventNone EventType = 255
)

// EventFlags is the envelope flag byte. The timestamp bit selects between
// the tick and real-time halves of the timestamp union.
type EventFlags uint8

const (
	FlagTimeTick     EventFlags = 0x00
	FlagTimeReal     EventFlags = 0x01
	FlagTimeAbsolute EventFlags = 0x00
	FlagTimeRelative EventFlags = 0x02

	FlagLengthFixed    EventFlags = 0x00
	FlagLengthVariable EventFlags = 0x04
	FlagLengthVarUser  EventFlags = 0x08

	FlagPriorityHigh EventFlags = 0x10
)

// QueueDirect in the queue-id byte marks an event for immediate delivery,
// bypassing any timing queue.
const QueueDirect uint8 = 253

// RealTime is a seconds+nanoseconds wall-offset timestamp.
type RealTime struct {
	Seconds     uint32
	Nanoseconds uint32
}

// Timestamp is the 8-byte timestamp union: a tick count or a real time,
// selected by FlagTimeReal on the event. The unselected member must be zero
// for the value to be representable on the wire.
type Timestamp struct {
	Tick uint32
	Real RealTime
}

// TickTime builds a tick-mode timestamp.
func TickTime(tick uint32) Timestamp { return Timestamp{Tick: tick} }

// WallTime builds a real-mode timestamp.
func WallTime(sec, nsec uint32) Timestamp {
	return Timestamp{Real: RealTime{Seconds: sec, Nanoseconds: nsec}}
}

// EventData is the payload of an event, one concrete variant per payload
// class. Encode and decode sites switch exhaustively over these.
type EventData interface {
	eventData()
}

// NoteData carries note, key-pressure and note-on/off payloads.
type NoteData struct {
	Channel     uint8
	Note        uint8
	Velocity    uint8
	OffVelocity uint8
	Duration    uint32
}

// ControlData carries control-change class payloads (controller, program
// change, pitch bend, song position and friends).
type ControlData struct {
	Channel uint8
	Param   uint32
	Value   int32
}

// QueueControlData carries queue start/stop/continue/tempo/position
// payloads. Value holds the control argument (e.g. tempo in microseconds per
// quarter); Time holds the position for position-set events.
type QueueControlData struct {
	Queue uint8
	Value int32
	Time  Timestamp
}

// AddrData carries client/port announce payloads.
type AddrData struct {
	Addr Address
}

// ConnectData carries subscription announce payloads.
type ConnectData struct {
	Sender Address
	Dest   Address
}

// ResultData carries system/result payloads.
type ResultData struct {
	Event  int32
	Result int32
}

// RawData is the opaque 12-byte payload of echo, OSS and user events.
type RawData struct {
	Bytes [12]byte
}

// ExtData is the variable-length external payload of sysex, bounce and
// user-variable events. On the wire it travels as a length-prefixed tail
// after the fixed envelope.
type ExtData struct {
	Bytes []byte
}

func (NoteData) eventData()         {}
func (ControlData) eventData()      {}
func (QueueControlData) eventData() {}
func (AddrData) eventData()         {}
func (ConnectData) eventData()      {}
func (ResultData) eventData()       {}
func (RawData) eventData()          {}
func (ExtData) eventData()          {}

// Event is the tagged envelope exchanged with the kernel. Events are value
// types: created by the application or decoded from the wire, consumed once.
//
// A zero Queue means direct delivery (it is rewritten to QueueDirect on
// write); events scheduled against a timing queue carry its id and a
// timestamp. A zero Dest is not rewritten; address events explicitly, with
// AllSubscribers for fan-out along subscriptions.
type Event struct {
	Type   EventType
	Flags  EventFlags
	Tag    uint8
	Queue  uint8
	Time   Timestamp
	Source Address
	Dest   Address
	Data   EventData
}
