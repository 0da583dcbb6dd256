// Package codec translates events to and from the kernel sequencer's binary
// envelope. The layout is bit-exact against the kernel ABI and uses host
// byte order: the ABI is defined in host order, not a fixed network order.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/leandrodaf/alsaseq/sdk/contracts"
)

// EnvelopeSize is the fixed size of the event envelope in bytes:
// type(1) flags(1) tag(1) queue(1) timestamp(8) source(2) dest(2) payload(12).
const EnvelopeSize = 28

const (
	offType    = 0
	offFlags   = 1
	offTag     = 2
	offQueue   = 3
	offTime    = 4
	offSource  = 12
	offDest    = 14
	offPayload = 16
)

var host = binary.NativeEndian

// payloadClass partitions event types by payload interpretation.
type payloadClass int

const (
	classUnknown payloadClass = iota
	classNone
	classNote
	classControl
	classQueue
	classAddr
	classConnect
	classResult
	classRaw
	classExt
)

func classOf(t contracts.EventType) payloadClass {
	switch t {
	case contracts.EventSystem, contracts.EventResult:
		return classResult
	case contracts.EventNote, contracts.EventNoteOn, contracts.EventNoteOff,
		contracts.EventKeyPressure:
		return classNote
	case contracts.EventControlChange, contracts.EventProgramChange,
		contracts.EventChannelPressure, contracts.EventPitchBend,
		contracts.EventControl14, contracts.EventNonRegParam,
		contracts.EventRegParam, contracts.EventSongPosition,
		contracts.EventSongSelect, contracts.EventQFrame,
		contracts.EventTimeSignature, contracts.EventKeySignature:
		return classControl
	case contracts.EventQueueStart, contracts.EventQueueContinue,
		contracts.EventQueueStop, contracts.EventQueuePosTick,
		contracts.EventQueuePosTime, contracts.EventQueueTempo,
		contracts.EventClock, contracts.EventTick,
		contracts.EventQueueSkew, contracts.EventSyncPosition:
		return classQueue
	case contracts.EventTuneRequest, contracts.EventReset,
		contracts.EventSensing, contracts.EventNone:
		return classNone
	case contracts.EventEcho, contracts.EventOSS,
		contracts.EventUser0, contracts.EventUser1, contracts.EventUser2,
		contracts.EventUser3, contracts.EventUser4, contracts.EventUser5,
		contracts.EventUser6, contracts.EventUser7, contracts.EventUser8,
		contracts.EventUser9:
		return classRaw
	case contracts.EventClientStart, contracts.EventClientExit,
		contracts.EventClientChange, contracts.EventPortStart,
		contracts.EventPortExit, contracts.EventPortChange:
		return classAddr
	case contracts.EventPortSubscribed, contracts.EventPortUnsubscribed:
		return classConnect
	case contracts.EventSysEx, contracts.EventBounce,
		contracts.EventUserVar0, contracts.EventUserVar1,
		contracts.EventUserVar2, contracts.EventUserVar3,
		contracts.EventUserVar4:
		return classExt
	}
	return classUnknown
}

// Encode serializes an event into its wire form: the fixed envelope plus, for
// variable-length events, the external payload as a tail. Supplying external
// data on a type without chaining support fails with ErrPayloadTooLarge.
func Encode(ev contracts.Event) ([]byte, error) {
	class := classOf(ev.Type)
	if class == classUnknown {
		return nil, fmt.Errorf("%w: unknown event type %d", contracts.ErrMalformedEvent, ev.Type)
	}

	if _, isExt := ev.Data.(contracts.ExtData); isExt && class != classExt {
		return nil, fmt.Errorf("%w: type %d does not support chained payloads",
			contracts.ErrPayloadTooLarge, ev.Type)
	}

	flags := ev.Flags
	if class == classExt {
		flags |= contracts.FlagLengthVariable
	}

	buf := make([]byte, EnvelopeSize)
	buf[offType] = byte(ev.Type)
	buf[offFlags] = byte(flags)
	buf[offTag] = ev.Tag
	buf[offQueue] = ev.Queue
	putTimestamp(buf[offTime:offTime+8], flags, ev.Time)
	buf[offSource] = ev.Source.Client
	buf[offSource+1] = ev.Source.Port
	buf[offDest] = ev.Dest.Client
	buf[offDest+1] = ev.Dest.Port

	payload := buf[offPayload : offPayload+12]
	switch class {
	case classNone:
		if ev.Data != nil {
			return nil, fmt.Errorf("%w: type %d carries no payload", contracts.ErrInvalidArgument, ev.Type)
		}

	case classNote:
		data, ok := ev.Data.(contracts.NoteData)
		if !ok {
			return nil, payloadMismatch(ev.Type, ev.Data)
		}
		payload[0] = data.Channel
		payload[1] = data.Note
		payload[2] = data.Velocity
		payload[3] = data.OffVelocity
		host.PutUint32(payload[4:8], data.Duration)

	case classControl:
		data, ok := ev.Data.(contracts.ControlData)
		if !ok {
			return nil, payloadMismatch(ev.Type, ev.Data)
		}
		payload[0] = data.Channel
		host.PutUint32(payload[4:8], data.Param)
		host.PutUint32(payload[8:12], uint32(data.Value))

	case classQueue:
		data, ok := ev.Data.(contracts.QueueControlData)
		if !ok {
			return nil, payloadMismatch(ev.Type, ev.Data)
		}
		payload[0] = data.Queue
		switch ev.Type {
		case contracts.EventQueuePosTick:
			host.PutUint32(payload[4:8], data.Time.Tick)
		case contracts.EventQueuePosTime:
			host.PutUint32(payload[4:8], data.Time.Real.Seconds)
			host.PutUint32(payload[8:12], data.Time.Real.Nanoseconds)
		default:
			host.PutUint32(payload[4:8], uint32(data.Value))
		}

	case classAddr:
		data, ok := ev.Data.(contracts.AddrData)
		if !ok {
			return nil, payloadMismatch(ev.Type, ev.Data)
		}
		payload[0] = data.Addr.Client
		payload[1] = data.Addr.Port

	case classConnect:
		data, ok := ev.Data.(contracts.ConnectData)
		if !ok {
			return nil, payloadMismatch(ev.Type, ev.Data)
		}
		payload[0] = data.Sender.Client
		payload[1] = data.Sender.Port
		payload[2] = data.Dest.Client
		payload[3] = data.Dest.Port

	case classResult:
		data, ok := ev.Data.(contracts.ResultData)
		if !ok {
			return nil, payloadMismatch(ev.Type, ev.Data)
		}
		host.PutUint32(payload[0:4], uint32(data.Event))
		host.PutUint32(payload[4:8], uint32(data.Result))

	case classRaw:
		data, ok := ev.Data.(contracts.RawData)
		if !ok {
			return nil, payloadMismatch(ev.Type, ev.Data)
		}
		copy(payload, data.Bytes[:])

	case classExt:
		data, ok := ev.Data.(contracts.ExtData)
		if !ok {
			return nil, payloadMismatch(ev.Type, ev.Data)
		}
		host.PutUint32(payload[0:4], uint32(len(data.Bytes)))
		buf = append(buf, data.Bytes...)
	}

	return buf, nil
}

// Decode parses one event from buf and returns it with the number of bytes
// consumed. It fails with ErrMalformedEvent on a short buffer, an
// unrecognized type tag or a truncated chained payload.
func Decode(buf []byte) (contracts.Event, int, error) {
	if len(buf) < EnvelopeSize {
		return contracts.Event{}, 0, fmt.Errorf("%w: %d bytes, envelope needs %d",
			contracts.ErrMalformedEvent, len(buf), EnvelopeSize)
	}

	ev := contracts.Event{
		Type:   contracts.EventType(buf[offType]),
		Flags:  contracts.EventFlags(buf[offFlags]),
		Tag:    buf[offTag],
		Queue:  buf[offQueue],
		Source: contracts.Address{Client: buf[offSource], Port: buf[offSource+1]},
		Dest:   contracts.Address{Client: buf[offDest], Port: buf[offDest+1]},
	}
	ev.Time = getTimestamp(buf[offTime:offTime+8], ev.Flags)

	class := classOf(ev.Type)
	if class == classUnknown {
		return contracts.Event{}, 0, fmt.Errorf("%w: unknown event type %d",
			contracts.ErrMalformedEvent, ev.Type)
	}

	payload := buf[offPayload : offPayload+12]
	consumed := EnvelopeSize

	switch class {
	case classNone:
		// no payload

	case classNote:
		ev.Data = contracts.NoteData{
			Channel:     payload[0],
			Note:        payload[1],
			Velocity:    payload[2],
			OffVelocity: payload[3],
			Duration:    host.Uint32(payload[4:8]),
		}

	case classControl:
		ev.Data = contracts.ControlData{
			Channel: payload[0],
			Param:   host.Uint32(payload[4:8]),
			Value:   int32(host.Uint32(payload[8:12])),
		}

	case classQueue:
		data := contracts.QueueControlData{Queue: payload[0]}
		switch ev.Type {
		case contracts.EventQueuePosTick:
			data.Time = contracts.TickTime(host.Uint32(payload[4:8]))
		case contracts.EventQueuePosTime:
			data.Time = contracts.WallTime(host.Uint32(payload[4:8]), host.Uint32(payload[8:12]))
		default:
			data.Value = int32(host.Uint32(payload[4:8]))
		}
		ev.Data = data

	case classAddr:
		ev.Data = contracts.AddrData{
			Addr: contracts.Address{Client: payload[0], Port: payload[1]},
		}

	case classConnect:
		ev.Data = contracts.ConnectData{
			Sender: contracts.Address{Client: payload[0], Port: payload[1]},
			Dest:   contracts.Address{Client: payload[2], Port: payload[3]},
		}

	case classResult:
		ev.Data = contracts.ResultData{
			Event:  int32(host.Uint32(payload[0:4])),
			Result: int32(host.Uint32(payload[4:8])),
		}

	case classRaw:
		var data contracts.RawData
		copy(data.Bytes[:], payload)
		ev.Data = data

	case classExt:
		length := int(host.Uint32(payload[0:4]))
		if len(buf) < EnvelopeSize+length {
			return contracts.Event{}, 0, fmt.Errorf("%w: chained payload truncated (%d of %d bytes)",
				contracts.ErrMalformedEvent, len(buf)-EnvelopeSize, length)
		}
		// A zero length stays a nil slice so decode inverts encode exactly.
		var data contracts.ExtData
		if length > 0 {
			data.Bytes = make([]byte, length)
			copy(data.Bytes, buf[EnvelopeSize:EnvelopeSize+length])
		}
		ev.Data = data
		consumed += length
	}

	return ev, consumed, nil
}

// FrameSize reports how many bytes the first event in buf occupies,
// including any chained tail, or 0 when buf does not yet hold a complete
// event. It never validates content; Decode does.
func FrameSize(buf []byte) int {
	if len(buf) < EnvelopeSize {
		return 0
	}
	total := EnvelopeSize
	if contracts.EventFlags(buf[offFlags])&contracts.FlagLengthVariable != 0 {
		total += int(host.Uint32(buf[offPayload : offPayload+4]))
	}
	if len(buf) < total {
		return 0
	}
	return total
}

func putTimestamp(dst []byte, flags contracts.EventFlags, ts contracts.Timestamp) {
	if flags&contracts.FlagTimeReal != 0 {
		host.PutUint32(dst[0:4], ts.Real.Seconds)
		host.PutUint32(dst[4:8], ts.Real.Nanoseconds)
		return
	}
	host.PutUint32(dst[0:4], ts.Tick)
	host.PutUint32(dst[4:8], 0)
}

func getTimestamp(src []byte, flags contracts.EventFlags) contracts.Timestamp {
	if flags&contracts.FlagTimeReal != 0 {
		return contracts.WallTime(host.Uint32(src[0:4]), host.Uint32(src[4:8]))
	}
	return contracts.TickTime(host.Uint32(src[0:4]))
}

func payloadMismatch(t contracts.EventType, data contracts.EventData) error {
	return fmt.Errorf("%w: payload %T does not match event type %d",
		contracts.ErrInvalidArgument, data, t)
}
