package protocol

import (
	"encoding/binary"
	"fmt"
)

// Event is a decoded event-characteristic notification.
//
//	byte 0:     event code
//	bytes 1-19: value
type Event struct {
	Code EventCode
	// Value is bytes 1-2 read as a little-endian u16; missing bytes read as zero.
	Value uint16
	// Payload is the raw value, bytes 1..n.
	Payload []byte
}

// Int16 interprets Value as a signed quantity (temperatures).
func (e Event) Int16() int16 { return int16(e.Value) }

// MarshalEvent encodes an event record. The value may be empty, in which
// case only the event code is sent.
func MarshalEvent(code EventCode, value []byte) ([]byte, error) {
	if len(value) > MaxEventValueLen {
		return nil, fmt.Errorf("protocol: marshal event: %w: value is %d bytes, max %d", ErrInvalidLength, len(value), MaxEventValueLen)
	}
	buf := make([]byte, 0, 1+len(value))
	buf = append(buf, byte(code))
	buf = append(buf, value...)
	return buf, nil
}

// Uint16Value encodes v as the 2-byte little-endian event value used by
// the temperature, threshold, and motor speed reports.
func Uint16Value(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

// Int16Value encodes a signed value the same way.
func Int16Value(v int16) []byte {
	return Uint16Value(uint16(v))
}

// UnmarshalEvent decodes an event record.
func UnmarshalEvent(data []byte) (Event, error) {
	if len(data) == 0 || len(data) > MaxEventLen {
		return Event{}, fmt.Errorf("protocol: unmarshal event: %w: %d bytes", ErrInvalidLength, len(data))
	}
	e := Event{Code: EventCode(data[0])}
	if !e.Code.Valid() {
		return Event{}, fmt.Errorf("protocol: unmarshal event: %w: event code 0x%02x", ErrInvalidParameter, data[0])
	}
	e.Payload = make([]byte, len(data)-1)
	copy(e.Payload, data[1:])

	var v [2]byte
	copy(v[:], e.Payload)
	e.Value = binary.LittleEndian.Uint16(v[:])
	return e, nil
}
