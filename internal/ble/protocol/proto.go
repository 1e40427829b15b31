// Package protocol implements the wire contract of the Marsh Host Service
// (MHS): the control-point command record written by the central and the
// event record notified by the peripheral.
package protocol

import "fmt"

// Base is the 128-bit vendor UUID base in little-endian (LSB first) order.
// The 16-bit MHS aliases occupy octets 12 and 13.
var Base = [16]byte{
	0x1B, 0xC5, 0xD5, 0xA5, 0x02, 0x00, 0x82, 0x86,
	0xE3, 0x11, 0xCB, 0x37, 0x00, 0x00, 0x00, 0x00,
}

// 16-bit aliases of the MHS attributes on top of Base.
const (
	ServiceAlias      uint16 = 0x0200
	ControlPointAlias uint16 = 0x0201
	EventAlias        uint16 = 0x0202
)

// MHS UUIDs in canonical string form.
var (
	ServiceUUID      = VendorUUID(ServiceAlias)
	ControlPointUUID = VendorUUID(ControlPointAlias)
	EventUUID        = VendorUUID(EventAlias)
)

// Record sizes.
const (
	CommandLen        = 1  // opcode only
	CommandWithArgLen = 3  // opcode + little-endian u16 argument
	MaxEventLen       = 20 // event code + payload
	MaxEventValueLen  = MaxEventLen - 1
	CCCDLen           = 2
)

// CCCD values.
const (
	CCCDNotificationsDisabled uint16 = 0x0000
	CCCDNotificationsEnabled  uint16 = 0x0001
)

// VendorUUID returns the canonical string form of Base with alias placed
// at octets 12-13.
func VendorUUID(alias uint16) string {
	le := Base
	le[12] = byte(alias)
	le[13] = byte(alias >> 8)

	var be [16]byte
	for i := range le {
		be[i] = le[15-i]
	}
	return fmt.Sprintf("%x-%x-%x-%x-%x", be[0:4], be[4:6], be[6:8], be[8:10], be[10:16])
}

// Opcode identifies a command written to the control-point characteristic.
type Opcode uint8

const (
	OpGetTemperature   Opcode = 0x01
	OpGetTempThreshold Opcode = 0x02
	OpGetMotorSpeed    Opcode = 0x03
	OpSetTempThreshold Opcode = 0x04
	OpSetMotorControl  Opcode = 0x05
	OpSetMotorSpeed    Opcode = 0x06
	OpSetMotorOff      Opcode = 0x07
	OpSetMusicControl  Opcode = 0x08
)

var opcodeNames = map[Opcode]string{
	OpGetTemperature:   "GET_TEMPERATURE",
	OpGetTempThreshold: "GET_TEMP_THRESHOLD",
	OpGetMotorSpeed:    "GET_MOTOR_SPEED",
	OpSetTempThreshold: "SET_TEMP_THRESHOLD",
	OpSetMotorControl:  "SET_MOTOR_CONTROL",
	OpSetMotorSpeed:    "SET_MOTOR_SPEED",
	OpSetMotorOff:      "SET_MOTOR_OFF",
	OpSetMusicControl:  "SET_MUSIC_CONTROL",
}

// Valid reports whether o is one of the defined opcodes.
func (o Opcode) Valid() bool {
	_, ok := opcodeNames[o]
	return ok
}

// HasArgument reports whether o carries a 2-byte argument.
func (o Opcode) HasArgument() bool {
	switch o {
	case OpSetTempThreshold, OpSetMotorControl, OpSetMotorSpeed, OpSetMusicControl:
		return true
	}
	return false
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("OPCODE(0x%02x)", uint8(o))
}

// EventCode identifies a report notified on the event characteristic.
type EventCode uint8

const (
	EventCurrentTemperature EventCode = 0
	EventTempThreshold      EventCode = 1
	EventMotorSpeed         EventCode = 2
)

// Valid reports whether c is one of the defined event codes.
func (c EventCode) Valid() bool {
	return c <= EventMotorSpeed
}

func (c EventCode) String() string {
	switch c {
	case EventCurrentTemperature:
		return "CURRENT_TEMPERATURE"
	case EventTempThreshold:
		return "TEMP_THRESHOLD"
	case EventMotorSpeed:
		return "MOTOR_SPEED"
	}
	return fmt.Sprintf("EVENT(0x%02x)", uint8(c))
}

// Direction is the rotation direction of a motor.
type Direction uint8

const (
	Clockwise     Direction = 0
	Anticlockwise Direction = 1
)

func (d Direction) String() string {
	if d == Clockwise {
		return "cw"
	}
	return "ccw"
}

// MusicCommand is a music transport action.
type MusicCommand uint8

const (
	MusicPlayPause  MusicCommand = 0x01
	MusicPrevious   MusicCommand = 0x02
	MusicNext       MusicCommand = 0x03
	MusicVolumeUp   MusicCommand = 0x04
	MusicVolumeDown MusicCommand = 0x05
)

// Valid reports whether m is a known transport action.
func (m MusicCommand) Valid() bool {
	return m >= MusicPlayPause && m <= MusicVolumeDown
}

func (m MusicCommand) String() string {
	switch m {
	case MusicPlayPause:
		return "play/pause"
	case MusicPrevious:
		return "previous"
	case MusicNext:
		return "next"
	case MusicVolumeUp:
		return "volume+"
	case MusicVolumeDown:
		return "volume-"
	}
	return fmt.Sprintf("music(0x%02x)", uint8(m))
}
