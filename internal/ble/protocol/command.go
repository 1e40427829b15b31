package protocol

import (
	"encoding/binary"
	"fmt"
)

// Command is a decoded control-point record.
//
//	byte 0:    opcode
//	bytes 1-2: argument, little-endian (present only for argument opcodes)
type Command struct {
	Opcode Opcode
	Arg    uint16
}

// GetTemperature requests a CURRENT_TEMPERATURE report.
func GetTemperature() Command { return Command{Opcode: OpGetTemperature} }

// GetTempThreshold requests a TEMP_THRESHOLD report.
func GetTempThreshold() Command { return Command{Opcode: OpGetTempThreshold} }

// GetMotorSpeed requests a MOTOR_SPEED report.
func GetMotorSpeed() Command { return Command{Opcode: OpGetMotorSpeed} }

// SetMotorOff stops all motors.
func SetMotorOff() Command { return Command{Opcode: OpSetMotorOff} }

// SetTempThreshold sets the heater threshold in degrees Celsius.
func SetTempThreshold(celsius int16) Command {
	return Command{Opcode: OpSetTempThreshold, Arg: uint16(celsius)}
}

// SetMotorControl starts motor index turning in dir.
func SetMotorControl(index uint8, dir Direction) Command {
	return Command{Opcode: OpSetMotorControl, Arg: uint16(index) | uint16(dir)<<8}
}

// SetMotorSpeed sets the motor duty cycle in percent.
func SetMotorSpeed(duty uint8) Command {
	return Command{Opcode: OpSetMotorSpeed, Arg: uint16(duty)}
}

// SetMusicControl triggers a music transport action.
func SetMusicControl(m MusicCommand) Command {
	return Command{Opcode: OpSetMusicControl, Arg: uint16(m)}
}

// Temperature interprets the argument as a signed temperature.
func (c Command) Temperature() int16 { return int16(c.Arg) }

// MotorControl interprets the argument as motor index (byte 1) and
// direction (byte 2).
func (c Command) MotorControl() (uint8, Direction) {
	return uint8(c.Arg), Direction(c.Arg >> 8)
}

// DutyCycle interprets the argument as a duty cycle percentage.
func (c Command) DutyCycle() uint8 { return uint8(c.Arg) }

// Music interprets the argument as a music transport action.
func (c Command) Music() MusicCommand { return MusicCommand(c.Arg) }

// Len returns the encoded length of c.
func (c Command) Len() int {
	if c.Opcode.HasArgument() {
		return CommandWithArgLen
	}
	return CommandLen
}

// MarshalBinary encodes c as a 1-byte or 3-byte control-point record.
func (c Command) MarshalBinary() ([]byte, error) {
	if !c.Opcode.Valid() {
		return nil, fmt.Errorf("protocol: marshal command: %w: opcode 0x%02x", ErrInvalidParameter, uint8(c.Opcode))
	}
	if !c.Opcode.HasArgument() {
		return []byte{byte(c.Opcode)}, nil
	}
	buf := make([]byte, CommandWithArgLen)
	buf[0] = byte(c.Opcode)
	binary.LittleEndian.PutUint16(buf[1:], c.Arg)
	return buf, nil
}

// UnmarshalCommand decodes a standalone control-point record. The length
// must be exactly 1 or 3 bytes; a 1-byte record carries no argument.
func UnmarshalCommand(data []byte) (Command, error) {
	if len(data) != CommandLen && len(data) != CommandWithArgLen {
		return Command{}, fmt.Errorf("protocol: unmarshal command: %w: %d bytes", ErrInvalidLength, len(data))
	}
	c := Command{Opcode: Opcode(data[0])}
	if !c.Opcode.Valid() {
		return Command{}, fmt.Errorf("protocol: unmarshal command: %w: opcode 0x%02x", ErrInvalidParameter, data[0])
	}
	if len(data) == CommandWithArgLen && c.Opcode.HasArgument() {
		c.Arg = binary.LittleEndian.Uint16(data[1:])
	}
	return c, nil
}

func (c Command) String() string {
	switch c.Opcode {
	case OpSetTempThreshold:
		return fmt.Sprintf("%s(%d)", c.Opcode, c.Temperature())
	case OpSetMotorControl:
		idx, dir := c.MotorControl()
		return fmt.Sprintf("%s(motor=%d, %s)", c.Opcode, idx, dir)
	case OpSetMotorSpeed:
		return fmt.Sprintf("%s(%d%%)", c.Opcode, c.DutyCycle())
	case OpSetMusicControl:
		return fmt.Sprintf("%s(%s)", c.Opcode, c.Music())
	}
	return c.Opcode.String()
}
