package protocol

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorUUID(t *testing.T) {
	assert.Equal(t, "00000200-37cb-11e3-8682-0002a5d5c51b", ServiceUUID)
	assert.Equal(t, "00000201-37cb-11e3-8682-0002a5d5c51b", ControlPointUUID)
	assert.Equal(t, "00000202-37cb-11e3-8682-0002a5d5c51b", EventUUID)
	assert.Equal(t, "0000ffff-37cb-11e3-8682-0002a5d5c51b", VendorUUID(0xFFFF))
}

func TestOpcodeValid(t *testing.T) {
	for op := Opcode(0); op < 0x10; op++ {
		want := op >= OpGetTemperature && op <= OpSetMusicControl
		assert.Equal(t, want, op.Valid(), "opcode 0x%02x", uint8(op))
	}
}

func TestCommandMarshal(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want []byte
	}{
		{"get temperature", GetTemperature(), []byte{0x01}},
		{"get threshold", GetTempThreshold(), []byte{0x02}},
		{"get motor speed", GetMotorSpeed(), []byte{0x03}},
		{"negative threshold", SetTempThreshold(-30), []byte{0x04, 0xE2, 0xFF}},
		{"positive threshold", SetTempThreshold(300), []byte{0x04, 0x2C, 0x01}},
		{"motor control", SetMotorControl(3, Anticlockwise), []byte{0x05, 0x03, 0x01}},
		{"motor speed", SetMotorSpeed(75), []byte{0x06, 0x4B, 0x00}},
		{"motor off", SetMotorOff(), []byte{0x07}},
		{"music", SetMusicControl(MusicNext), []byte{0x08, 0x03, 0x00}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cmd.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), tt.cmd.Len())
		})
	}
}

func TestCommandMarshalInvalidOpcode(t *testing.T) {
	_, err := Command{Opcode: 0x09}.MarshalBinary()
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}

func TestCommandRoundTrip(t *testing.T) {
	cmds := []Command{
		GetTemperature(),
		GetTempThreshold(),
		GetMotorSpeed(),
		SetTempThreshold(-30),
		SetTempThreshold(-32768),
		SetTempThreshold(32767),
		SetMotorControl(7, Clockwise),
		SetMotorSpeed(100),
		SetMotorOff(),
		SetMusicControl(MusicVolumeDown),
	}
	for _, cmd := range cmds {
		t.Run(cmd.String(), func(t *testing.T) {
			data, err := cmd.MarshalBinary()
			require.NoError(t, err)
			got, err := UnmarshalCommand(data)
			require.NoError(t, err)
			assert.Equal(t, cmd, got)
		})
	}
}

func TestNegativeThresholdWireValue(t *testing.T) {
	got, err := UnmarshalCommand([]byte{0x04, 0xE2, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, uint16(0xFFE2), got.Arg)
	assert.Equal(t, int16(-30), got.Temperature())
}

func TestUnmarshalCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrInvalidLength},
		{"two bytes", []byte{0x04, 0x01}, ErrInvalidLength},
		{"four bytes", []byte{0x04, 0x01, 0x02, 0x03}, ErrInvalidLength},
		{"zero opcode", []byte{0x00}, ErrInvalidParameter},
		{"unknown opcode", []byte{0x09, 0x00, 0x00}, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalCommand(tt.data)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestMotorControlArgument(t *testing.T) {
	idx, dir := SetMotorControl(5, Anticlockwise).MotorControl()
	assert.Equal(t, uint8(5), idx)
	assert.Equal(t, Anticlockwise, dir)
}

func TestMarshalEvent(t *testing.T) {
	got, err := MarshalEvent(EventTempThreshold, Int16Value(-30))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0xE2, 0xFF}, got)

	got, err = MarshalEvent(EventMotorSpeed, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02}, got)

	got, err = MarshalEvent(EventCurrentTemperature, make([]byte, MaxEventValueLen))
	require.NoError(t, err)
	assert.Len(t, got, MaxEventLen)
}

func TestMarshalEventTooLong(t *testing.T) {
	_, err := MarshalEvent(EventCurrentTemperature, make([]byte, MaxEventValueLen+1))
	assert.True(t, errors.Is(err, ErrInvalidLength))
}

func TestUnmarshalEvent(t *testing.T) {
	e, err := UnmarshalEvent([]byte{0x01, 0xE2, 0xFF})
	require.NoError(t, err)
	assert.Equal(t, EventTempThreshold, e.Code)
	assert.Equal(t, uint16(0xFFE2), e.Value)
	assert.Equal(t, int16(-30), e.Int16())
	assert.Equal(t, []byte{0xE2, 0xFF}, e.Payload)

	e, err = UnmarshalEvent([]byte{0x02, 0x32})
	require.NoError(t, err)
	assert.Equal(t, uint16(0x32), e.Value)

	e, err = UnmarshalEvent([]byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, uint16(0), e.Value)
	assert.Empty(t, e.Payload)
}

func TestUnmarshalEventErrors(t *testing.T) {
	_, err := UnmarshalEvent(nil)
	assert.True(t, errors.Is(err, ErrInvalidLength))

	_, err = UnmarshalEvent(make([]byte, MaxEventLen+1))
	assert.True(t, errors.Is(err, ErrInvalidLength))

	_, err = UnmarshalEvent([]byte{0x03, 0x00, 0x00})
	assert.True(t, errors.Is(err, ErrInvalidParameter))
}
