package central

import (
	"fmt"

	"github.com/chaz8081/marsh/internal/ble/protocol"
	"github.com/chaz8081/marsh/internal/config"
	"github.com/chaz8081/marsh/internal/display"
)

// Screen is one page of the central's display.
type Screen int

const (
	ScreenTemperature Screen = iota
	ScreenThreshold
	ScreenMotorSpeed
	ScreenMotorControl
	ScreenMusic
	screenCount
)

func (s Screen) String() string {
	switch s {
	case ScreenTemperature:
		return "Temperature"
	case ScreenThreshold:
		return "Threshold"
	case ScreenMotorSpeed:
		return "Motor speed"
	case ScreenMotorControl:
		return "Motor control"
	case ScreenMusic:
		return "Music"
	}
	return fmt.Sprintf("screen(%d)", int(s))
}

// Mode is the UI edit state.
type Mode int

const (
	Viewing Mode = iota
	EditingThreshold
	EditingMotorSpeed
	EditingMotorControl
)

func (m Mode) String() string {
	switch m {
	case Viewing:
		return "viewing"
	case EditingThreshold:
		return "editing-threshold"
	case EditingMotorSpeed:
		return "editing-motor-speed"
	case EditingMotorControl:
		return "editing-motor-control"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

const (
	thresholdStep = 1
	dutyStep      = 10
	maxDuty       = 100
)

// UI is the central's screen and edit-mode state machine. Button presses
// go in, commands to send come out; it never talks to the link itself.
type UI struct {
	motorCount int

	screen Screen
	mode   Mode
	status string

	// Values last reported by the peripheral or confirmed by a sent SET.
	temperature     int16
	haveTemperature bool
	threshold       int16
	haveThreshold   bool
	duty            uint8
	haveDuty        bool
	motorIndex      uint8
	motorDir        protocol.Direction

	draftThreshold int16
	draftDuty      uint8
	draftIndex     uint8
	draftDir       protocol.Direction
}

// NewUI returns a UI on the temperature screen.
func NewUI(motorCount int) *UI {
	if motorCount < 1 {
		motorCount = 1
	}
	return &UI{motorCount: motorCount, status: "disconnected"}
}

// Screen returns the current page.
func (u *UI) Screen() Screen { return u.screen }

// Mode returns the edit state.
func (u *UI) Mode() Mode { return u.mode }

// SetStatus replaces the status line.
func (u *UI) SetStatus(s string) { u.status = s }

// Press applies a button action. When the action calls for a command the
// command is returned with ok set; the caller sends it and reports the
// outcome with Sent.
func (u *UI) Press(action string) (cmd protocol.Command, ok bool) {
	if u.mode != Viewing {
		return u.pressEditing(action)
	}

	switch action {
	case config.ActionNavigate:
		u.screen = (u.screen + 1) % screenCount
	case config.ActionQuery:
		return u.query(), true
	case config.ActionConfirm:
		return u.confirmViewing()
	case config.ActionUp:
		if u.screen == ScreenMusic {
			return protocol.SetMusicControl(protocol.MusicVolumeUp), true
		}
	case config.ActionDown:
		if u.screen == ScreenMusic {
			return protocol.SetMusicControl(protocol.MusicVolumeDown), true
		}
	}
	return protocol.Command{}, false
}

func (u *UI) query() protocol.Command {
	switch u.screen {
	case ScreenThreshold:
		return protocol.GetTempThreshold()
	case ScreenMotorSpeed:
		return protocol.GetMotorSpeed()
	case ScreenMotorControl:
		return protocol.SetMotorOff()
	case ScreenMusic:
		return protocol.SetMusicControl(protocol.MusicNext)
	}
	return protocol.GetTemperature()
}

func (u *UI) confirmViewing() (protocol.Command, bool) {
	switch u.screen {
	case ScreenThreshold:
		u.mode = EditingThreshold
		u.draftThreshold = u.threshold
	case ScreenMotorSpeed:
		u.mode = EditingMotorSpeed
		u.draftDuty = maxDuty
		if u.haveDuty {
			u.draftDuty = u.duty
		}
	case ScreenMotorControl:
		u.mode = EditingMotorControl
		u.draftIndex = u.motorIndex
		u.draftDir = u.motorDir
	case ScreenMusic:
		return protocol.SetMusicControl(protocol.MusicPlayPause), true
	case ScreenTemperature:
		return protocol.GetTemperature(), true
	}
	return protocol.Command{}, false
}

func (u *UI) pressEditing(action string) (protocol.Command, bool) {
	switch action {
	case config.ActionUp:
		u.adjust(+1)
	case config.ActionDown:
		u.adjust(-1)
	case config.ActionQuery:
		u.mode = Viewing
	case config.ActionConfirm:
		cmd := u.commit()
		u.mode = Viewing
		return cmd, true
	}
	// navigate is ignored while editing
	return protocol.Command{}, false
}

func (u *UI) adjust(sign int) {
	switch u.mode {
	case EditingThreshold:
		v := int(u.draftThreshold) + sign*thresholdStep
		u.draftThreshold = int16(clamp(v, config.MinTemperature, config.MaxTemperature))
	case EditingMotorSpeed:
		v := int(u.draftDuty) + sign*dutyStep
		u.draftDuty = uint8(clamp(v, 0, maxDuty))
	case EditingMotorControl:
		if sign > 0 {
			u.draftIndex = uint8((int(u.draftIndex) + 1) % u.motorCount)
		} else if u.draftDir == protocol.Clockwise {
			u.draftDir = protocol.Anticlockwise
		} else {
			u.draftDir = protocol.Clockwise
		}
	}
}

func (u *UI) commit() protocol.Command {
	switch u.mode {
	case EditingThreshold:
		return protocol.SetTempThreshold(u.draftThreshold)
	case EditingMotorSpeed:
		return protocol.SetMotorSpeed(u.draftDuty)
	}
	return protocol.SetMotorControl(u.draftIndex, u.draftDir)
}

// Sent records the outcome of sending cmd. A successful SET becomes the
// displayed value; a failure only changes the status line.
func (u *UI) Sent(cmd protocol.Command, err error) {
	if err != nil {
		u.status = "send failed: " + err.Error()
		return
	}
	switch cmd.Opcode {
	case protocol.OpSetTempThreshold:
		u.threshold = cmd.Temperature()
		u.haveThreshold = true
	case protocol.OpSetMotorSpeed:
		u.duty = cmd.DutyCycle()
		u.haveDuty = true
	case protocol.OpSetMotorControl:
		u.motorIndex, u.motorDir = cmd.MotorControl()
	}
}

// Apply records a value reported by the peripheral.
func (u *UI) Apply(e protocol.Event) {
	switch e.Code {
	case protocol.EventCurrentTemperature:
		u.temperature = e.Int16()
		u.haveTemperature = true
	case protocol.EventTempThreshold:
		u.threshold = e.Int16()
		u.haveThreshold = true
	case protocol.EventMotorSpeed:
		u.duty = uint8(e.Value)
		u.haveDuty = true
	}
}

// Render returns the current frame.
func (u *UI) Render() display.Screen {
	s := display.Screen{
		Title:   u.screen.String(),
		Status:  u.status,
		Editing: u.mode != Viewing,
	}
	switch u.screen {
	case ScreenTemperature:
		s.Lines = []string{celsius(u.temperature, u.haveTemperature)}
	case ScreenThreshold:
		if u.mode == EditingThreshold {
			s.Lines = []string{"> " + celsius(u.draftThreshold, true) + " <"}
		} else {
			s.Lines = []string{celsius(u.threshold, u.haveThreshold)}
		}
	case ScreenMotorSpeed:
		switch {
		case u.mode == EditingMotorSpeed:
			s.Lines = []string{fmt.Sprintf("> %d %% <", u.draftDuty)}
		case u.haveDuty:
			s.Lines = []string{fmt.Sprintf("%d %%", u.duty)}
		default:
			s.Lines = []string{"-- %"}
		}
	case ScreenMotorControl:
		if u.mode == EditingMotorControl {
			s.Lines = []string{fmt.Sprintf("> motor %d %s <", u.draftIndex, u.draftDir)}
		} else {
			s.Lines = []string{fmt.Sprintf("motor %d %s", u.motorIndex, u.motorDir)}
		}
	case ScreenMusic:
		s.Lines = []string{"confirm: play/pause", "up/down: volume", "query: next"}
	}
	return s
}

func celsius(v int16, known bool) string {
	if !known {
		return "-- C"
	}
	return fmt.Sprintf("%d C", v)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
