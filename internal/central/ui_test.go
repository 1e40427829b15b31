package central

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/marsh/internal/ble/protocol"
	"github.com/chaz8081/marsh/internal/config"
)

func press(t *testing.T, u *UI, actions ...string) []protocol.Command {
	t.Helper()
	var out []protocol.Command
	for _, a := range actions {
		if cmd, ok := u.Press(a); ok {
			out = append(out, cmd)
			u.Sent(cmd, nil)
		}
	}
	return out
}

func goTo(t *testing.T, u *UI, s Screen) {
	t.Helper()
	for i := 0; u.Screen() != s; i++ {
		require.Less(t, i, int(screenCount), "screen %s unreachable", s)
		press(t, u, config.ActionNavigate)
	}
}

func TestNavigateCycles(t *testing.T) {
	u := NewUI(8)
	want := []Screen{ScreenThreshold, ScreenMotorSpeed, ScreenMotorControl, ScreenMusic, ScreenTemperature}
	for _, s := range want {
		press(t, u, config.ActionNavigate)
		assert.Equal(t, s, u.Screen())
	}
}

func TestQueryPerScreen(t *testing.T) {
	tests := []struct {
		screen Screen
		want   protocol.Command
	}{
		{ScreenTemperature, protocol.GetTemperature()},
		{ScreenThreshold, protocol.GetTempThreshold()},
		{ScreenMotorSpeed, protocol.GetMotorSpeed()},
		{ScreenMotorControl, protocol.SetMotorOff()},
		{ScreenMusic, protocol.SetMusicControl(protocol.MusicNext)},
	}
	for _, tt := range tests {
		t.Run(tt.screen.String(), func(t *testing.T) {
			u := NewUI(8)
			goTo(t, u, tt.screen)
			assert.Equal(t, []protocol.Command{tt.want}, press(t, u, config.ActionQuery))
			assert.Equal(t, Viewing, u.Mode())
		})
	}
}

func TestEditThreshold(t *testing.T) {
	u := NewUI(8)
	u.Apply(protocol.Event{Code: protocol.EventTempThreshold, Value: uint16(0xFFE5)}) // -27
	goTo(t, u, ScreenThreshold)

	assert.Empty(t, press(t, u, config.ActionConfirm))
	assert.Equal(t, EditingThreshold, u.Mode())
	assert.True(t, u.Render().Editing)

	assert.Empty(t, press(t, u, config.ActionDown, config.ActionDown, config.ActionDown, config.ActionDown))
	// navigate is ignored while editing
	press(t, u, config.ActionNavigate)
	assert.Equal(t, ScreenThreshold, u.Screen())

	cmds := press(t, u, config.ActionConfirm)
	require.Len(t, cmds, 1)
	assert.Equal(t, protocol.SetTempThreshold(config.MinTemperature), cmds[0])
	assert.Equal(t, Viewing, u.Mode())
	assert.Equal(t, []string{"-30 C"}, u.Render().Lines)
}

func TestEditThresholdUpperBound(t *testing.T) {
	u := NewUI(8)
	u.Apply(protocol.Event{Code: protocol.EventTempThreshold, Value: 99})
	goTo(t, u, ScreenThreshold)

	cmds := press(t, u, config.ActionConfirm, config.ActionUp, config.ActionUp, config.ActionUp, config.ActionConfirm)
	assert.Equal(t, []protocol.Command{protocol.SetTempThreshold(config.MaxTemperature)}, cmds)
}

func TestEditMotorSpeed(t *testing.T) {
	u := NewUI(8)
	goTo(t, u, ScreenMotorSpeed)
	assert.Equal(t, []string{"-- %"}, u.Render().Lines)

	// Unknown duty starts the draft at full speed.
	press(t, u, config.ActionConfirm)
	assert.Equal(t, []string{"> 100 % <"}, u.Render().Lines)
	press(t, u, config.ActionUp)
	assert.Equal(t, []string{"> 100 % <"}, u.Render().Lines)

	cmds := press(t, u, config.ActionDown, config.ActionDown, config.ActionDown, config.ActionConfirm)
	assert.Equal(t, []protocol.Command{protocol.SetMotorSpeed(70)}, cmds)
	assert.Equal(t, []string{"70 %"}, u.Render().Lines)

	cmds = press(t, u, config.ActionConfirm)
	assert.Empty(t, cmds)
	for range 10 {
		press(t, u, config.ActionDown)
	}
	assert.Equal(t, []protocol.Command{protocol.SetMotorSpeed(0)}, press(t, u, config.ActionConfirm))
}

func TestEditMotorControl(t *testing.T) {
	u := NewUI(3)
	goTo(t, u, ScreenMotorControl)

	cmds := press(t, u, config.ActionConfirm, config.ActionUp, config.ActionUp, config.ActionDown, config.ActionConfirm)
	assert.Equal(t, []protocol.Command{protocol.SetMotorControl(2, protocol.Anticlockwise)}, cmds)
	assert.Equal(t, []string{"motor 2 ccw"}, u.Render().Lines)

	// Index wraps at the motor count.
	cmds = press(t, u, config.ActionConfirm, config.ActionUp, config.ActionDown, config.ActionConfirm)
	assert.Equal(t, []protocol.Command{protocol.SetMotorControl(0, protocol.Clockwise)}, cmds)
}

func TestQueryCancelsEdit(t *testing.T) {
	u := NewUI(8)
	u.Apply(protocol.Event{Code: protocol.EventTempThreshold, Value: 20})
	goTo(t, u, ScreenThreshold)

	cmds := press(t, u, config.ActionConfirm, config.ActionUp, config.ActionQuery)
	assert.Empty(t, cmds)
	assert.Equal(t, Viewing, u.Mode())
	assert.Equal(t, []string{"20 C"}, u.Render().Lines)
}

func TestMusicScreen(t *testing.T) {
	u := NewUI(8)
	goTo(t, u, ScreenMusic)

	cmds := press(t, u, config.ActionConfirm, config.ActionUp, config.ActionDown, config.ActionQuery)
	assert.Equal(t, []protocol.Command{
		protocol.SetMusicControl(protocol.MusicPlayPause),
		protocol.SetMusicControl(protocol.MusicVolumeUp),
		protocol.SetMusicControl(protocol.MusicVolumeDown),
		protocol.SetMusicControl(protocol.MusicNext),
	}, cmds)
	assert.Equal(t, Viewing, u.Mode())
}

func TestUpDownIgnoredOnValueScreens(t *testing.T) {
	u := NewUI(8)
	assert.Empty(t, press(t, u, config.ActionUp, config.ActionDown))
	assert.Equal(t, ScreenTemperature, u.Screen())
}

func TestApplyAndRender(t *testing.T) {
	u := NewUI(8)
	u.SetStatus("connected")
	assert.Equal(t, []string{"-- C"}, u.Render().Lines)

	u.Apply(protocol.Event{Code: protocol.EventCurrentTemperature, Value: 0xFFF6}) // -10
	s := u.Render()
	assert.Equal(t, "Temperature", s.Title)
	assert.Equal(t, []string{"-10 C"}, s.Lines)
	assert.Equal(t, "connected", s.Status)
	assert.False(t, s.Editing)
}

func TestSendFailureKeepsValue(t *testing.T) {
	u := NewUI(8)
	u.Apply(protocol.Event{Code: protocol.EventTempThreshold, Value: 15})

	u.Sent(protocol.SetTempThreshold(40), errors.New("queue full"))
	goTo(t, u, ScreenThreshold)
	s := u.Render()
	assert.Equal(t, []string{"15 C"}, s.Lines)
	assert.Equal(t, "send failed: queue full", s.Status)
}
