package central

import (
	"context"
	"errors"
	"go/parser"
	"go/token"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/marsh/internal/actuator"
	"github.com/chaz8081/marsh/internal/ble"
	"github.com/chaz8081/marsh/internal/ble/protocol"
	"github.com/chaz8081/marsh/internal/config"
	"github.com/chaz8081/marsh/internal/display"
	"github.com/chaz8081/marsh/internal/music"
	"github.com/chaz8081/marsh/internal/peripheral"
	"github.com/chaz8081/marsh/internal/sensor"
)

type failingDisplay struct{}

func (failingDisplay) Show(display.Screen) error { return errors.New("screen unplugged") }

type system struct {
	link    *ble.Loopback
	central *Controller
	periph  *peripheral.Controller
	disp    *display.LogDisplay
	sensor  *sensor.Fixed
	motor   *actuator.Motor
	music   *music.LogPlayer
}

func newSystem(t *testing.T) *system {
	t.Helper()
	s := &system{
		link:   ble.NewLoopback(),
		disp:   display.NewLogDisplay(nil),
		sensor: sensor.NewFixed(21),
		music:  music.NewLogPlayer(nil),
	}
	heater := actuator.NewHeater(actuator.NewLogPin("heat", nil), actuator.NewLogPin("fan", nil), time.Hour, nil)
	enable := []actuator.Pin{actuator.NewLogPin("en0", nil), actuator.NewLogPin("en1", nil)}
	s.motor = actuator.NewMotor(enable, actuator.NewLogPin("in1", nil), actuator.NewLogPin("in2", nil), time.Millisecond, nil)
	t.Cleanup(func() {
		_ = s.motor.Off()
		_ = heater.Off()
	})

	var err error
	s.periph, err = peripheral.New(s.link.Peripheral(), s.link.PeripheralEvents(), peripheral.Devices{
		Sensor: s.sensor,
		Heater: heater,
		Motor:  s.motor,
		Music:  s.music,
	}, peripheral.Options{SampleInterval: time.Hour, Threshold: 18}, nil)
	require.NoError(t, err)
	require.NoError(t, s.periph.Tick())

	s.central, err = New(s.link.Central(), s.link.CentralEvents(), nil, s.disp, Options{MotorCount: 2}, nil)
	require.NoError(t, err)
	return s
}

func (s *system) pump(t *testing.T) {
	t.Helper()
	for {
		select {
		case evt := <-s.link.PeripheralEvents():
			require.NoError(t, s.periph.HandleStackEvent(evt))
		case evt := <-s.link.CentralEvents():
			require.NoError(t, s.central.HandleStackEvent(evt))
		default:
			return
		}
	}
}

func (s *system) press(t *testing.T, actions ...string) {
	t.Helper()
	for _, a := range actions {
		require.NoError(t, s.central.Press(Press{Action: a}))
		s.pump(t)
	}
}

func TestNewRequiresDisplay(t *testing.T) {
	_, err := New(ble.NewLoopback().Central(), nil, nil, nil, Options{}, nil)
	assert.ErrorIs(t, err, protocol.ErrNullArgument)
}

func TestConnectQueriesEverything(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.link.Connect())
	s.pump(t)

	assert.Equal(t, "connected", s.disp.Last.Status)
	assert.Equal(t, []string{"21 C"}, s.disp.Last.Lines)

	s.press(t, config.ActionNavigate)
	assert.Equal(t, []string{"18 C"}, s.disp.Last.Lines)
	s.press(t, config.ActionNavigate)
	assert.Equal(t, []string{"100 %"}, s.disp.Last.Lines)
}

func TestEditThresholdOverLink(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.link.Connect())
	s.pump(t)

	s.press(t, config.ActionNavigate, config.ActionConfirm)
	assert.True(t, s.disp.Last.Editing)
	s.press(t, config.ActionUp, config.ActionUp, config.ActionConfirm)
	assert.Equal(t, int16(20), s.periph.Threshold())

	// Re-query confirms the peripheral's value.
	s.press(t, config.ActionQuery)
	assert.Equal(t, []string{"20 C"}, s.disp.Last.Lines)
	assert.False(t, s.disp.Last.Editing)
}

func TestMotorAndMusicOverLink(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.link.Connect())
	s.pump(t)

	s.press(t, config.ActionNavigate, config.ActionNavigate, config.ActionNavigate)
	require.Equal(t, ScreenMotorControl, s.central.UI().Screen())
	s.press(t, config.ActionConfirm, config.ActionUp, config.ActionDown, config.ActionConfirm)

	running, idx, dir := s.motor.Running()
	assert.True(t, running)
	assert.Equal(t, 1, idx)
	assert.Equal(t, protocol.Anticlockwise, dir)

	s.press(t, config.ActionQuery)
	running, _, _ = s.motor.Running()
	assert.False(t, running)

	s.press(t, config.ActionNavigate, config.ActionConfirm, config.ActionUp)
	assert.Equal(t, []protocol.MusicCommand{protocol.MusicPlayPause, protocol.MusicVolumeUp}, s.music.History)
}

func TestPressBeforeDiscoveryFails(t *testing.T) {
	s := newSystem(t)

	err := s.central.Press(Press{Action: config.ActionQuery})
	assert.ErrorIs(t, err, protocol.ErrNullArgument)
	assert.Contains(t, s.disp.Last.Status, "send failed")
}

func TestDisconnectUpdatesStatus(t *testing.T) {
	s := newSystem(t)
	require.NoError(t, s.link.Connect())
	s.pump(t)
	require.True(t, s.central.Client().Ready())

	s.link.Disconnect()
	s.pump(t)
	assert.Equal(t, "disconnected", s.disp.Last.Status)
	assert.False(t, s.central.Client().Ready())
}

func TestRunConsumesPresses(t *testing.T) {
	link := ble.NewLoopback()
	disp := display.NewLogDisplay(nil)
	presses := make(chan Press, 2)
	presses <- Press{Button: 1, Action: config.ActionNavigate}
	close(presses)

	c, err := New(link.Central(), link.CentralEvents(), presses, disp, Options{MotorCount: 1}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)
	assert.Equal(t, ScreenThreshold, c.UI().Screen())
}

func TestRunStrictStopsOnDisplayError(t *testing.T) {
	link := ble.NewLoopback()
	c, err := New(link.Central(), link.CentralEvents(), nil, failingDisplay{}, Options{Strict: true}, nil)
	require.NoError(t, err)

	err = c.Run(context.Background())
	assert.ErrorContains(t, err, "screen unplugged")
}

func TestRunLenientKeepsGoing(t *testing.T) {
	link := ble.NewLoopback()
	presses := make(chan Press, 1)
	presses <- Press{Action: config.ActionQuery}
	c, err := New(link.Central(), link.CentralEvents(), presses, display.NewLogDisplay(nil), Options{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)
}

func TestCentralDoesNotLinkKeyboardHook(t *testing.T) {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, ".", func(fi fs.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go")
	}, parser.ImportsOnly)
	require.NoError(t, err)
	require.Contains(t, pkgs, "central")

	for name, f := range pkgs["central"].Files {
		for _, imp := range f.Imports {
			assert.NotContains(t, imp.Path.Value, "internal/buttons", name)
		}
	}
}
