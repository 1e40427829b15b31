// Package music carries out music transport commands on the peripheral's
// host, either as media key taps through robotgo or as log lines.
package music

import (
	"fmt"

	"github.com/go-vgo/robotgo"
	"github.com/sirupsen/logrus"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

// Player performs a transport command.
type Player interface {
	Do(cmd protocol.MusicCommand) error
}

// New returns the player for driver, "media-keys" or "log".
func New(driver string, log *logrus.Entry) (Player, error) {
	switch driver {
	case "media-keys":
		return NewMediaKeys(), nil
	case "log":
		return NewLogPlayer(log), nil
	}
	return nil, fmt.Errorf("music: unknown driver %q", driver)
}

var mediaKeys = map[protocol.MusicCommand]string{
	protocol.MusicPlayPause:  "audio_play",
	protocol.MusicPrevious:   "audio_prev",
	protocol.MusicNext:       "audio_next",
	protocol.MusicVolumeUp:   "audio_vol_up",
	protocol.MusicVolumeDown: "audio_vol_down",
}

// KeyFor returns the robotgo key name for cmd.
func KeyFor(cmd protocol.MusicCommand) (string, error) {
	key, ok := mediaKeys[cmd]
	if !ok {
		return "", fmt.Errorf("music: %w: command %d", protocol.ErrInvalidParameter, cmd)
	}
	return key, nil
}

// MediaKeys taps the system media keys.
type MediaKeys struct {
	tap func(key string, args ...interface{}) error
}

// NewMediaKeys returns a player backed by robotgo.
func NewMediaKeys() *MediaKeys {
	return &MediaKeys{tap: robotgo.KeyTap}
}

func (m *MediaKeys) Do(cmd protocol.MusicCommand) error {
	key, err := KeyFor(cmd)
	if err != nil {
		return err
	}
	if err := m.tap(key); err != nil {
		return fmt.Errorf("music: key tap %s: %w", key, err)
	}
	return nil
}

// LogPlayer only logs the commands it receives.
type LogPlayer struct {
	log     *logrus.Entry
	History []protocol.MusicCommand
}

// NewLogPlayer returns a player that logs at Info.
func NewLogPlayer(log *logrus.Entry) *LogPlayer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogPlayer{log: log.WithField("component", "music")}
}

func (p *LogPlayer) Do(cmd protocol.MusicCommand) error {
	if _, err := KeyFor(cmd); err != nil {
		return err
	}
	p.History = append(p.History, cmd)
	p.log.WithField("command", cmd).Info("music control")
	return nil
}
