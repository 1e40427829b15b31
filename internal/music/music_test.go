package music

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/marsh/internal/ble/protocol"
)

func TestKeyFor(t *testing.T) {
	tests := []struct {
		cmd  protocol.MusicCommand
		want string
	}{
		{protocol.MusicPlayPause, "audio_play"},
		{protocol.MusicPrevious, "audio_prev"},
		{protocol.MusicNext, "audio_next"},
		{protocol.MusicVolumeUp, "audio_vol_up"},
		{protocol.MusicVolumeDown, "audio_vol_down"},
	}
	for _, tt := range tests {
		got, err := KeyFor(tt.cmd)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := KeyFor(protocol.MusicCommand(0))
	assert.ErrorIs(t, err, protocol.ErrInvalidParameter)
	_, err = KeyFor(protocol.MusicCommand(6))
	assert.ErrorIs(t, err, protocol.ErrInvalidParameter)
}

func TestMediaKeysTaps(t *testing.T) {
	var tapped []string
	m := &MediaKeys{tap: func(key string, _ ...interface{}) error {
		tapped = append(tapped, key)
		return nil
	}}

	require.NoError(t, m.Do(protocol.MusicNext))
	require.NoError(t, m.Do(protocol.MusicVolumeDown))
	assert.Equal(t, []string{"audio_next", "audio_vol_down"}, tapped)

	assert.ErrorIs(t, m.Do(protocol.MusicCommand(9)), protocol.ErrInvalidParameter)
	assert.Len(t, tapped, 2)
}

func TestMediaKeysTapError(t *testing.T) {
	m := &MediaKeys{tap: func(string, ...interface{}) error { return errors.New("no display") }}
	err := m.Do(protocol.MusicPlayPause)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audio_play")
}

func TestLogPlayer(t *testing.T) {
	p := NewLogPlayer(nil)
	require.NoError(t, p.Do(protocol.MusicPlayPause))
	assert.ErrorIs(t, p.Do(protocol.MusicCommand(0)), protocol.ErrInvalidParameter)
	assert.Equal(t, []protocol.MusicCommand{protocol.MusicPlayPause}, p.History)
}

func TestNew(t *testing.T) {
	p, err := New("log", nil)
	require.NoError(t, err)
	assert.IsType(t, &LogPlayer{}, p)

	p, err = New("media-keys", nil)
	require.NoError(t, err)
	assert.IsType(t, &MediaKeys{}, p)

	_, err = New("mpd", nil)
	require.Error(t, err)
}
