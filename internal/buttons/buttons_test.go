package buttons

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var testBindings = []Binding{
	{Key: "1", Button: 1, Action: "navigate"},
	{Key: "2", Button: 2, Action: "up"},
	{Key: "5", Button: 5, Action: "query"},
}

func TestLineReader(t *testing.T) {
	r := NewLineReader(strings.NewReader("1\n  2 \nx\n\n5\n"), testBindings)
	go r.Start()

	var got []Event
	for evt := range r.Events() {
		got = append(got, evt)
	}
	assert.Equal(t, []Event{
		{Button: 1, Action: "navigate"},
		{Button: 2, Action: "up"},
		{Button: 5, Action: "query"},
	}, got)
}

func TestLineReaderStop(t *testing.T) {
	r := NewLineReader(strings.NewReader(strings.Repeat("1\n", 100)), testBindings)
	r.Stop()
	r.Stop()
	r.Start()

	// Start returned and closed the channel with at most a buffer's worth
	// of presses delivered.
	n := 0
	for range r.Events() {
		n++
	}
	assert.LessOrEqual(t, n, eventBuffer)
}

func TestListenerSendDoesNotBlock(t *testing.T) {
	l := NewListener(testBindings)
	for i := 0; i < eventBuffer+5; i++ {
		l.send(Event{Button: 1, Action: "navigate"})
	}
	assert.Len(t, l.Events(), eventBuffer)
	l.Stop()
	l.Stop()
}
