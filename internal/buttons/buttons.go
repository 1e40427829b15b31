// Package buttons turns key presses into board button events. The global
// keyboard hook (gohook) stands in for the central's five push buttons; a
// line-oriented reader serves headless runs.
package buttons

import (
	"bufio"
	"io"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// Binding maps a key name to a button number and the action it triggers.
type Binding struct {
	Key    string
	Button int
	Action string
}

// Event is one button press.
type Event struct {
	Button int
	Action string
}

// Source produces button events until stopped.
type Source interface {
	// Events returns the press channel. It is closed when the source stops.
	Events() <-chan Event
	// Start blocks until Stop is called. Run it in a goroutine.
	Start()
	// Stop is safe to call multiple times.
	Stop()
}

const eventBuffer = 16

// Listener watches the global keyboard for the bound keys. Only key-down
// events count as presses.
type Listener struct {
	bindings []Binding
	ch       chan Event
	done     chan struct{}
	once     sync.Once
}

var _ Source = (*Listener)(nil)

// NewListener creates a Listener for bindings. Keys are gohook key names
// such as "1" or "f5".
func NewListener(bindings []Binding) *Listener {
	return &Listener{
		bindings: bindings,
		ch:       make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

func (l *Listener) Events() <-chan Event { return l.ch }

func (l *Listener) Start() {
	for _, b := range l.bindings {
		evt := Event{Button: b.Button, Action: b.Action}
		hook.Register(hook.KeyDown, []string{b.Key}, func(hook.Event) {
			l.send(evt)
		})
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

func (l *Listener) send(evt Event) {
	select {
	case l.ch <- evt:
	default: // don't block the hook thread if the consumer lags
	}
}

func (l *Listener) Stop() {
	l.once.Do(func() { close(l.done) })
}

// LineReader reads one key name per line from r and emits the bound
// button. Unbound lines are ignored.
type LineReader struct {
	r    io.Reader
	keys map[string]Event
	ch   chan Event
	done chan struct{}
	once sync.Once
}

var _ Source = (*LineReader)(nil)

// NewLineReader creates a LineReader for bindings.
func NewLineReader(r io.Reader, bindings []Binding) *LineReader {
	keys := make(map[string]Event, len(bindings))
	for _, b := range bindings {
		keys[b.Key] = Event{Button: b.Button, Action: b.Action}
	}
	return &LineReader{
		r:    r,
		keys: keys,
		ch:   make(chan Event, eventBuffer),
		done: make(chan struct{}),
	}
}

func (l *LineReader) Events() <-chan Event { return l.ch }

// Start reads until EOF or Stop. A read blocked on r is not interrupted by
// Stop; the channel closes once it returns.
func (l *LineReader) Start() {
	defer close(l.ch)
	sc := bufio.NewScanner(l.r)
	for sc.Scan() {
		evt, ok := l.keys[strings.TrimSpace(sc.Text())]
		if !ok {
			continue
		}
		select {
		case l.ch <- evt:
		case <-l.done:
			return
		}
	}
}

func (l *LineReader) Stop() {
	l.once.Do(func() { close(l.done) })
}
