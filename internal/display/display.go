// Package display renders the central's screen, the stand-in for the
// board's small OLED panel.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

// Screen is one frame of the panel.
type Screen struct {
	Title  string
	Lines  []string
	Status string
	// Editing highlights the frame while a value is being changed.
	Editing bool
}

// Display shows frames.
type Display interface {
	Show(s Screen) error
}

// New returns the display for driver, "terminal" or "log".
func New(driver string, w io.Writer, log *logrus.Entry) (Display, error) {
	switch driver {
	case "terminal":
		return NewTerminal(w), nil
	case "log":
		return NewLogDisplay(log), nil
	}
	return nil, fmt.Errorf("display: unknown driver %q", driver)
}

const panelWidth = 28

// Terminal redraws a bordered panel on a terminal.
type Terminal struct {
	w io.Writer

	title   lipgloss.Style
	value   lipgloss.Style
	status  lipgloss.Style
	box     lipgloss.Style
	editBox lipgloss.Style
}

// NewTerminal returns a terminal display writing to w.
func NewTerminal(w io.Writer) *Terminal {
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Width(panelWidth)
	return &Terminal{
		w: w,
		title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")),
		status: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
		box:     box,
		editBox: box.BorderForeground(lipgloss.Color("11")),
	}
}

// Render returns the panel for s without writing it.
func (t *Terminal) Render(s Screen) string {
	var b strings.Builder
	b.WriteString(t.title.Render(s.Title))
	for _, line := range s.Lines {
		b.WriteString("\n")
		b.WriteString(t.value.Render(line))
	}
	if s.Status != "" {
		b.WriteString("\n\n")
		b.WriteString(t.status.Render(s.Status))
	}
	if s.Editing {
		return t.editBox.Render(b.String())
	}
	return t.box.Render(b.String())
}

func (t *Terminal) Show(s Screen) error {
	// Clear and home the cursor before each frame.
	_, err := fmt.Fprint(t.w, "\x1b[H\x1b[2J"+t.Render(s)+"\n")
	return err
}

// LogDisplay writes each frame as a log line.
type LogDisplay struct {
	log  *logrus.Entry
	Last Screen
}

// NewLogDisplay returns a display logging at Info.
func NewLogDisplay(log *logrus.Entry) *LogDisplay {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &LogDisplay{log: log.WithField("component", "display")}
}

func (d *LogDisplay) Show(s Screen) error {
	d.Last = s
	d.log.WithFields(logrus.Fields{
		"screen":  s.Title,
		"editing": s.Editing,
		"status":  s.Status,
	}).Info(strings.Join(s.Lines, " | "))
	return nil
}
