package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/zsprackett/tubewatch/internal/events"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// Plain writes one line per change. It is the surface for non-terminal
// output and implements binder.Surface.
type Plain struct {
	mu    sync.Mutex
	w     io.Writer
	known map[string]bool
}

func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w, known: make(map[string]bool)}
}

func (p *Plain) Append(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[id] = true
	_, err := fmt.Fprintf(p.w, "%s %s - Status: %s\n", green("+"), id, paint(events.InitialStatus))
	return err
}

func (p *Plain) SetStatus(id, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.known[id] {
		return fmt.Errorf("%w: %s", ErrNoRow, id)
	}
	_, err := fmt.Fprintf(p.w, "%s %s - Status: %s\n", yellow("~"), id, paint(status))
	return err
}

func (p *Plain) Remove(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.known[id] {
		return fmt.Errorf("%w: %s", ErrNoRow, id)
	}
	delete(p.known, id)
	_, err := fmt.Fprintf(p.w, "%s %s\n", red("-"), id)
	return err
}

// Know marks ids that already exist, so updates for them are printed.
func (p *Plain) Know(ids ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range ids {
		p.known[id] = true
	}
}

// Notice prints a connection change.
func (p *Plain) Notice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, gray("# "+msg))
}

func paint(status string) string {
	switch status {
	case "Available":
		return green(status)
	case "Error":
		return red(status)
	case "FetchingMeta", "Downloading":
		return yellow(status)
	default:
		return status
	}
}
