// Package console holds the scrolling history both the listener goroutine and
// the input loop write to.
package console

import "sync"

// DefaultScrollback is how many lines are kept for display.
const DefaultScrollback = 1000

// Sink is the append-only display surface the session writes to.
type Sink interface {
	Append(line string)
}

// RenderFunc draws a snapshot of the history. It runs with the console lock
// held and must not call back into the Console.
type RenderFunc func(lines []string)

// Console is a Sink whose append-and-redraw is atomic with respect to every
// other append or redraw.
type Console struct {
	mu         sync.Mutex
	lines      []string
	scrollback int
	render     RenderFunc
}

// New returns a Console keeping at most scrollback lines.
// A nil render is allowed; SetRenderer can attach one later.
func New(scrollback int, render RenderFunc) *Console {
	if scrollback <= 0 {
		scrollback = DefaultScrollback
	}
	return &Console{scrollback: scrollback, render: render}
}

// SetRenderer replaces the render callback and redraws with it.
func (c *Console) SetRenderer(render RenderFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.render = render
	c.redrawLocked()
}

// Append adds line to the history and redraws.
func (c *Console) Append(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	if over := len(c.lines) - c.scrollback; over > 0 {
		// Copy down so the backing array does not grow forever.
		c.lines = append(c.lines[:0], c.lines[over:]...)
	}
	c.redrawLocked()
}

// Redraw renders the current history without changing it.
func (c *Console) Redraw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redrawLocked()
}

// Lines returns a copy of the history.
func (c *Console) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Console) redrawLocked() {
	if c.render != nil {
		c.render(c.snapshot())
	}
}

func (c *Console) snapshot() []string {
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}
