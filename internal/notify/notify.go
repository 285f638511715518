// Package notify delivers user-visible notices.
package notify

import (
	"io"
	"sync"

	"github.com/fatih/color"
)

// Notifier shows one line of text to the player. Implementations must be safe
// for concurrent use: notices arrive from the event loop and from background
// fetch/submit goroutines.
type Notifier interface {
	Notify(text string)
}

// Func adapts a plain function.
type Func func(text string)

func (f Func) Notify(text string) { f(text) }

// Console prints highlighted notices to a terminal.
type Console struct {
	mu sync.Mutex
	w  io.Writer
	c  *color.Color
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w, c: color.New(color.FgHiMagenta, color.Bold)}
}

func (c *Console) Notify(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = c.c.Fprintln(c.w, text)
}

// Multi fans a notice out to every non-nil notifier.
type Multi []Notifier

func (m Multi) Notify(text string) {
	for _, n := range m {
		if n != nil {
			n.Notify(text)
		}
	}
}
