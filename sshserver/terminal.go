package sshserver

import (
	"bytes"
	"context"
	"io"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/internal/sessionprefs"
	"pkt.systems/tabstack/internal/version"
)

type lineResult struct {
	line string
	err  error
}

// console is a line oriented session: slash commands on input, presentation
// events interleaved above the prompt.
type console struct {
	term    *term.Terminal
	handler CommandHandler
	theme   tuiTheme
	events  <-chan eventbus.Event
	width   int
	height  int
}

func newConsole(rw io.ReadWriter, handler CommandHandler, prompt string, theme tuiTheme, events <-chan eventbus.Event) *console {
	styled := colorize(prompt, theme.PromptFG)
	return &console{
		term:    term.NewTerminal(rw, styled),
		handler: handler,
		theme:   theme,
		events:  events,
	}
}

func (c *console) SetSize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.width = width
	c.height = height
	_ = c.term.SetSize(width, height)
}

// Run reads lines until the peer disconnects, /quit is entered or ctx ends.
func (c *console) Run(ctx context.Context, winCh <-chan gliderssh.Window) error {
	log := pslog.Ctx(ctx)
	c.println(colorize(version.String(), c.theme.MetaFG))
	c.println(colorize("type /help for commands", c.theme.MetaFG))

	lines := make(chan lineResult, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			line, err := c.term.ReadLine()
			select {
			case lines <- lineResult{line: line, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	events := c.events
	for {
		select {
		case <-ctx.Done():
			return nil
		case win, ok := <-winCh:
			if !ok {
				winCh = nil
				continue
			}
			c.SetSize(win.Width, win.Height)
			log.Debug("ssh console resize", "width", c.width, "height", c.height)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			window := sessionprefs.FromContext(ctx).Window()
			if text, show := renderEvent(ev, window, c.theme); show {
				c.println(text)
			}
		case res := <-lines:
			if res.err != nil {
				if res.err != io.EOF {
					log.Debug("ssh console read failed", "err", res.err)
				}
				return nil
			}
			if c.handleLine(ctx, res.line) {
				return nil
			}
		}
	}
}

// handleLine executes one input line and reports whether the session should end.
func (c *console) handleLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "/quit", "/exit":
		return true
	}
	if c.handler == nil {
		c.println(renderError(errNoHandler, c.theme))
		return false
	}
	var out bytes.Buffer
	handled, err := c.handler.Handle(ctx, &out, line)
	if out.Len() > 0 {
		_, _ = c.term.Write(out.Bytes())
	}
	if err != nil {
		c.println(renderError(err, c.theme))
		return false
	}
	if !handled {
		c.println(colorize("commands start with / (try /help)", c.theme.MetaFG))
	}
	return false
}

func (c *console) println(text string) {
	_, _ = c.term.Write([]byte(text + "\n"))
}
