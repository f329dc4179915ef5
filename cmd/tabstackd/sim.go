package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/pslog"
	"pkt.systems/tabstack/core"
	"pkt.systems/tabstack/internal/appconfig"
	"pkt.systems/tabstack/internal/bridge"
	"pkt.systems/tabstack/internal/command"
	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/internal/sessionprefs"
	"pkt.systems/tabstack/internal/tabstrip"
	"pkt.systems/tabstack/schema"
)

const simPrompt = "sim> "

// lineIO is a line oriented terminal.
type lineIO interface {
	ReadLine() (string, error)
	Write(p []byte) (int, error)
}

func newSimCmd() *cobra.Command {
	var cfgPath string
	var tabs int
	var connect string
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run an in-memory tab strip against the stack controller",
		Long: "sim opens a simulated browser window and reads slash commands from stdin.\n" +
			"With --connect it acts as the browser of a running daemon instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			strip := tabstrip.New()
			for i := 0; i < tabs; i++ {
				strip.Open(1, fmt.Sprintf("tab %d", i+1))
			}

			console, restore, err := openConsole(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer restore()

			intents := make(chan bridge.Intent, 256)
			var ctrl core.Controller
			var tabsMgr core.TabManager = strip
			if connect != "" {
				remote, client, err := dialSim(ctx, connect, strip, intents)
				if err != nil {
					return err
				}
				defer client.Close()
				ctrl = remote
			} else {
				bus := eventbus.New(pslog.Ctx(ctx))
				local, err := core.NewController(cfg.Presentation.ControllerConfig(), core.ControllerDeps{
					Tabs:      strip,
					Presenter: bus,
					Logger:    pslog.Ctx(ctx),
				})
				if err != nil {
					return err
				}
				strip.SetListener(local)
				events, unsubscribe := bus.Subscribe(schema.NoWindow)
				defer unsubscribe()
				go forwardIntents(ctx, events, intents)
				ctrl = local
			}

			handler := command.NewHandler(ctrl, tabsMgr, strip, command.HandlerConfig{
				DisableAuditLogging: cfg.Logging.DisableAuditTrails,
			})
			prefs := sessionprefs.New()
			prefs.SetWindow(1)
			ctx = sessionprefs.WithContext(ctx, prefs)
			return runSim(ctx, console, handler, intents)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().IntVar(&tabs, "tabs", 5, "number of tabs to open in window 1")
	cmd.Flags().StringVar(&connect, "connect", "", "bridge URL of a running daemon (ws://host:port/bridge)")
	return cmd
}

func dialSim(ctx context.Context, url string, strip *tabstrip.Strip, intents chan<- bridge.Intent) (*remoteController, *bridge.Client, error) {
	var remote *remoteController
	client, err := bridge.Dial(ctx, url, strip, bridge.ClientOptions{OnIntent: func(intent bridge.Intent) {
		if remote != nil {
			remote.observe(intent)
		}
		select {
		case intents <- intent:
		default:
		}
	}})
	if err != nil {
		return nil, nil, err
	}
	remote = newRemoteController(client)
	strip.SetListener(client)
	go func() {
		if err := client.Run(ctx); err != nil {
			pslog.Ctx(ctx).Warn("sim bridge closed", "err", err)
		}
	}()
	return remote, client, nil
}

func forwardIntents(ctx context.Context, events <-chan eventbus.Event, intents chan<- bridge.Intent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			select {
			case intents <- bridge.IntentFromEvent(ev):
			default:
			}
		}
	}
}

func runSim(ctx context.Context, console lineIO, handler *command.Handler, intents <-chan bridge.Intent) error {
	writeLine(console, "tabstack simulator, type /help for commands and /quit to leave")
	type lineResult struct {
		line string
		err  error
	}
	lines := make(chan lineResult, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			line, err := console.ReadLine()
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

	for {
		select {
		case <-ctx.Done():
			return nil
		case intent := <-intents:
			if text, ok := describeIntent(intent); ok {
				writeLine(console, text)
			}
		case res := <-lines:
			if res.err != nil {
				if errors.Is(res.err, io.EOF) {
					return nil
				}
				return res.err
			}
			line := strings.TrimSpace(res.line)
			if line == "/quit" || line == "/exit" {
				return nil
			}
			if line == "" {
				continue
			}
			var out strings.Builder
			handled, err := handler.Handle(ctx, &out, line)
			if out.Len() > 0 {
				_, _ = console.Write([]byte(out.String()))
			}
			if err != nil {
				writeLine(console, "error: "+err.Error())
				continue
			}
			if !handled {
				writeLine(console, "commands start with / (try /help)")
			}
		}
	}
}

func describeIntent(intent bridge.Intent) (string, bool) {
	switch {
	case intent.Notice != nil:
		return fmt.Sprintf("[%s] %s", intent.Notice.Title, intent.Notice.Message), true
	case intent.Title != nil:
		if intent.Title.Tag == schema.TitleTagNone {
			return fmt.Sprintf("window %d title cleared", intent.Title.WindowID), true
		}
		return fmt.Sprintf("window %d title %q", intent.Title.WindowID, intent.Title.Preface), true
	case intent.Indicator != nil:
		state := "off"
		if intent.Indicator.Enabled {
			state = "on"
		}
		return fmt.Sprintf("tab %d indicator %s", intent.Indicator.TabID, state), true
	default:
		return "", false
	}
}

func writeLine(console lineIO, text string) {
	_, _ = console.Write([]byte(text + "\n"))
}

// openConsole uses x/term line editing when stdin is a terminal and plain
// line reads otherwise.
func openConsole(in io.Reader, out io.Writer) (lineIO, func(), error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return nil, nil, err
		}
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{in, out}, simPrompt)
		if width, height, err := term.GetSize(int(f.Fd())); err == nil {
			_ = t.SetSize(width, height)
		}
		return t, func() { _ = term.Restore(int(f.Fd()), state) }, nil
	}
	return &plainConsole{scanner: bufio.NewScanner(in), out: out}, func() {}, nil
}

type plainConsole struct {
	scanner *bufio.Scanner
	mu      sync.Mutex
	out     io.Writer
}

func (c *plainConsole) ReadLine() (string, error) {
	if c.scanner.Scan() {
		return c.scanner.Text(), nil
	}
	if err := c.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (c *plainConsole) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}
