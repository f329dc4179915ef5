package sshserver

import (
	"context"
	"errors"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/internal/sessionprefs"
	"pkt.systems/tabstack/schema"
)

// CommandHandler routes slash commands.
type CommandHandler interface {
	Handle(ctx context.Context, out io.Writer, input string) (bool, error)
}

// Server exposes the stack controller as an SSH operator console.
type Server struct {
	Addr        string
	HostKeyPath string
	Listener    net.Listener
	Handler     CommandHandler
	Keys        *AuthorizedKeys
	EventBus    *eventbus.Bus
	Prompt      string
	Theme       ThemeName
	logger      pslog.Logger
}

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.Prompt == "" {
		s.Prompt = "tabstack> "
	}
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:             s.Addr,
		Handler:          s.handleSession,
		PublicKeyHandler: s.handlePublicKey,
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			errCh <- server.Serve(s.Listener)
			return
		}
		errCh <- server.ListenAndServe()
	}()
	s.logger.Info("ssh console listening", "addr", s.Addr, "keys", s.Keys.Len())

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(ctx)
	}
	log = log.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", ssh.FingerprintSHA256(key))
	if sshSession := ctx.SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	comment, ok := s.Keys.Lookup(key)
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	log.Info("ssh pubkey accepted", "comment", comment)
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger
	if log == nil {
		log = pslog.Ctx(sess.Context())
	}
	log = log.With("user", sess.User(), "remote", sess.RemoteAddr().String())
	if sshSession := sess.Context().SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	ctx := pslog.ContextWithLogger(sess.Context(), log)
	ctx = sessionprefs.WithContext(ctx, sessionprefs.New())

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		return
	}

	log.Info("ssh session opened", "term", pty.Term)
	var events <-chan eventbus.Event
	if s.EventBus != nil {
		var unsubscribe func()
		events, unsubscribe = s.EventBus.Subscribe(schema.NoWindow)
		defer unsubscribe()
	}
	ui := newConsole(sess, s.Handler, s.Prompt, themeForName(s.Theme), events)
	ui.SetSize(pty.Window.Width, pty.Window.Height)
	_ = ui.Run(ctx, winCh)
	log.Info("ssh session closed", "term", pty.Term)
}

var errNoHandler = errors.New("no command handler configured")
