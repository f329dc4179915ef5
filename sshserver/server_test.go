package sshserver

import (
	"bytes"
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"pkt.systems/tabstack/internal/eventbus"
	"pkt.systems/tabstack/internal/sessionprefs"
	"pkt.systems/tabstack/schema"
)

type fakeHandler struct {
	mu     sync.Mutex
	inputs []string
}

func (h *fakeHandler) Handle(ctx context.Context, out io.Writer, input string) (bool, error) {
	h.mu.Lock()
	h.inputs = append(h.inputs, input)
	h.mu.Unlock()
	if !strings.HasPrefix(input, "/") {
		return false, nil
	}
	if sessionprefs.FromContext(ctx) == nil {
		_, _ = io.WriteString(out, "missing prefs\n")
	}
	_, _ = io.WriteString(out, "no stacks\n")
	return true, nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServerConsoleSession(t *testing.T) {
	pub, signer := newPublicKey(t)
	keys, err := LoadAuthorizedKeys(writeAuthorizedKeys(t, pub))
	if err != nil {
		t.Fatalf("load keys: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	bus := eventbus.New(nil)
	handler := &fakeHandler{}
	srv := &Server{
		Addr:        ln.Addr().String(),
		HostKeyPath: filepath.Join(t.TempDir(), "host_key"),
		Listener:    ln,
		Handler:     handler,
		Keys:        keys,
		EventBus:    bus,
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	defer func() {
		cancel()
		<-errCh
	}()

	client, err := ssh.Dial("tcp", ln.Addr().String(), &ssh.ClientConfig{
		User:            "ops",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         2 * time.Second,
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	session, err := client.NewSession()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	defer session.Close()
	if err := session.RequestPty("xterm", 40, 120, ssh.TerminalModes{}); err != nil {
		t.Fatalf("pty: %v", err)
	}
	var out syncBuffer
	session.Stdout = &out
	stdin, err := session.StdinPipe()
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	if err := session.Shell(); err != nil {
		t.Fatalf("shell: %v", err)
	}

	waitForOutput(t, &out, "type /help")
	bus.OnNotice(schema.NoticeEvent{Title: "tabstack", Message: "Tabs stacked"})
	waitForOutput(t, &out, "Tabs stacked")
	if _, err := io.WriteString(stdin, "/stacks\r"); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitForOutput(t, &out, "no stacks")
	if strings.Contains(out.String(), "missing prefs") {
		t.Fatalf("expected session prefs in command context")
	}
	if _, err := io.WriteString(stdin, "/quit\r"); err != nil {
		t.Fatalf("write: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- session.Wait() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not end after /quit")
	}
}

func TestServerRejectsUnknownKey(t *testing.T) {
	allowed, _ := newPublicKey(t)
	_, intruder := newPublicKey(t)
	keys, err := LoadAuthorizedKeys(writeAuthorizedKeys(t, allowed))
	if err != nil {
		t.Fatalf("load keys: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &Server{
		Addr:        ln.Addr().String(),
		HostKeyPath: filepath.Join(t.TempDir(), "host_key"),
		Listener:    ln,
		Handler:     &fakeHandler{},
		Keys:        keys,
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	defer func() {
		cancel()
		<-errCh
	}()
	_, err = ssh.Dial("tcp", ln.Addr().String(), &ssh.ClientConfig{
		User:            "ops",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(intruder)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         2 * time.Second,
	})
	if err == nil {
		t.Fatalf("expected unknown key to be rejected")
	}
}

func waitForOutput(t *testing.T, out *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), want) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %q in output, got %q", want, out.String())
}
