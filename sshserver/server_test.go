package sshserver

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"pkt.systems/cellview/internal/eventbus"
	"pkt.systems/cellview/internal/snapshot"
	"pkt.systems/cellview/schema"
)

type fakeSource struct {
	mu    sync.Mutex
	doc   snapshot.Document
	hover []schema.TokenID
}

func (f *fakeSource) Snapshot(context.Context) snapshot.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.doc
}

func (f *fakeSource) Hover(_ context.Context, node schema.NodeID, token schema.TokenID, enter bool) (snapshot.Cell, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cell, ok := f.doc.Cell(node)
	if !ok {
		return snapshot.Cell{}, schema.ErrCellNotFound
	}
	if enter {
		f.hover = append(f.hover, token)
		f.doc.Active = &snapshot.Active{Node: node, Token: token}
	} else {
		f.doc.Active = nil
	}
	return cell, nil
}

type lockedBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.b.String()
}

func startTestServer(t *testing.T, source *fakeSource, bus *eventbus.Bus, allowed ssh.PublicKey) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(Config{
		HostKeyPath:    filepath.Join(t.TempDir(), "host_key"),
		AuthorizedKeys: writeAuthorizedKeys(t, allowed),
		Theme:          "gruvbox",
	}, source, bus)
	srv.Listener = ln
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("ssh server did not stop")
		}
	})
	return ln.Addr().String()
}

func dial(addr string, signer ssh.Signer) (*ssh.Client, error) {
	return ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            "viewer",
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func waitFor(t *testing.T, out *lockedBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %q in output %q", want, out.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionRendersAndHovers(t *testing.T) {
	source := &fakeSource{doc: snapshot.Document{
		Seq:     5,
		Visible: []schema.NodeID{"n1"},
		Live:    1,
		Cells: []snapshot.Cell{{
			ID:        "n1",
			Line:      3,
			State:     "Complete",
			Hoverable: []schema.TokenID{"t1"},
			Runs:      []snapshot.Run{{Text: "answer = 42"}},
		}},
	}}
	bus := eventbus.New(nil)
	signer := newTestSigner(t)
	addr := startTestServer(t, source, bus, signer.PublicKey())

	client, err := dial(addr, signer)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	defer sess.Close()
	if err := sess.RequestPty("xterm", 24, 80, ssh.TerminalModes{}); err != nil {
		t.Fatalf("pty: %v", err)
	}
	stdin, err := sess.StdinPipe()
	if err != nil {
		t.Fatalf("stdin: %v", err)
	}
	out := &lockedBuffer{}
	sess.Stdout = out
	if err := sess.Shell(); err != nil {
		t.Fatalf("shell: %v", err)
	}

	waitFor(t, out, "answer = 42")
	waitFor(t, out, "seq 5")

	source.mu.Lock()
	source.doc.Seq = 6
	source.mu.Unlock()
	bus.OnUpdate(6, schema.Message{})
	waitFor(t, out, "seq 6")

	if _, err := io.WriteString(stdin, "\x1b[A\x1b[C"); err != nil {
		t.Fatalf("write keys: %v", err)
	}
	waitFor(t, out, "hover n1:t1")
	if _, err := io.WriteString(stdin, "q"); err != nil {
		t.Fatalf("write quit: %v", err)
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- sess.Wait() }()
	select {
	case err := <-waitErr:
		var exitErr *ssh.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not end after quit")
	}
	source.mu.Lock()
	defer source.mu.Unlock()
	if len(source.hover) != 1 || source.hover[0] != "t1" || source.doc.Active != nil {
		t.Fatalf("expected t1 hovered then left, got %v active=%v", source.hover, source.doc.Active)
	}
}

func TestUnknownKeyRejected(t *testing.T) {
	source := &fakeSource{}
	allowed := newTestSigner(t)
	addr := startTestServer(t, source, nil, allowed.PublicKey())
	if client, err := dial(addr, newTestSigner(t)); err == nil {
		client.Close()
		t.Fatalf("expected unknown key to be rejected")
	}
}
