package integration_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"pkt.systems/cellview"
	"pkt.systems/cellview/httpapi"
	"pkt.systems/cellview/internal/stream"
	"pkt.systems/cellview/schema"
	"pkt.systems/cellview/sshserver"
)

const sourceHTML = `<span id=\"span_0_1\"><span id=\"span_0_2\">x</span> + <span id=\"span_0_3\">y</span></span>`

const sourceInfo = `"jdBlockId":0,"jdASTInfo":{"astParent":{"2":1,"3":1},"astChildren":{"1":[2,3]}},"jdLexemeList":[1,2,3]`

const createCell = `{"nodeMapUpdate":{"mapUpdates":{"5":{"tag":"Create","contents":[
	{"jdLine":3,"jdHTML":"` + sourceHTML + `",` + sourceInfo + `},
	{"tag":"Running"}]}}},
	"orderedNodesUpdate":{"numDropped":0,"newTail":[5]}}`

const completeCell = `{"nodeMapUpdate":{"mapUpdates":{"5":{"tag":"Update","contents":[
	{"jdLine":3,"jdHTML":"` + sourceHTML + `",` + sourceInfo + `},
	{"tag":"Complete","contents":"<pre>answer 42</pre>"}]}}},
	"orderedNodesUpdate":{"numDropped":0,"newTail":[]}}`

const secondCell = `{"nodeMapUpdate":{"mapUpdates":{"6":{"tag":"Create","contents":[
	{"jdLine":4,"jdHTML":"<span id=\"span_1_1\">z</span>","jdBlockId":1,"jdASTInfo":{"astParent":{},"astChildren":{}},"jdLexemeList":[1]},
	{"tag":"Waiting"}]}}},
	"orderedNodesUpdate":{"numDropped":0,"newTail":[6]}}`

type testServer struct {
	srv      cellview.Server
	msgs     chan schema.Message
	httpURL  string
	sshAddr  string
	signer   ssh.Signer
	upstream string
}

type serverSetup struct {
	http     bool
	ssh      bool
	upstream string
}

func newTestServer(t *testing.T, setup serverSetup) *testServer {
	t.Helper()
	ts := &testServer{upstream: setup.upstream}
	cfg := cellview.ServerConfig{
		Theme: "outrun",
		HTTP:  httpapi.Config{HubHistory: 64},
	}
	deps := cellview.ServerDeps{}
	if setup.upstream != "" {
		cfg.Stream = stream.Config{URL: setup.upstream, InitialBackoff: 50 * time.Millisecond, MaxBackoff: time.Second}
	} else {
		ts.msgs = make(chan schema.Message, 16)
		deps.Messages = ts.msgs
	}
	var opts []cellview.ServerOption
	if setup.http {
		ln := listen(t)
		deps.HTTPListener = ln
		ts.httpURL = "http://" + ln.Addr().String()
		opts = append(opts, cellview.WithHTTP())
	}
	if setup.ssh {
		ln := listen(t)
		deps.SSHListener = ln
		ts.sshAddr = ln.Addr().String()
		ts.signer = newTestSigner(t)
		dir := t.TempDir()
		keys := filepath.Join(dir, "authorized_keys")
		if err := os.WriteFile(keys, ssh.MarshalAuthorizedKey(ts.signer.PublicKey()), 0o600); err != nil {
			t.Fatalf("write authorized keys: %v", err)
		}
		cfg.SSH = sshserver.Config{
			Addr:           ts.sshAddr,
			HostKeyPath:    filepath.Join(dir, "host_key"),
			AuthorizedKeys: keys,
		}
		opts = append(opts, cellview.WithSSH())
	}
	srv, err := cellview.New(cfg, deps, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts.srv = srv
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			t.Errorf("stop server: %v", err)
		}
	})
	return ts
}

func (ts *testServer) send(t *testing.T, payload string) {
	t.Helper()
	msg, err := schema.DecodeMessage([]byte(payload))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ts.msgs <- msg
}

func (ts *testServer) waitSeq(t *testing.T, seq uint64) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for ts.srv.Viewer().Seq() < seq {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for seq %d (at %d)", seq, ts.srv.Viewer().Seq())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return ln
}

func newTestSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (l *lockedBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.Write(p)
}

func (l *lockedBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

func requireLong(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

func containsAll(value string, terms []string) bool {
	for _, term := range terms {
		if !strings.Contains(value, term) {
			return false
		}
	}
	return true
}
