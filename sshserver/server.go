// Package sshserver mirrors the viewer to SSH terminals.
package sshserver

import (
	"context"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/cellview/internal/eventbus"
	"pkt.systems/cellview/internal/termview"
	"pkt.systems/pslog"
)

// Server exposes the terminal projection over SSH.
type Server struct {
	Addr           string
	HostKeyPath    string
	AuthorizedKeys string
	Theme          string
	Listener       net.Listener
	Source         termview.Source
	EventBus       *eventbus.Bus
	logger         pslog.Logger
}

// NewServer returns a Server for cfg.
func NewServer(cfg Config, source termview.Source, bus *eventbus.Bus) *Server {
	return &Server{
		Addr:           cfg.Addr,
		HostKeyPath:    cfg.HostKeyPath,
		AuthorizedKeys: cfg.AuthorizedKeys,
		Theme:          cfg.Theme,
		Source:         source,
		EventBus:       bus,
	}
}

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}

	signer, err := EnsureHostKey(s.HostKeyPath)
	if err != nil {
		return err
	}
	// Fail early on an unreadable file; keys are re-read per attempt.
	if _, err := LoadAuthorizedKeys(s.AuthorizedKeys); err != nil {
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
			s.logger.Info("ssh listening", "addr", s.Listener.Addr().String())
			errCh <- server.Serve(s.Listener)
			return
		}
		s.logger.Info("ssh listening", "addr", s.Addr)
		errCh <- server.ListenAndServe()
	}()

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
	fingerprint := ssh.FingerprintSHA256(key)
	log = log.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", fingerprint)
	if sshSession := ctx.SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}
	allowed, err := LoadAuthorizedKeys(s.AuthorizedKeys)
	if err != nil {
		log.Warn("ssh pubkey rejected", "err", err)
		return false
	}
	if !keyAllowed(allowed, key) {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	log.Info("ssh pubkey accepted")
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

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		_ = sess.Exit(1)
		return
	}

	log.Info("ssh session opened", "term", pty.Term)
	var events termview.Events
	if s.EventBus != nil {
		events = s.EventBus
	}
	ui := termview.NewSession(s.Source, sess, sess, events, termview.SessionConfig{Theme: s.Theme, AltScreen: true})
	ui.SetSize(pty.Window.Width, pty.Window.Height)
	_ = ui.Run(ctx, windowSizes(ctx, winCh))
	log.Info("ssh session closed", "term", pty.Term)
}

func windowSizes(ctx context.Context, winCh <-chan gliderssh.Window) <-chan termview.Size {
	out := make(chan termview.Size, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case win, ok := <-winCh:
				if !ok {
					return
				}
				select {
				case out <- termview.Size{Width: win.Width, Height: win.Height}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
