package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pkt.systems/cellview"
	"pkt.systems/cellview/internal/termview"
	"pkt.systems/pslog"
)

func newWatchCmd() *cobra.Command {
	var flags connectFlags
	var mirrors bool
	var theme string
	var plain bool
	var logFile string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to the server and render the cells in this terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if theme != "" {
				if !termview.IsTheme(theme) {
					return fmt.Errorf("unknown theme %q (available: %v)", theme, termview.ThemeNames())
				}
				cfg.View.Theme = theme
			}
			if plain {
				cfg.View.Plain = true
			}
			inFd := int(os.Stdin.Fd())
			outFd := int(os.Stdout.Fd())
			if !term.IsTerminal(inFd) || !term.IsTerminal(outFd) {
				return errors.New("watch needs a terminal; use serve or replay --text instead")
			}

			logger, closeLog, err := watchLogger(logFile)
			if err != nil {
				return err
			}
			defer closeLog()
			ctx := pslog.ContextWithLogger(cmd.Context(), logger)

			width, height, err := term.GetSize(outFd)
			if err != nil {
				return fmt.Errorf("terminal size: %w", err)
			}
			state, err := term.MakeRaw(inFd)
			if err != nil {
				return fmt.Errorf("raw mode: %w", err)
			}
			defer func() { _ = term.Restore(inFd, state) }()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGHUP)
			defer stop()

			opts := []cellview.ServerOption{cellview.WithTerminal()}
			if mirrors {
				opts = append(opts, mirrorOptions(cfg)...)
			}
			server, err := cellview.New(toServerConfig(cfg), cellview.ServerDeps{
				Terminal: cellview.Terminal{
					In:     os.Stdin,
					Out:    os.Stdout,
					Width:  width,
					Height: height,
					Resize: watchResize(ctx, outFd),
				},
			}, opts...)
			if err != nil {
				return err
			}
			logger.Info("watch start", "server", cfg.Server.URL, "width", width, "height", height, "mirrors", mirrors)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&mirrors, "mirrors", false, "also run the HTTP and SSH mirrors enabled in the config")
	cmd.Flags().StringVar(&theme, "theme", "", "terminal theme (overrides view.theme)")
	cmd.Flags().BoolVar(&plain, "plain", false, "render without colors")
	cmd.Flags().StringVar(&logFile, "log-file", "", "write logs to this file while the screen is in use")
	return cmd
}

// watchLogger keeps log lines off the screen: they go to logFile when set,
// otherwise only errors reach stderr.
func watchLogger(logFile string) (pslog.Logger, func(), error) {
	if logFile == "" {
		logger := pslog.NewWithOptions(os.Stderr, pslog.Options{
			Mode:     pslog.ModeConsole,
			MinLevel: pslog.ErrorLevel,
		})
		return logger, func() {}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := pslog.NewWithOptions(f, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.DebugLevel,
	})
	return logger, func() { _ = f.Close() }, nil
}

func watchResize(ctx context.Context, fd int) <-chan termview.Size {
	out := make(chan termview.Size, 1)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGWINCH)
	go func() {
		defer signal.Stop(sig)
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				width, height, err := term.GetSize(fd)
				if err != nil {
					pslog.Ctx(ctx).Debug("terminal size failed", "err", err)
					continue
				}
				select {
				case out <- termview.Size{Width: width, Height: height}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
