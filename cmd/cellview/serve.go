package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/cellview"
	"pkt.systems/cellview/httpapi"
	"pkt.systems/cellview/internal/appconfig"
	"pkt.systems/cellview/internal/stream"
	"pkt.systems/cellview/sshserver"
	"pkt.systems/pslog"
)

type connectFlags struct {
	cfgPath string
	url     string
}

func (f *connectFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&f.url, "url", "u", "", "evaluation server URL (overrides server.url)")
}

func (f *connectFlags) load() (appconfig.Config, error) {
	cfg, err := appconfig.Load(f.cfgPath)
	if err != nil {
		return appconfig.Config{}, err
	}
	if f.url != "" {
		cfg.Server.URL = f.url
		if err := appconfig.Validate(cfg); err != nil {
			return appconfig.Config{}, err
		}
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var flags connectFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Connect to the server and expose the HTTP and SSH mirrors",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			opts := mirrorOptions(cfg)
			if len(opts) == 0 {
				return errors.New("serve needs http.enabled or ssh.enabled in the config")
			}
			server, err := cellview.New(toServerConfig(cfg), cellview.ServerDeps{}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("serve start", "server", cfg.Server.URL, "http", cfg.HTTP.Enabled, "ssh", cfg.SSH.Enabled)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	flags.register(cmd)
	return cmd
}

func mirrorOptions(cfg appconfig.Config) []cellview.ServerOption {
	var opts []cellview.ServerOption
	if cfg.HTTP.Enabled {
		opts = append(opts, cellview.WithHTTP())
	}
	if cfg.SSH.Enabled {
		opts = append(opts, cellview.WithSSH())
	}
	return opts
}

func toServerConfig(cfg appconfig.Config) cellview.ServerConfig {
	return cellview.ServerConfig{
		Stream:   toStreamConfig(cfg.Server),
		RichText: cfg.RichText.Enabled,
		Theme:    cfg.View.Theme,
		Plain:    cfg.View.Plain,
		HTTP:     toHTTPConfig(cfg.HTTP),
		SSH:      toSSHConfig(cfg.SSH, cfg.View.Theme),
	}
}

func toStreamConfig(cfg appconfig.ServerConfig) stream.Config {
	return stream.Config{
		URL:            cfg.URL,
		Path:           cfg.StreamPath,
		InitialBackoff: time.Duration(cfg.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.MaxBackoffSeconds) * time.Second,
	}
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:       cfg.Addr,
		BaseURL:    cfg.BaseURL,
		BasePath:   cfg.BasePath,
		HubHistory: cfg.HubHistory,
	}
}

func toSSHConfig(cfg appconfig.SSHConfig, theme string) sshserver.Config {
	return sshserver.Config{
		Addr:           cfg.Addr,
		HostKeyPath:    cfg.HostKeyPath,
		AuthorizedKeys: cfg.AuthorizedKeys,
		Theme:          theme,
	}
}
