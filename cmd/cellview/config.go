package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/cellview/bootstrap"
	"pkt.systems/cellview/internal/appconfig"
	"pkt.systems/cellview/sshserver"
	"pkt.systems/pslog"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the cellview config",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var outputDir string
	var overwrite bool
	var sets []string
	var authorize string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			opts := bootstrap.Options{}
			for _, set := range sets {
				override, err := bootstrap.ParseOverride(set)
				if err != nil {
					return err
				}
				opts.Overrides = append(opts.Overrides, override)
			}
			if authorize != "" {
				data, err := os.ReadFile(authorize)
				if err != nil {
					return err
				}
				opts.AuthorizedKey = string(data)
			}
			paths, err := bootstrap.WriteBootstrap(outputDir, overwrite, opts)
			if err != nil {
				return err
			}
			logger.Info("config wrote", "path", paths.ConfigPath, "name", "config.yaml")
			if paths.AuthorizedKeysPath != "" {
				logger.Info("config wrote", "path", paths.AuthorizedKeysPath, "name", "authorized_keys")
			}
			if paths.HostKeyPath != "" {
				fingerprint, err := sshserver.HostKeyFingerprint(paths.HostKeyPath)
				if err != nil {
					return err
				}
				logger.Info("config wrote", "path", paths.HostKeyPath, "name", "ssh_host_key", "fingerprint", fingerprint)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory (default ~/.cellview)")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing config")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "override a config value, e.g. --set http.enabled=true")
	cmd.Flags().StringVar(&authorize, "authorize", "", "public key file allowed to use the SSH mirror")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
