package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/leadbot/core/buildinfo"
	corecmd "github.com/m3rciful/leadbot/core/cmd"
	coreconfig "github.com/m3rciful/leadbot/core/config"
	coredatabase "github.com/m3rciful/leadbot/core/database"
	"github.com/m3rciful/leadbot/core/logger"
)

const (
	configEnvVar      = "CONFIG_PATH"
	defaultConfigPath = "config.yaml"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "leadbot",
		Short: "Lead qualification chat bot for the web widget and Telegram",
		Long: `leadbot runs a scripted lead qualification dialog: segment choice, a short
survey, then a free AI conversation. Leads are mirrored into Bitrix24 deals.

Examples:
  leadbot hybrid --config config.yaml
  leadbot web
  leadbot migrate`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config (default $"+configEnvVar+" or "+defaultConfigPath+")")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	runOpts := func(mode string) corecmd.Options {
		return corecmd.Options{
			ConfigEnvVar:      configEnvVar,
			DefaultConfigPath: defaultConfigPath,
			ConfigPath:        configPath,
			Mode:              mode,
		}
	}

	root.AddCommand(
		newServeCmd("web", "Serve the web chat API only", coreconfig.ModeWeb, runOpts),
		newServeCmd("telegram", "Run the Telegram bot only", coreconfig.ModeTelegram, runOpts),
		newServeCmd("hybrid", "Run the web chat API and the Telegram bot together", coreconfig.ModeHybrid, runOpts),
		newMigrateCmd(runOpts),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(use, short, mode string, runOpts func(string) corecmd.Options) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return corecmd.Run(runOpts(mode))
		},
	}
}

func newMigrateCmd(runOpts func(string) corecmd.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Web mode skips Telegram validation; only the database section matters here.
			cfg, err := corecmd.LoadConfig(runOpts(coreconfig.ModeWeb))
			if err != nil {
				return err
			}
			if err := logger.InitLogger(cfg); err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer func() { _ = logger.Shutdown() }()
			return coredatabase.RunMigrations(cfg.Database)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("leadbot %s (commit: %s, built: %s)\n", buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		},
	}
}
