package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/m3rciful/chartbot/core/buildinfo"
	corecmd "github.com/m3rciful/chartbot/core/cmd"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chartbot",
		Short:         "Telegram bot replying with TradingView chart images",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default $CONFIG_PATH, then ./config.yaml)")

	opts := func() corecmd.Options {
		return corecmd.Options{
			ConfigPath:        configPath,
			ConfigEnvVar:      "CONFIG_PATH",
			DefaultConfigPath: "config.yaml",
		}
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Receive updates by webhook or long polling, as configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return corecmd.Serve(opts())
		},
	}

	var domain string
	setup := &cobra.Command{
		Use:   "setup",
		Short: "Register https://<domain>/webhook/telegram and publish the command menu",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := corecmd.Setup(opts(), domain); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "webhook and commands registered")
			return nil
		},
	}
	setup.Flags().StringVar(&domain, "domain", "", "public host name serving the webhook")
	_ = setup.MarkFlagRequired("domain")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chartbot %s (commit %s, built %s)\n",
				buildinfo.Version, buildinfo.Commit, buildinfo.Date)
		},
	}

	root.AddCommand(serve, setup, version)
	return root
}
