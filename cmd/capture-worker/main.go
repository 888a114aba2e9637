// Command capture-worker drives one browser page over the line protocol on
// stdin/stdout. It is spawned by the screenshot server, one per session.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xiaoyuanzhu-com/screenshot-taker/config"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/worker"
)

func main() {
	// stdout carries the protocol
	log.SetOutput(os.Stderr)

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Get()

	var (
		opts   worker.RodOptions
		runCfg worker.Config
	)

	cmd := &cobra.Command{
		Use:           "capture-worker [url]",
		Short:         "Open a persistent browser page and capture it on command",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var url string
			if len(args) == 1 {
				url = args[0]
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			err := worker.Run(ctx, worker.OpenRod(opts), url, runCfg, os.Stdin, os.Stdout)
			if err != nil {
				log.Error().Err(err).Msg("capture worker failed")
			}
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.ProfileDir, "profile-dir", cfg.ProfileDir, "browser profile directory, kept between sessions")
	flags.BoolVar(&opts.Headless, "headless", cfg.CaptureHeadless, "run the browser without a window")
	flags.StringVar(&opts.Bin, "browser", "", "browser binary (found or downloaded when empty)")
	flags.StringVar(&runCfg.OutDir, "out-dir", cfg.CaptureDir, "directory for captured files")
	flags.DurationVar(&runCfg.NavTimeout, "nav-timeout", cfg.CaptureNavTimeout, "navigation timeout")

	return cmd
}
