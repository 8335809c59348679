package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/pcristin/zeroland-landing/internal/app"
	"github.com/pcristin/zeroland-landing/internal/config"
	"github.com/pcristin/zeroland-landing/internal/logger"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	log *zap.Logger
}

func newRootCmd() (*cobra.Command, *rootOptions) {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "landing",
		Short:         "Supply USDC to an Aave-v3 style lending pool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := logger.New(opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.log = l
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to config file")
	pf.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.logFormat, "log-format", "console", "log format (console, json)")

	root.AddCommand(
		newSupplyCmd(opts),
		newWrapCmd(opts, true),
		newWrapCmd(opts, false),
		newWaitCmd(opts),
		newFeesCmd(opts),
		newNetworksCmd(opts),
		newBuildCmd(opts),
		newDecodeCmd(opts),
		newHistoryCmd(opts),
	)
	return root, opts
}

// loadConfig reads the config file. Log settings from the file apply unless
// the matching flag was given.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	level, format := cfg.Log.Level, cfg.Log.Format
	if cmd.Flags().Changed("log-level") {
		level = o.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		format = o.logFormat
	}
	l, err := logger.New(level, format)
	if err != nil {
		return nil, err
	}
	o.log = l
	return cfg, nil
}

func (o *rootOptions) open(ctx context.Context, cfg *config.Config, opts app.OpenOptions) (*app.Session, error) {
	return app.New(cfg, o.log, promptPassphrase).Open(ctx, opts)
}

func (o *rootOptions) sync() {
	if o.log != nil {
		logger.Sync(o.log)
	}
}

func promptPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
