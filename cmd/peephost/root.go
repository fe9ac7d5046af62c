package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/splax/peephost/pkg/config"
	"github.com/splax/peephost/pkg/logger"
)

// cli carries the state shared by every command.
type cli struct {
	out      io.Writer
	cfgFile  string
	logLevel string
	cfg      config.HostConfig
	log      *slog.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	root := &cobra.Command{
		Use:           "peephost",
		Short:         "Provision and heal self-hosted websites on this machine",
		Version:       buildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "",
		"config file (default: ~/.peephost/config.yaml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "",
		"override the configured log level")

	root.AddCommand(
		c.initCmd(),
		c.createCmd(),
		c.listCmd(),
		c.linkCmd(),
		c.moveCmd(),
		c.deleteCmd(),
		c.monitorCmd(),
		c.migrateCmd(),
		c.updateCmd(),
		c.mailCmd(),
		c.certCmd(),
		c.serveCmd(),
		c.tokenCmd(),
		c.configCmd(),
		c.versionCmd(),
	)
	return root
}

func (c *cli) load() error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	c.cfg = cfg
	c.log = logger.NewWithFormat(os.Stderr, "peephost", cfg.LogFormat, logger.ParseLevel(cfg.LogLevel))
	return nil
}

func (c *cli) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}
