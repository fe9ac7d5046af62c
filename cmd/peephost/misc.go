package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	httpx "github.com/splax/peephost/internal/http"
	"github.com/splax/peephost/pkg/config"
	"github.com/splax/peephost/pkg/jwt"
)

func (c *cli) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Upgrade the host's system packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.deps.Upgrade(cmd.Context()); err != nil {
				return err
			}
			c.printf("system packages upgraded\n")
			return nil
		},
	}
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		operator string
		readOnly bool
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a dashboard bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if operator == "" {
				return errors.New("--operator is required")
			}
			if ttl <= 0 {
				ttl = c.cfg.TokenTTL
			}
			scope := ""
			if readOnly {
				scope = httpx.ScopeRead
			}
			tok, err := jwt.GenerateToken(operator, scope, c.cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			c.printf("%s\n", tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "name recorded in the token and audit log")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "issue a token that cannot change projects")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default from token_ttl)")
	return cmd
}

func (c *cli) configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the effective configuration as YAML",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfgFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = config.DefaultFile()
			}
			if err := config.Write(path, c.cfg, force); err != nil {
				return err
			}
			c.printf("wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.printf("root:          %s\n", c.cfg.Root)
			c.printf("registry:      %s\n", c.cfg.RegistryPath)
			c.printf("projects root: %s\n", c.cfg.ProjectsRoot)
			c.printf("data root:     %s\n", c.cfg.DataRoot)
			c.printf("base port:     %d\n", c.cfg.BasePort)
			c.printf("dashboard:     %s\n", c.cfg.DashboardAddr)
			return nil
		},
	}

	cfg.AddCommand(initCmd, show)
	return cfg
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.printf("peephost %s\n", buildVersion)
			return nil
		},
	}
}
