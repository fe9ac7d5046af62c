package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	units "github.com/docker/go-units"
	"github.com/spf13/cobra"

	"github.com/splax/peephost/internal/domain"
	"github.com/splax/peephost/internal/service/dependency"
	"github.com/splax/peephost/internal/service/diagnose"
	"github.com/splax/peephost/internal/service/project"
	"github.com/splax/peephost/internal/service/teardown"
	"github.com/splax/peephost/internal/templates"
	"github.com/splax/peephost/pkg/config"
)

func (c *cli) initCmd() *cobra.Command {
	var install bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the state directories and, optionally, install the host tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, dir := range []string{c.cfg.Root, c.cfg.DataRoot, c.cfg.ProjectsRoot} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}
			path := c.cfgFile
			if path == "" {
				path = config.DefaultFile()
			}
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := config.Write(path, c.cfg, false); err != nil {
					return err
				}
				c.printf("wrote %s\n", path)
			}
			if !install {
				c.printf("state directory ready at %s\n", c.cfg.Root)
				return nil
			}
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.deps.EnsureAll(cmd.Context(), "docker", "nginx", "certbot", "git"); err != nil {
				return err
			}
			c.printf("host tools installed\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&install, "install", false, "install docker, nginx, certbot and git")
	return cmd
}

func (c *cli) createCmd() *cobra.Command {
	var tmpl string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a project, reserve a port and scaffold it from a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			rec, err := a.projects.Create(cmd.Context(), args[0], tmpl)
			if err != nil {
				return err
			}
			c.printf("created %s on port %d\n", args[0], rec.Port)
			c.printf("  sources: %s\n  data:    %s\n", rec.ProjectPath, rec.DataPath)
			if rec.Template != "" {
				c.printf("  start it with: cd %s && docker compose up -d\n", rec.ProjectPath)
			}
			return nil
		},
	}
	ids := make([]string, 0)
	for _, t := range templates.Catalog() {
		ids = append(ids, t.ID)
	}
	cmd.Flags().StringVarP(&tmpl, "template", "t", project.DefaultTemplate,
		fmt.Sprintf("project template (%s); empty for none", strings.Join(ids, ", ")))
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered projects",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			records, err := a.projects.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				c.printf("no projects\n")
				return nil
			}
			c.writeProjects(records)
			return nil
		},
	}
}

func (c *cli) writeProjects(records []domain.ProjectRecord) {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPORT\tDOMAIN\tWEBMAIL\tPATH")
	for _, rec := range records {
		dom, webmail := "-", "-"
		if rec.HasDomain() {
			dom = rec.Domain
		}
		if rec.WebmailPort > 0 {
			webmail = fmt.Sprintf("%s:%d", rec.WebmailHost(), rec.WebmailPort)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", rec.Name, rec.Port, dom, webmail, rec.ProjectPath)
	}
	tw.Flush()
}

func (c *cli) linkCmd() *cobra.Command {
	var withCert bool
	cmd := &cobra.Command{
		Use:   "link <name> <domain>",
		Short: "Publish a project on a domain through nginx",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			rec, err := a.projects.LinkDomain(cmd.Context(), args[0], strings.ToLower(strings.TrimSpace(args[1])))
			if err != nil {
				return c.explain(err)
			}
			c.printf("%s now serves http://%s -> 127.0.0.1:%d\n", args[0], rec.Domain, rec.Port)
			if !withCert {
				return nil
			}
			if err := a.certs.Issue(cmd.Context(), templates.CertificateTargets(rec.Domain)...); err != nil {
				return err
			}
			c.printf("certificate issued for %s\n", rec.Domain)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withCert, "cert", false, "issue a certificate after linking")
	return cmd
}

func (c *cli) moveCmd() *cobra.Command {
	var repo string
	cmd := &cobra.Command{
		Use:     "move <name> [source]",
		Aliases: []string{"import"},
		Short:   "Move existing sources (or a cloned repository) into a project",
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := ""
			if len(args) == 2 {
				src = args[1]
			}
			if (src == "") == (repo == "") {
				return errors.New("pass either a source directory or --repo")
			}
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			moved, err := a.projects.Import(cmd.Context(), args[0], src, repo)
			if err != nil {
				return err
			}
			for _, m := range moved {
				line := fmt.Sprintf("%-6s %s -> %s", m.Placement, m.Name, m.Dest)
				if m.LinkErr != nil {
					line += fmt.Sprintf(" (link back failed: %v)", m.LinkErr)
				}
				c.printf("%s\n", line)
			}
			c.printf("moved %d entries into %s\n", len(moved), args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&repo, "repo", "", "git repository to clone instead of a local directory")
	return cmd
}

func (c *cli) deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Tear down every artifact of a project",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete %s without --yes", args[0])
			}
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			report, err := a.projects.Delete(cmd.Context(), args[0])
			var tdErr *teardown.TeardownError
			if err != nil && !errors.As(err, &tdErr) {
				return err
			}
			c.writeReport(report)
			if err != nil {
				return fmt.Errorf("%s deleted with residue", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func (c *cli) writeReport(report teardown.Report) {
	for _, step := range report.Steps {
		if step.Err != nil {
			c.printf("  %-13s FAILED %v\n", step.Name, step.Err)
			continue
		}
		c.printf("  %-13s ok\n", step.Name)
	}
}

func (c *cli) migrateCmd() *cobra.Command {
	var database string
	cmd := &cobra.Command{
		Use:   "migrate <name>",
		Short: "Apply pending database migrations through the project's migrate script or Prisma",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			strategy, err := a.projects.Migrate(cmd.Context(), args[0], database)
			if errors.Is(err, project.ErrNoMigration) {
				return fmt.Errorf("%w: add a \"migrate\" script to package.json or a prisma/schema.prisma", err)
			}
			if err != nil {
				return err
			}
			c.printf("migrations applied to %s (%s)\n", args[0], strategy)
			return nil
		},
	}
	cmd.Flags().StringVarP(&database, "database", "d", "", "path to a sqlite database file, exported as DATABASE_URL")
	return cmd
}

func (c *cli) monitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor <name>",
		Short: "Show resource usage of a project's containers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(nil)
			if err != nil {
				return err
			}
			defer a.Close()
			stats, err := a.projects.Stats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				c.printf("no running containers for %s\n", args[0])
				return nil
			}
			return c.writeStats(stats)
		},
	}
}

func (c *cli) writeStats(stats []domain.ContainerStat) error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTAINER\tSTATE\tCPU %\tMEM\tMEM %")
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s / %s\t%.2f\n", s.Name, s.State, s.CPUPercent,
			units.BytesSize(float64(s.MemoryBytes)), units.BytesSize(float64(s.MemoryLimit)), s.MemoryPercent)
	}
	return tw.Flush()
}

// explain expands typed failures into operator guidance.
func (c *cli) explain(err error) error {
	var (
		restartErr *diagnose.ServiceRestartError
		depErr     *dependency.Error
	)
	switch {
	case errors.As(err, &restartErr):
		c.printf("%s", diagnose.Format(restartErr.Diagnosis))
	case errors.As(err, &depErr):
		c.printf("install %s manually and retry\n", depErr.Tool)
	}
	return err
}
