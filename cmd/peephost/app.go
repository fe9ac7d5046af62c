package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/peephost/internal/docker"
	"github.com/splax/peephost/internal/git"
	"github.com/splax/peephost/internal/metrics"
	"github.com/splax/peephost/internal/repository/filestore"
	"github.com/splax/peephost/internal/service/cert"
	"github.com/splax/peephost/internal/service/dependency"
	"github.com/splax/peephost/internal/service/diagnose"
	"github.com/splax/peephost/internal/service/ingress"
	"github.com/splax/peephost/internal/service/mail"
	"github.com/splax/peephost/internal/service/project"
	"github.com/splax/peephost/internal/service/teardown"
	"github.com/splax/peephost/internal/system"
	"github.com/splax/peephost/internal/templates"
	"github.com/splax/peephost/internal/workspace"
)

// app is the wired service graph for one invocation.
type app struct {
	store     *filestore.Store
	docker    *docker.Client
	deps      *dependency.Service
	diagnose  *diagnose.Service
	certs     *cert.Service
	ingress   *ingress.Service
	mail      *mail.Service
	teardown  *teardown.Service
	projects  *project.Service
	workspace *workspace.Manager
	metrics   *metrics.Metrics
}

func (c *cli) newApp(reg prometheus.Registerer) (*app, error) {
	cfg, log := c.cfg, c.log
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	a := &app{metrics: metrics.New(reg)}

	runner := system.NewExecRunner(cfg.UseSudo, log)
	writer := system.NewPrivilegedWriter(runner, cfg.ScratchDir)
	services := system.NewSystemd(runner)

	pm, err := dependency.LookupPackageManager(cfg.PackageManager)
	if err != nil {
		return nil, err
	}
	a.deps = dependency.New(runner, pm, cfg.ProbeCacheTTL, log.With("component", "dependency"))

	dockerClient, err := docker.New(cfg.DockerHost)
	if err != nil {
		log.Warn("docker client unavailable", "error", err)
	} else {
		a.docker = dockerClient
	}

	reloader, err := c.reloader(runner, services, a.docker)
	if err != nil {
		return nil, err
	}

	a.store = filestore.New(cfg.RegistryPath, log.With("component", "registry"))
	a.workspace, err = workspace.New(cfg.ProjectsRoot, cfg.DataRoot)
	if err != nil {
		return nil, err
	}
	a.diagnose = diagnose.New(services, log.With("component", "diagnose"), diagnose.WithTail(cfg.LogTailLines))
	a.certs = cert.New(runner, a.deps, cfg.CertEmail, log.With("component", "cert"))
	a.ingress = ingress.New(runner, writer, a.deps, reloader, ingress.Config{
		SitesAvailable: cfg.NginxSitesAvailable,
		SitesEnabled:   cfg.NginxSitesEnabled,
		Container:      cfg.NginxContainerName,
	}, log.With("component", "ingress"))

	compose := docker.NewCompose(runner, log.With("component", "compose"))
	a.mail = mail.New(mail.Deps{
		Store:    a.store,
		Runner:   runner,
		Writer:   writer,
		Ensurer:  a.deps,
		Restart:  a.diagnose,
		Certs:    a.certs,
		Sites:    a.ingress,
		Stacks:   compose,
		Observer: a.metrics.ObserveRemediation,
	}, mail.Config{
		Paths: templates.MailPaths{
			PostfixDir:      cfg.PostfixDir,
			DovecotDir:      cfg.DovecotDir,
			VirtualMap:      cfg.VirtualMapPath,
			LetsEncryptLive: cfg.LetsEncryptLive,
		},
		WebmailBasePort: cfg.WebmailBasePort,
	}, log.With("component", "mail"))

	tdDeps := teardown.Deps{
		Store:    a.store,
		Stacks:   compose,
		Sites:    a.ingress,
		Certs:    a.certs,
		Mail:     a.mail,
		Dirs:     a.workspace,
		Elevated: writer,
	}
	pDeps := project.Deps{
		Store:     a.store,
		Ensurer:   a.deps,
		Workspace: a.workspace,
		Proxy:     a.ingress,
		Mail:      a.mail,
		Clone: func(ctx context.Context, repoURL, dest string) error {
			return git.Clone(ctx, runner, repoURL, dest)
		},
		Runner:   runner,
		Observer: a.metrics.ObserveOperation,
	}
	if a.docker != nil {
		tdDeps.Sweeper = a.docker
		pDeps.Stats = a.docker
	}
	a.teardown = teardown.New(tdDeps, a.metrics.ObserveTeardownStep, log.With("component", "teardown"))
	pDeps.Teardown = a.teardown
	a.projects = project.New(pDeps, project.Config{
		BasePort:   cfg.BasePort,
		ScratchDir: cfg.ScratchDir,
	}, log.With("component", "project"))
	return a, nil
}

// reloader picks how nginx applies a validated configuration: signalling a
// container, a configured command, or the host systemd unit.
func (c *cli) reloader(runner system.Runner, services system.ServiceManager, client *docker.Client) (ingress.Reloader, error) {
	switch {
	case c.cfg.NginxContainerName != "":
		if client == nil {
			return nil, fmt.Errorf("nginx container %q configured but docker is unavailable", c.cfg.NginxContainerName)
		}
		return ingress.NewDockerReloader(client, c.cfg.NginxContainerName)
	case c.cfg.NginxReloadCommand != "":
		return ingress.NewCommandReloader(runner, c.cfg.NginxReloadCommand)
	default:
		return ingress.NewSystemdReloader(services), nil
	}
}

func (a *app) Close() {
	if a.docker != nil {
		_ = a.docker.Close()
	}
}
