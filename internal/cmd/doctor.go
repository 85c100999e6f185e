package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/errors"
	"github.com/felixgeelhaar/deckhand/internal/exec"
	"github.com/felixgeelhaar/deckhand/internal/health"
)

type doctorOpts struct {
	*rootOpts
	endpoint bool
	timeout  time.Duration
}

func newDoctor(parent *rootOpts) *doctorOpts {
	return &doctorOpts{rootOpts: parent}
}

func (opts *doctorOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that a host can run rollouts",
		Long: `Check the tools rollout depends on, in parallel:

  docker-daemon      the docker daemon answers
  docker-compose     the compose plugin is installed (v2 or later)
  git-binary         git is installed (needed by publish for the version tag)
  liveness-endpoint  the health URL answers 200 (with --endpoint)

Exits 1 when any check is unhealthy. Degraded checks only warn.

Examples:
  deckhand doctor
  deckhand doctor --host deploy.example.com --ssh-user deploy --ssh-key ~/.ssh/deploy
  deckhand doctor --endpoint -o json`,
		Args: cobra.NoArgs,
		RunE: opts.RunE,
	}

	defaults := config.Default()
	f := cmd.Flags()
	f.BoolVar(&opts.endpoint, "endpoint", false, "also probe the health URL")
	f.String("health-url", defaults.Health.URL, "liveness URL probed with --endpoint")
	f.DurationVar(&opts.timeout, "check-timeout", 10*time.Second, "timeout of each check")
	bindConfigKey(f, "health-url", "health.url")
	addTargetFlags(f, defaults)
	return cmd
}

func (opts *doctorOpts) RunE(cmd *cobra.Command, _ []string) error {
	host, err := opts.openTarget(opts.cfg.Target)
	if err != nil {
		return err
	}
	defer closeHost(host, opts.logger)

	docker := exec.NewDocker(host)
	manager := health.NewManager().WithTimeout(opts.timeout)
	manager.AddChecker(health.NewDockerChecker(docker))
	manager.AddChecker(health.NewComposeChecker(docker))
	manager.AddChecker(health.NewGitChecker(host))
	if opts.endpoint {
		manager.AddChecker(health.NewEndpointChecker(opts.cfg.Health.URL, opts.cfg.Health.Timeout))
	}

	report := manager.Run(cmd.Context())
	opts.logger.Info("host diagnostics complete", "host", host.Name(), "status", report.Status)
	if err := opts.print(cmd, report); err != nil {
		return err
	}

	if report.Status == health.StatusUnhealthy {
		return errors.NewHostUnhealthyError(host.Name(), report.Failed())
	}
	return nil
}
