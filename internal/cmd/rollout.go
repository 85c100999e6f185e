package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/errors"
	"github.com/felixgeelhaar/deckhand/internal/health"
	"github.com/felixgeelhaar/deckhand/internal/rollout"
)

type rolloutOpts struct {
	*rootOpts
}

func newRollout(parent *rootOpts) *rolloutOpts {
	return &rolloutOpts{rootOpts: parent}
}

func (opts *rolloutOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollout <image> [target-dir] [service-name]",
		Short: "Replace the running container of a service with a new image",
		Long: `Roll out an image on the target host:

  1. pull the image
  2. pin the service to it in the override manifest
  3. remove prior containers bound to the service port or built from the same repository
  4. docker compose up -d --remove-orphans
  5. poll the health URL (15 attempts, 2s apart by default)
  6. prune dangling images

target-dir defaults to /opt/app and service-name to app. If the health check
fails, the compose status and recent logs are printed and the command exits 1.
The new image is left running; re-run rollout with the previous image to go back.

Commands run locally unless --host is set, in which case they run over SSH.

Examples:
  deckhand rollout ghcr.io/acme/shop:3f9c2ab
  deckhand rollout ghcr.io/acme/shop-api:3f9c2ab /srv/shop api --health-url http://localhost:8080/health
  deckhand rollout ghcr.io/acme/shop:3f9c2ab --host deploy.example.com --ssh-user deploy --ssh-key ~/.ssh/deploy`,
		Args: cobra.MaximumNArgs(3),
		RunE: opts.RunE,
	}

	defaults := config.Default()
	f := cmd.Flags()
	addHealthFlags(f, defaults)
	f.Int("port", 0, "host port of the service (default: read from the base manifest)")
	f.String("repo", "", "repository whose prior containers are superseded (default: from the image)")
	f.String("compose-file", defaults.Rollout.ComposeFile, "base manifest in the target directory")
	f.String("override-file", defaults.Rollout.OverrideFile, "override manifest written by rollout")
	f.String("restart", defaults.Rollout.Restart, "restart policy pinned in the override manifest")
	bindConfigKey(f, "port", "rollout.port")
	bindConfigKey(f, "repo", "rollout.repo")
	bindConfigKey(f, "compose-file", "rollout.compose_file")
	bindConfigKey(f, "override-file", "rollout.override_file")
	bindConfigKey(f, "restart", "rollout.restart")
	addTargetFlags(f, defaults)
	return cmd
}

func addHealthFlags(f *pflag.FlagSet, defaults *config.Config) {
	f.String("health-url", defaults.Health.URL, "liveness URL polled after start")
	f.Int("retries", defaults.Health.Retries, "health attempts before giving up")
	f.Duration("delay", defaults.Health.Delay, "wait between health attempts")
	f.Duration("timeout", defaults.Health.Timeout, "timeout of one health attempt")
	bindConfigKey(f, "health-url", "health.url")
	bindConfigKey(f, "retries", "health.retries")
	bindConfigKey(f, "delay", "health.delay")
	bindConfigKey(f, "timeout", "health.timeout")
}

func addTargetFlags(f *pflag.FlagSet, defaults *config.Config) {
	f.String("host", "", "run on this host over SSH instead of locally")
	f.String("ssh-user", "", "SSH user")
	f.String("ssh-key", "", "SSH private key file")
	f.Int("ssh-port", defaults.Target.Port, "SSH port")
	f.String("known-hosts", defaults.Target.KnownHosts, "known_hosts file used to verify the host key")
	f.Bool("insecure-ignore-host-key", false, "accept any SSH host key (throwaway hosts only)")
	bindConfigKey(f, "host", "target.host")
	bindConfigKey(f, "ssh-user", "target.user")
	bindConfigKey(f, "ssh-key", "target.key")
	bindConfigKey(f, "ssh-port", "target.port")
	bindConfigKey(f, "known-hosts", "target.known_hosts")
	bindConfigKey(f, "insecure-ignore-host-key", "target.insecure_ignore_host_key")
}

func (opts *rolloutOpts) RunE(cmd *cobra.Command, args []string) error {
	cfg := opts.cfg
	req := rollout.Request{Dir: cfg.Rollout.Dir, Service: cfg.Rollout.Service}
	if len(args) > 0 {
		req.Image = args[0]
	}
	if len(args) > 1 {
		req.Dir = args[1]
	}
	if len(args) > 2 {
		req.Service = args[2]
	}

	if req.Image == "" {
		return errors.NewUsageError(rollout.Usage)
	}

	for _, v := range []interface{ Validate() error }{cfg.Rollout, cfg.Health} {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	host, err := opts.openTarget(cfg.Target)
	if err != nil {
		return err
	}
	defer closeHost(host, opts.logger)

	verifier := health.NewVerifier(verifierConfig(cfg.Health),
		health.WithLogger(opts.logger),
		health.WithMetrics(opts.metrics),
	)
	executor := rollout.New(host, verifier, rollout.Options{
		ComposeFile:  cfg.Rollout.ComposeFile,
		OverrideFile: cfg.Rollout.OverrideFile,
		Restart:      cfg.Rollout.Restart,
		Port:         cfg.Rollout.Port,
		Repo:         cfg.Rollout.Repo,
		LogTail:      cfg.Rollout.LogTail,
	},
		rollout.WithLogger(opts.logger),
		rollout.WithMetrics(opts.metrics),
		rollout.WithDiagnoser(opts.newRegistry(cfg.Registry)),
		rollout.WithDiagnostics(cmd.ErrOrStderr()),
		rollout.WithTracerProvider(opts.tracing.TracerProvider()),
	)

	outcome, err := executor.Run(cmd.Context(), req)
	if outcome != nil {
		if perr := opts.print(cmd, outcome); perr != nil && err == nil {
			return perr
		}
	}
	return err
}

func verifierConfig(h config.HealthConfig) health.VerifierConfig {
	return health.VerifierConfig{
		URL:     h.URL,
		Retries: h.Retries,
		Delay:   h.Delay,
		Timeout: h.Timeout,
	}
}
