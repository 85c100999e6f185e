package cmd

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/errors"
	"github.com/felixgeelhaar/deckhand/internal/exec"
	"github.com/felixgeelhaar/deckhand/internal/log"
	"github.com/felixgeelhaar/deckhand/internal/metrics"
	"github.com/felixgeelhaar/deckhand/internal/registry"
	"github.com/felixgeelhaar/deckhand/internal/telemetry"
	"github.com/felixgeelhaar/deckhand/internal/ux"
	"github.com/felixgeelhaar/deckhand/internal/version"
)

// configKeyAnnotation marks a flag as an override of a config key.
const configKeyAnnotation = "deckhand.config-key"

var rootLongHelp = strings.TrimSpace(`
deckhand builds, publishes and rolls out container images.

Workflow:
  deckhand publish                                   # in CI: build and push one image per service
  deckhand rollout ghcr.io/acme/shop:3f9c2ab         # on the target: replace the running container
  deckhand rollout ghcr.io/acme/shop:3f9c2ab \
      --host deploy.example.com --ssh-user deploy    # or drive the target over SSH
  deckhand verify http://localhost:3000/health       # poll a liveness endpoint

Settings come from ./.deckhand.yaml (or --config), DECKHAND_* environment
variables and flags, in increasing priority.
`)

type rootOpts struct {
	configFile  string
	logLevel    string
	logFormat   string
	output      string
	format      ux.Format
	noColor     bool
	metricsFile string

	cfg      *config.Config
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	tracing  *telemetry.Provider

	// newHost opens the machine commands run on. Tests replace it, along
	// with newRegistry.
	newHost     func(config.TargetConfig) (exec.Host, error)
	newRegistry func(config.RegistryConfig) registryAPI
}

// registryAPI is the part of the registry client commands use.
type registryAPI interface {
	Digest(ctx context.Context, ref string) (string, error)
	Diagnose(ctx context.Context, ref string) error
}

func newRoot() *rootOpts {
	reg, m := metrics.NewRegistry()
	return &rootOpts{
		registry:    reg,
		metrics:     m,
		logger:      log.Discard(),
		tracing:     telemetry.Noop(),
		newHost:     openHost,
		newRegistry: openRegistry,
	}
}

func (opts *rootOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "deckhand",
		Short:             "Build, publish and roll out container images",
		Long:              rootLongHelp,
		Version:           version.GetInfo().Short(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: opts.PersistentPreRunE,
	}

	defaults := config.Default()
	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configFile, "config", "", "config file (default ./"+config.DefaultFile+")")
	pf.StringVar(&opts.logLevel, "log-level", defaults.Log.Level, "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", defaults.Log.Format, "log format: json, text")
	pf.StringVarP(&opts.output, "output", "o", "text", "result format: text, json, yaml")
	pf.BoolVar(&opts.noColor, "no-color", false, "disable colored text output")
	pf.StringVar(&opts.metricsFile, "metrics-file", "", "write run metrics to this file in Prometheus text format")
	bindConfigKey(pf, "log-level", "log.level")
	bindConfigKey(pf, "log-format", "log.format")

	cmd.AddCommand(
		newPublish(opts).Command(),
		newRollout(opts).Command(),
		newVerify(opts).Command(),
		newTag(opts).Command(),
		newServe(opts).Command(),
		newDoctor(opts).Command(),
		newConfigCmd(opts).Command(),
		newVersion(opts).Command(),
	)
	return cmd
}

// PersistentPreRunE loads the configuration, with the flags of the running
// command layered on top, and sets up logging and tracing.
func (opts *rootOpts) PersistentPreRunE(cmd *cobra.Command, _ []string) error {
	format, err := ux.ParseFormat(opts.output)
	if err != nil {
		return errors.NewConfigInvalidError("--output", err.Error())
	}
	opts.format = format

	cfg, err := config.LoadWithFlags(opts.configFile, configFlags(cmd.Flags()))
	if err != nil {
		return err
	}
	opts.cfg = cfg

	logCfg := log.ConfigFrom(cfg.Log.Level, cfg.Log.Format, version.Version)
	logCfg.Output = cmd.ErrOrStderr()
	logCfg.Secrets = []string{cfg.Registry.Token}
	opts.logger = log.New(logCfg).With("command", cmd.Name())
	log.SetDefaultLogger(opts.logger)

	if err := cfg.Trace.Validate(); err != nil {
		return err
	}
	tracing, err := telemetry.Start(cmd.Context(), telemetry.Config{
		Endpoint:    cfg.Trace.Endpoint,
		SampleRatio: cfg.Trace.SampleRatio,
		Version:     version.Version,
	})
	if err != nil {
		return errors.NewConfigInvalidError("trace.endpoint", err.Error())
	}
	opts.tracing = tracing
	cmd.SetContext(telemetry.ContextFromEnv(cmd.Context()))
	return nil
}

// bindConfigKey marks flag name as the command-line override of key.
func bindConfigKey(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

// configFlags collects every annotated flag visible to a command, keyed by
// the config key it overrides.
func configFlags(fs *pflag.FlagSet) map[string]*pflag.Flag {
	flags := make(map[string]*pflag.Flag)
	fs.VisitAll(func(f *pflag.Flag) {
		if keys, ok := f.Annotations[configKeyAnnotation]; ok && len(keys) > 0 {
			flags[keys[0]] = f
		}
	})
	return flags
}

// openTarget validates target and opens it, warning when host key
// verification is switched off.
func (opts *rootOpts) openTarget(target config.TargetConfig) (exec.Host, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if target.Remote() && target.InsecureIgnoreHostKey {
		opts.logger.Warn("ssh host key verification disabled; any server key is accepted", "host", target.Host)
	}
	return opts.newHost(target)
}

func openHost(target config.TargetConfig) (exec.Host, error) {
	if !target.Remote() {
		return exec.NewLocalHost(), nil
	}
	cfg := exec.SSHConfig{
		Host:                  target.Host,
		User:                  target.User,
		Port:                  target.Port,
		KeyPath:               target.Key,
		InsecureIgnoreHostKey: target.InsecureIgnoreHostKey,
	}
	if !target.InsecureIgnoreHostKey {
		path, err := target.KnownHostsFile()
		if err != nil {
			return nil, errors.NewConfigInvalidError("target.known_hosts", err.Error())
		}
		cfg.KnownHostsPath = path
	}
	return exec.NewSSHHost(cfg)
}

// openRegistry authenticates with the push credentials when set, else with
// the docker credential store.
func openRegistry(c config.RegistryConfig) registryAPI {
	return registry.New(registry.Options{Username: c.Username, Token: c.Token})
}

func closeHost(host exec.Host, logger *log.Logger) {
	if c, ok := host.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.WithError(err).Warn("failed to close host connection", "host", host.Name())
		}
	}
}

// print writes a command result in the selected --output format.
func (opts *rootOpts) print(cmd *cobra.Command, v any) error {
	return ux.NewPrinter(cmd.OutOrStdout(), opts.format, opts.noColor).Print(v)
}

// finish flushes pending spans and exports the run's metrics when
// --metrics-file is set. A failed export does not mask the command's own error.
func (opts *rootOpts) finish(err error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if serr := opts.tracing.Shutdown(ctx); serr != nil {
		opts.logger.WithError(serr).Warn("failed to flush traces")
	}

	if opts.metricsFile == "" {
		return err
	}
	if werr := metrics.WriteTextfile(opts.registry, opts.metricsFile); werr != nil {
		if err != nil {
			opts.logger.WithError(werr).Warn("failed to write metrics file", "path", opts.metricsFile)
			return err
		}
		return errors.NewFileWriteError(opts.metricsFile, werr)
	}
	return err
}

// NewRootCommand builds the deckhand command tree.
func NewRootCommand() *cobra.Command {
	return newRoot().Command()
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with a context that commands use for
// cancellation.
func ExecuteContext(ctx context.Context) error {
	opts := newRoot()
	return opts.finish(opts.Command().ExecuteContext(ctx))
}
