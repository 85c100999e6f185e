package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/publish"
)

type publishOpts struct {
	*rootOpts
}

func newPublish(parent *rootOpts) *publishOpts {
	return &publishOpts{rootOpts: parent}
}

func (opts *publishOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Build every service image and push it to the registry",
		Long: `Build one image per service declared in the build manifest, tag it with the
version tag and push it to the registry.

The version tag is the external commit id (DECKHAND_COMMIT_SHA or GITHUB_SHA,
truncated to 7 characters), else the local git revision, else a UTC timestamp.
A manifest with one service publishes <repo>:<tag>; with several, each service
publishes <repo>-<service>:<tag>.

Credentials come from DECKHAND_REGISTRY_REPO, DECKHAND_REGISTRY_USERNAME and
DECKHAND_REGISTRY_TOKEN.

Examples:
  # Publish the services of ./docker-compose.yml
  deckhand publish

  # Also stamp the tag into the deployment workflow
  deckhand publish --workflow .github/workflows/deploy.yml`,
		Args: cobra.NoArgs,
		RunE: opts.RunE,
	}

	defaults := config.Default()
	f := cmd.Flags()
	f.String("repo", "", "repository coordinate, e.g. ghcr.io/acme/shop")
	f.String("dir", defaults.Publish.Dir, "project directory builds run in")
	f.StringP("manifest", "f", defaults.Publish.Manifest, "build manifest, relative to --dir")
	f.String("workflow", "", "file whose placeholder is replaced with the version tag")
	f.String("placeholder", defaults.Publish.Placeholder, "token replaced in --workflow")
	bindConfigKey(f, "repo", "registry.repo")
	bindConfigKey(f, "dir", "publish.dir")
	bindConfigKey(f, "manifest", "publish.manifest")
	bindConfigKey(f, "workflow", "publish.workflow")
	bindConfigKey(f, "placeholder", "publish.placeholder")
	return cmd
}

func (opts *publishOpts) RunE(cmd *cobra.Command, _ []string) error {
	host, err := opts.newHost(config.TargetConfig{})
	if err != nil {
		return err
	}
	defer closeHost(host, opts.logger)

	p := publish.New(publish.Config{Registry: opts.cfg.Registry, Publish: opts.cfg.Publish}, host,
		publish.WithLogger(opts.logger),
		publish.WithMetrics(opts.metrics),
		publish.WithDigestResolver(opts.newRegistry(opts.cfg.Registry)),
		publish.WithTracerProvider(opts.tracing.TracerProvider()),
	)

	result, err := p.Run(cmd.Context())
	if len(result.Images) > 0 || err == nil {
		if perr := opts.print(cmd, result); perr != nil && err == nil {
			return perr
		}
	}
	return err
}
