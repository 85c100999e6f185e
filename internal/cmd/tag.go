package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/publish"
)

type tagOpts struct {
	*rootOpts
}

func newTag(parent *rootOpts) *tagOpts {
	return &tagOpts{rootOpts: parent}
}

func (opts *tagOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Print the version tag publish would use",
		Long: `Print the version tag: the external commit id truncated to 7 characters,
else the local git revision, else a UTC timestamp (YYYYMMDDHHMMSS).

Examples:
  IMAGE=ghcr.io/acme/shop:$(deckhand tag)
  deckhand tag -o json`,
		Args: cobra.NoArgs,
		RunE: opts.RunE,
	}
	cmd.Flags().String("dir", config.Default().Publish.Dir, "working tree queried for the git revision")
	bindConfigKey(cmd.Flags(), "dir", "publish.dir")
	return cmd
}

func (opts *tagOpts) RunE(cmd *cobra.Command, _ []string) error {
	host, err := opts.newHost(config.TargetConfig{})
	if err != nil {
		return err
	}
	defer closeHost(host, opts.logger)

	t := publish.New(publish.Config{Registry: opts.cfg.Registry, Publish: opts.cfg.Publish}, host).
		ResolveTag(cmd.Context())
	opts.logger.Debug("version tag resolved", "tag", t.Value, "source", t.Source)
	return opts.print(cmd, t)
}
