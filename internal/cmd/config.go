package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/ux"
)

type configOpts struct {
	*rootOpts
}

func newConfigCmd(parent *rootOpts) *configOpts {
	return &configOpts{rootOpts: parent}
}

func (opts *configOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
		Long: `Inspect the configuration resolved from the config file, DECKHAND_*
environment variables and defaults.

Examples:
  # Show the effective configuration (the registry token is never printed)
  deckhand config view

  # Check every section, e.g. before a CI run
  deckhand config validate

  # Show which config file is used
  deckhand config path`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "view",
			Short: "Display the effective configuration",
			Args:  cobra.NoArgs,
			RunE:  opts.runView,
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate every configuration section",
			Args:  cobra.NoArgs,
			RunE:  opts.runValidate,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the configuration file path",
			Args:  cobra.NoArgs,
			RunE:  opts.runPath,
		},
	)
	return cmd
}

func (opts *configOpts) runView(cmd *cobra.Command, _ []string) error {
	format := opts.format
	if format == ux.FormatText {
		format = ux.FormatYAML
	}
	return ux.NewPrinter(cmd.OutOrStdout(), format, true).Print(opts.cfg)
}

func (opts *configOpts) runValidate(cmd *cobra.Command, _ []string) error {
	cfg := opts.cfg
	sections := []struct {
		name string
		v    interface{ Validate() error }
	}{
		{"registry", cfg.Registry},
		{"publish", cfg.Publish},
		{"rollout", cfg.Rollout},
		{"health", cfg.Health},
		{"target", cfg.Target},
		{"server", cfg.Server},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return err
		}
		opts.logger.Debug("config section valid", "section", s.name)
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
	return err
}

func (opts *configOpts) runPath(cmd *cobra.Command, _ []string) error {
	path := opts.configFile
	if path == "" {
		path = config.DefaultFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), abs)
	return err
}
