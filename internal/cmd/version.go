package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/deckhand/internal/ux"
	"github.com/felixgeelhaar/deckhand/internal/version"
)

type versionOpts struct {
	*rootOpts
	verbose bool
}

func newVersion(parent *rootOpts) *versionOpts {
	return &versionOpts{rootOpts: parent}
}

func (opts *versionOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
		Args: cobra.NoArgs,
		RunE: opts.RunE,
	}
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "show detailed version information")
	return cmd
}

func (opts *versionOpts) RunE(cmd *cobra.Command, _ []string) error {
	info := version.GetInfo()

	if opts.format != ux.FormatText {
		return opts.print(cmd, info)
	}
	if opts.verbose {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "deckhand %s\n", info.Short())
	return err
}
