package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/health"
)

type verifyOpts struct {
	*rootOpts
}

func newVerify(parent *rootOpts) *verifyOpts {
	return &verifyOpts{rootOpts: parent}
}

func (opts *verifyOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [url]",
		Short: "Poll a liveness URL until it answers 200",
		Long: `Poll a liveness URL with a fixed delay between attempts. Exits 0 on the
first 200 and 1 once every attempt has failed. A connection failure counts as
status 000.

Examples:
  deckhand verify
  deckhand verify http://10.0.0.5:3000/health --retries 30 --delay 1s`,
		Args: cobra.MaximumNArgs(1),
		RunE: opts.RunE,
	}
	addHealthFlags(cmd.Flags(), config.Default())
	return cmd
}

func (opts *verifyOpts) RunE(cmd *cobra.Command, args []string) error {
	h := opts.cfg.Health
	if len(args) == 1 {
		h.URL = args[0]
	}
	if err := h.Validate(); err != nil {
		return err
	}

	verifier := health.NewVerifier(verifierConfig(h),
		health.WithLogger(opts.logger),
		health.WithMetrics(opts.metrics),
	)
	v, err := verifier.Verify(cmd.Context())
	if v != nil {
		if perr := opts.print(cmd, v); perr != nil && err == nil {
			return perr
		}
	}
	return err
}
