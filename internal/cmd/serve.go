package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/server"
)

type serveOpts struct {
	*rootOpts
	shutdownTimeout time.Duration
}

func newServe(parent *rootOpts) *serveOpts {
	return &serveOpts{rootOpts: parent}
}

func (opts *serveOpts) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the liveness responder",
		Long: `Serve a minimal HTTP application for the health verifier:

  GET /         greeting text
  GET /health   {"status":"ok","timestamp":"<RFC3339>"}
  GET /metrics  Prometheus metrics

The server drains connections and exits 0 on SIGINT or SIGTERM.

Examples:
  deckhand serve
  deckhand serve --port 8080 --greeting "Hello from shop"`,
		Args: cobra.NoArgs,
		RunE: opts.RunE,
	}

	defaults := config.Default()
	f := cmd.Flags()
	f.String("address", defaults.Server.Address, "address to bind to")
	f.Int("port", defaults.Server.Port, "port to listen on")
	f.String("greeting", defaults.Server.Greeting, "body of GET /")
	f.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 30*time.Second, "maximum time to drain connections on shutdown")
	bindConfigKey(f, "address", "server.address")
	bindConfigKey(f, "port", "server.port")
	bindConfigKey(f, "greeting", "server.greeting")
	return cmd
}

func (opts *serveOpts) RunE(cmd *cobra.Command, _ []string) error {
	sc := opts.cfg.Server
	if err := sc.Validate(); err != nil {
		return err
	}

	srv := server.NewServer(server.Config{
		Address:         sc.Address,
		Port:            sc.Port,
		Greeting:        sc.Greeting,
		ShutdownTimeout: opts.shutdownTimeout,
	},
		server.WithLogger(opts.logger),
		server.WithMetrics(opts.metrics, opts.registry),
	)
	return srv.Run(cmd.Context())
}
