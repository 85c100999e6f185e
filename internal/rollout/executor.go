// Package rollout replaces the running container of one service on a target
// host with a new image and gates the result on the service's liveness check.
package rollout

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/felixgeelhaar/deckhand/internal/errors"
	"github.com/felixgeelhaar/deckhand/internal/exec"
	"github.com/felixgeelhaar/deckhand/internal/health"
	"github.com/felixgeelhaar/deckhand/internal/log"
	"github.com/felixgeelhaar/deckhand/internal/manifest"
	"github.com/felixgeelhaar/deckhand/internal/metrics"
	"github.com/felixgeelhaar/deckhand/internal/registry"
	"github.com/felixgeelhaar/deckhand/internal/tag"
	"github.com/felixgeelhaar/deckhand/internal/telemetry"
)

// Defaults for Request fields left empty.
const (
	DefaultDir     = "/opt/app"
	DefaultService = "app"
)

// Usage is the command-line synopsis shown when the image is missing.
const Usage = "deckhand rollout <image> [target-dir] [service-name]"

// Request names what to roll out and where.
type Request struct {
	Image   string
	Dir     string
	Service string
}

// Options holds the rollout settings shared by every request.
type Options struct {
	ComposeFile  string
	OverrideFile string
	Restart      string
	Port         int    // 0 reads the port from the base manifest
	Repo         string // empty derives it from the image
	LogTail      int
}

// Verifier gates a rollout on the service's liveness.
type Verifier interface {
	Verify(ctx context.Context) (*health.Verification, error)
}

// Diagnoser explains pull failures by asking the registry directly.
type Diagnoser interface {
	Diagnose(ctx context.Context, ref string) error
}

// Executor runs the rollout pipeline on one host.
type Executor struct {
	host        exec.Host
	docker      *exec.Docker
	verifier    Verifier
	diagnoser   Diagnoser
	opts        Options
	logger      *log.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	diagnostics io.Writer
	now         func() time.Time
}

// Option customizes an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(e *Executor) { e.logger = l } }

// WithMetrics records step timings and results.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Executor) { e.metrics = m } }

// WithTracerProvider emits one span per rollout with a child per step.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracer = tp.Tracer(telemetry.TracerRollout) }
}

// WithDiagnoser classifies pull failures against the registry.
func WithDiagnoser(d Diagnoser) Option { return func(e *Executor) { e.diagnoser = d } }

// WithDiagnostics sets where the failure dump is written.
func WithDiagnostics(w io.Writer) Option { return func(e *Executor) { e.diagnostics = w } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(e *Executor) { e.now = now } }

// New creates an Executor. Empty options take the compose defaults.
func New(host exec.Host, verifier Verifier, opts Options, options ...Option) *Executor {
	if opts.ComposeFile == "" {
		opts.ComposeFile = "docker-compose.yml"
	}
	if opts.OverrideFile == "" {
		opts.OverrideFile = "docker-compose.deploy.yml"
	}
	if opts.Restart == "" {
		opts.Restart = "unless-stopped"
	}
	if opts.LogTail <= 0 {
		opts.LogTail = 200
	}

	e := &Executor{
		host:        host,
		docker:      exec.NewDocker(host),
		verifier:    verifier,
		opts:        opts,
		logger:      log.Discard(),
		tracer:      noop.NewTracerProvider().Tracer(""),
		diagnostics: io.Discard,
		now:         time.Now,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

type state struct {
	req     Request
	compose exec.Compose
	repo    string
	port    int
	outcome *Outcome
}

type step struct {
	name string
	fn   func(ctx context.Context, st *state) error
}

// Run executes pull, pin, supersede, start, verify and prune in order and
// stops at the first failing step. The returned Outcome is non-nil whenever
// the request was valid, including on failure.
func (e *Executor) Run(ctx context.Context, req Request) (*Outcome, error) {
	if req.Image == "" {
		return nil, errors.NewUsageError(Usage)
	}
	if req.Dir == "" {
		req.Dir = DefaultDir
	}
	if req.Service == "" {
		req.Service = DefaultService
	}

	repo := e.opts.Repo
	if repo == "" {
		repo = registry.Repository(req.Image)
	}

	st := &state{
		req:     req,
		compose: exec.Compose{Dir: req.Dir, Files: []string{e.opts.ComposeFile, e.opts.OverrideFile}},
		repo:    repo,
		port:    e.opts.Port,
		outcome: &Outcome{
			ID:        uuid.New().String(),
			Host:      e.host.Name(),
			Image:     req.Image,
			Tag:       tag.FromImage(req.Image),
			Dir:       req.Dir,
			Service:   req.Service,
			StartedAt: e.now().UTC(),
		},
	}

	ctx, span := e.tracer.Start(ctx, "rollout", trace.WithAttributes(
		attribute.String("deckhand.rollout_id", st.outcome.ID),
		attribute.String("deckhand.service", req.Service),
		attribute.String("deckhand.image", req.Image),
		attribute.String("deckhand.host", e.host.Name()),
	))

	logger := e.logger.With("rollout_id", st.outcome.ID, "service", req.Service, "image", req.Image)
	logger.Info("rollout started", "host", e.host.Name(), "dir", req.Dir)

	steps := []step{
		{name: "pull", fn: e.pull},
		{name: "pin", fn: e.pin},
		{name: "supersede", fn: e.supersede},
		{name: "start", fn: e.start},
		{name: "verify", fn: e.verify},
		{name: "prune", fn: e.prune},
	}

	var runErr error
	for _, s := range steps {
		logger.Info("step started", "step", s.name)

		sctx, sspan := e.tracer.Start(ctx, "rollout."+s.name)
		start := time.Now()
		err := s.fn(sctx, st)
		elapsed := time.Since(start)
		telemetry.End(sspan, err)
		e.metrics.ObserveStep(s.name, elapsed)

		result := StepResult{Name: s.name, Duration: elapsed}
		if err != nil {
			result.Error = err.Error()
		}
		st.outcome.Steps = append(st.outcome.Steps, result)

		if err != nil {
			logger.WithError(err).Error("step failed", "step", s.name)
			st.outcome.FailedStep = s.name
			st.outcome.Error = err.Error()
			runErr = err
			break
		}
		logger.Info("step complete", "step", s.name, "duration", elapsed)
	}

	st.outcome.Success = runErr == nil
	st.outcome.Port = st.port
	st.outcome.FinishedAt = e.now().UTC()
	st.outcome.Duration = st.outcome.FinishedAt.Sub(st.outcome.StartedAt)
	e.metrics.RecordRollout(req.Service, runErr)
	span.SetAttributes(attribute.Int("deckhand.superseded", len(st.outcome.Supersede.Removed)))
	telemetry.End(span, runErr)

	if runErr == nil {
		logger.Info("rollout complete", "tag", st.outcome.Tag, "duration", st.outcome.Duration)
	}
	return st.outcome, runErr
}

func (e *Executor) pull(ctx context.Context, st *state) error {
	err := e.docker.Pull(ctx, st.req.Image)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	cause := registry.Classify(err, st.req.Image)
	if e.diagnoser != nil {
		if diag := e.diagnoser.Diagnose(ctx, st.req.Image); diag != nil {
			cause = fmt.Errorf("%w (docker: %v)", diag, err)
		}
	}
	pullErr := errors.NewPullError(st.req.Image, cause)
	if s := registrySuggestion(cause); s != "" {
		pullErr = pullErr.WithSuggestion(s)
	}
	return pullErr
}

func registrySuggestion(err error) string {
	var re *registry.Error
	if stderrors.As(err, &re) {
		return re.Suggestion
	}
	return ""
}

// pin writes the override manifest binding the service to the new image.
// The file is rewritten on every rollout.
func (e *Executor) pin(ctx context.Context, st *state) error {
	if st.port == 0 {
		st.port = e.portFromManifest(ctx, st)
	}

	data, err := manifest.Pin(st.req.Service, st.req.Image, e.opts.Restart).Marshal()
	if err != nil {
		return err
	}

	target := path.Join(st.req.Dir, e.opts.OverrideFile)
	if err := e.host.WriteFile(ctx, target, data, 0o644); err != nil {
		return errors.NewFileWriteError(target, err)
	}
	st.outcome.ManifestDigest = manifest.Digest(data)
	e.logger.Debug("override manifest written", "step", "pin", "path", target, "digest", st.outcome.ManifestDigest)
	return nil
}

func (e *Executor) portFromManifest(ctx context.Context, st *state) int {
	base := path.Join(st.req.Dir, e.opts.ComposeFile)
	data, err := e.host.ReadFile(ctx, base)
	if err != nil {
		e.logger.WithError(err).Warn("could not read base manifest; port pass disabled", "path", base)
		return 0
	}
	f, err := manifest.Parse(data, base)
	if err != nil {
		e.logger.WithError(err).Warn("could not parse base manifest; port pass disabled", "path", base)
		return 0
	}
	return f.HostPort(st.req.Service)
}

func (e *Executor) start(ctx context.Context, st *state) error {
	if err := e.docker.ComposeUp(ctx, st.compose, st.req.Service); err != nil {
		return errors.NewStartError(st.req.Service, err)
	}
	return nil
}

// verify gates on the liveness check and dumps compose state when it fails.
// The new container is left running.
func (e *Executor) verify(ctx context.Context, st *state) error {
	result, err := e.verifier.Verify(ctx)
	st.outcome.Health = result
	if err == nil {
		return nil
	}
	if errors.HasCode(err, errors.ErrCodeHealthCheckFailed) {
		st.outcome.Diagnostics = e.dumpDiagnostics(ctx, st)
		if previous := e.previousImage(st); previous != "" {
			var de *errors.DeckhandError
			if stderrors.As(err, &de) {
				de.WithSuggestion(fmt.Sprintf("Previous image: deckhand rollout %s %s %s", previous, st.req.Dir, st.req.Service))
			}
		}
	}
	return err
}

// previousImage returns the image of the first superseded container that is
// not the one being rolled out.
func (e *Executor) previousImage(st *state) string {
	for _, c := range st.outcome.Supersede.Removed {
		if c.Image != st.req.Image && BelongsTo(c.Image, st.repo) {
			return c.Image
		}
	}
	return ""
}

// dumpDiagnostics captures errors but never fails; the diagnostics context is
// detached so a cancelled rollout still gets its dump.
func (e *Executor) dumpDiagnostics(ctx context.Context, st *state) *Diagnostics {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	d := &Diagnostics{}
	ps, err := e.docker.ComposePS(dctx, st.compose)
	if err != nil {
		ps = fmt.Sprintf("%s\n(error: %v)", ps, err)
	}
	d.PS = ps

	logs, err := e.docker.ComposeLogs(dctx, st.compose, st.req.Service, e.opts.LogTail)
	if err != nil {
		logs = fmt.Sprintf("%s\n(error: %v)", logs, err)
	}
	d.Logs = logs

	fmt.Fprintf(e.diagnostics, "==> docker compose ps (%s)\n%s\n\n", st.req.Dir, d.PS)
	fmt.Fprintf(e.diagnostics, "==> docker compose logs --tail %d %s\n%s\n", e.opts.LogTail, st.req.Service, d.Logs)
	return d
}

// prune removes dangling images. It is best-effort.
func (e *Executor) prune(ctx context.Context, _ *state) error {
	out, err := e.docker.PruneImages(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("image prune failed", "step", "prune")
		return nil
	}
	e.logger.Debug("images pruned", "step", "prune", "output", out)
	return nil
}
