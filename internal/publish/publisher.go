// Package publish builds one image per service of a compose manifest, tags
// each with the version tag and pushes them to the registry.
package publish

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/felixgeelhaar/deckhand/internal/config"
	"github.com/felixgeelhaar/deckhand/internal/errors"
	"github.com/felixgeelhaar/deckhand/internal/exec"
	"github.com/felixgeelhaar/deckhand/internal/log"
	"github.com/felixgeelhaar/deckhand/internal/manifest"
	"github.com/felixgeelhaar/deckhand/internal/metrics"
	"github.com/felixgeelhaar/deckhand/internal/patch"
	"github.com/felixgeelhaar/deckhand/internal/registry"
	"github.com/felixgeelhaar/deckhand/internal/tag"
	"github.com/felixgeelhaar/deckhand/internal/telemetry"
)

// Config is what one publish run needs.
type Config struct {
	Registry config.RegistryConfig
	Publish  config.PublishConfig
}

// DigestResolver looks up the digest a registry serves for a reference.
type DigestResolver interface {
	Digest(ctx context.Context, ref string) (string, error)
}

// Image is one published service image.
type Image struct {
	Service string `json:"service" yaml:"service"`
	Ref     string `json:"ref" yaml:"ref"`
	Digest  string `json:"digest,omitempty" yaml:"digest,omitempty"`
	Pushed  bool   `json:"pushed" yaml:"pushed"`
}

// Result reports a publish run. On failure it holds whatever completed.
type Result struct {
	ID       string        `json:"id" yaml:"id"`
	Tag      tag.Tag       `json:"tag" yaml:"tag"`
	Images   []Image       `json:"images" yaml:"images"`
	Workflow *patch.Result `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Publisher runs the publish procedure on a host, normally the CI machine.
type Publisher struct {
	cfg     Config
	host    exec.Host
	docker  *exec.Docker
	git     tag.RevisionReader
	digests DigestResolver
	logger  *log.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option { return func(p *Publisher) { p.logger = l } }

// WithMetrics records builds and pushes.
func WithMetrics(m *metrics.Metrics) Option { return func(p *Publisher) { p.metrics = m } }

// WithTracerProvider emits a publish span with children for each build
// and push.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Publisher) { p.tracer = tp.Tracer(telemetry.TracerPublish) }
}

// WithDigestResolver enables digest lookup after each push.
func WithDigestResolver(d DigestResolver) Option { return func(p *Publisher) { p.digests = d } }

// WithGit overrides the local revision source.
func WithGit(g tag.RevisionReader) Option { return func(p *Publisher) { p.git = g } }

// WithClock overrides time.Now, used by the timestamp tag.
func WithClock(now func() time.Time) Option { return func(p *Publisher) { p.now = now } }

// New creates a Publisher.
func New(cfg Config, host exec.Host, options ...Option) *Publisher {
	p := &Publisher{
		cfg:    cfg,
		host:   host,
		docker: exec.NewDocker(host),
		git:    exec.NewGit(host, cfg.Publish.Dir),
		logger: log.Discard(),
		tracer: noop.NewTracerProvider().Tracer(""),
		now:    time.Now,
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// ResolveTag returns the version tag without publishing anything.
func (p *Publisher) ResolveTag(ctx context.Context) tag.Tag {
	r := tag.Resolver{ExternalCommit: p.cfg.Publish.CommitSHA, Git: p.git, Now: p.now}
	return r.Resolve(ctx)
}

// Run validates, resolves the tag, patches the workflow file, builds every
// service, logs in once and pushes each image in turn. The first failing
// push aborts the rest.
func (p *Publisher) Run(ctx context.Context) (result *Result, err error) {
	start := time.Now()
	result = &Result{ID: uuid.New().String()}
	ctx, span := p.tracer.Start(ctx, "publish", trace.WithAttributes(attribute.String("deckhand.publish_id", result.ID)))
	defer func() {
		result.Duration = time.Since(start)
		p.metrics.RecordPublish(err)
		span.SetAttributes(attribute.String("deckhand.tag", result.Tag.Value), attribute.Int("deckhand.images", len(result.Images)))
		telemetry.End(span, err)
	}()

	if err := p.cfg.Registry.Validate(); err != nil {
		return result, err
	}
	if err := p.cfg.Publish.Validate(); err != nil {
		return result, err
	}
	registryHost, err := registry.Host(p.cfg.Registry.Repo)
	if err != nil {
		return result, errors.NewConfigInvalidError("registry.repo", err.Error())
	}

	result.Tag = p.ResolveTag(ctx)
	logger := p.logger.With("publish_id", result.ID, "tag", result.Tag.Value)
	logger.Info("version tag resolved", "source", result.Tag.Source)

	if p.cfg.Publish.Workflow != "" {
		res, err := patch.ReplacePlaceholder(p.cfg.Publish.Workflow, p.cfg.Publish.Placeholder, result.Tag.Value)
		if err != nil {
			return result, err
		}
		result.Workflow = res
		if !res.Changed() {
			logger.Warn("placeholder not found; workflow file left unchanged",
				"path", res.Path, "placeholder", res.Token)
		} else {
			logger.Info("workflow file patched", "path", res.Path, "replacements", res.Replacements)
		}
	}

	manifestPath := p.cfg.Publish.Manifest
	if !filepath.IsAbs(manifestPath) {
		manifestPath = filepath.Join(p.cfg.Publish.Dir, manifestPath)
	}
	file, err := p.loadManifest(ctx, manifestPath)
	if err != nil {
		return result, err
	}

	descriptors, err := file.Descriptors(p.cfg.Registry.Repo, result.Tag.Value)
	if err != nil {
		return result, err
	}
	for _, d := range descriptors {
		result.Images = append(result.Images, Image{Service: d.Name, Ref: d.Image})
	}

	compose, cleanup, err := p.writeTagManifest(ctx, manifestPath, descriptors)
	if err != nil {
		return result, err
	}
	defer cleanup()

	for _, d := range descriptors {
		buildStart := time.Now()
		logger.Info("building image", "step", "build", "service", d.Name, "image", d.Image)
		bctx, bspan := p.tracer.Start(ctx, "publish.build", trace.WithAttributes(attribute.String("deckhand.service", d.Name)))
		err := p.docker.ComposeBuild(bctx, compose, d.Name, exec.BuildOptions{Pull: true, NoCache: true})
		telemetry.End(bspan, err)
		p.metrics.RecordBuild(d.Name, time.Since(buildStart), err)
		if err != nil {
			return result, errors.NewBuildError(d.Name, err)
		}
	}

	if err := p.docker.Login(ctx, registryHost, p.cfg.Registry.Username, p.cfg.Registry.Token); err != nil {
		return result, errors.NewLoginError(registryHost, err)
	}
	logger.Info("logged in to registry", "registry", registryHost)

	for i := range result.Images {
		img := &result.Images[i]
		pctx, pspan := p.tracer.Start(ctx, "publish.push", trace.WithAttributes(attribute.String("deckhand.image", img.Ref)))
		err := p.docker.Push(pctx, img.Ref)
		telemetry.End(pspan, err)
		p.metrics.RecordPush(err)
		if err != nil {
			return result, errors.NewPushError(img.Ref, registry.Classify(err, img.Ref))
		}
		img.Pushed = true

		if p.digests != nil {
			digest, err := p.digests.Digest(ctx, img.Ref)
			if err != nil {
				logger.WithError(err).Warn("could not resolve pushed digest", "image", img.Ref)
			} else {
				img.Digest = digest
			}
		}
		logger.Info("image pushed", "step", "push", "service", img.Service, "image", img.Ref, "digest", img.Digest)
	}

	logger.Info("publish complete", "images", len(result.Images))
	return result, nil
}

func (p *Publisher) loadManifest(ctx context.Context, path string) (*manifest.File, error) {
	data, err := p.host.ReadFile(ctx, path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return nil, errors.NewFileNotFoundError(path)
		}
		return nil, errors.Wrap(errors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	return manifest.Parse(data, path)
}

// writeTagManifest writes the transient override that names every service's
// image and returns the compose project layering it over the base manifest.
// The cleanup func removes it and runs even if ctx was cancelled.
func (p *Publisher) writeTagManifest(ctx context.Context, manifestPath string, descriptors []manifest.Descriptor) (exec.Compose, func(), error) {
	data, err := manifest.TagOverride(descriptors).Marshal()
	if err != nil {
		return exec.Compose{}, nil, err
	}

	dir := filepath.Dir(manifestPath)
	name := fmt.Sprintf(".deckhand-tags-%s.yml", uuid.New().String()[:8])
	tagsPath := filepath.Join(dir, name)

	if err := p.host.WriteFile(ctx, tagsPath, data, 0o600); err != nil {
		return exec.Compose{}, nil, errors.NewFileWriteError(tagsPath, err)
	}

	cleanup := func() {
		if err := p.host.RemoveFile(context.WithoutCancel(ctx), tagsPath); err != nil {
			p.logger.WithError(err).Warn("could not remove transient tag manifest", "path", tagsPath)
		}
	}
	return exec.Compose{Dir: dir, Files: []string{filepath.Base(manifestPath), name}}, cleanup, nil
}
