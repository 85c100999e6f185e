package rollout

import (
	"context"
	"strings"

	"github.com/felixgeelhaar/deckhand/internal/exec"
)

// Supersession passes, in the order they run.
const (
	PassPort  = "port"
	PassImage = "image"
)

// BelongsTo reports whether image is a tag or digest of repo.
func BelongsTo(image, repo string) bool {
	if repo == "" {
		return false
	}
	return image == repo ||
		strings.HasPrefix(image, repo+":") ||
		strings.HasPrefix(image, repo+"@")
}

// supersede stops and removes prior containers in two passes: first those
// publishing the service's host port, then those running any tag of the
// repository. Failures are recorded, never returned.
func (e *Executor) supersede(ctx context.Context, st *state) error {
	handled := make(map[string]bool)

	passes := []struct {
		name  string
		match func(exec.Container) bool
	}{
		{PassPort, func(c exec.Container) bool { return st.port > 0 && c.PublishesPort(st.port) }},
		{PassImage, func(c exec.Container) bool { return BelongsTo(c.Image, st.repo) }},
	}

	for _, pass := range passes {
		containers, err := e.docker.ListContainers(ctx)
		if err != nil {
			e.logger.WithError(err).Warn("could not list containers; skipping supersession pass",
				"step", "supersede", "pass", pass.name)
			continue
		}

		for _, c := range containers {
			if handled[c.ID] || !pass.match(c) {
				continue
			}
			handled[c.ID] = true
			e.removeContainer(ctx, st, pass.name, c)
		}
	}
	return nil
}

func (e *Executor) removeContainer(ctx context.Context, st *state, pass string, c exec.Container) {
	entry := Superseded{ID: c.ID, Name: c.Names, Image: c.Image, Pass: pass}

	if err := e.docker.StopContainer(ctx, c.ID); err != nil {
		e.logger.WithError(err).Warn("stop failed; forcing removal", "container", c.Names)
	}
	err := e.docker.RemoveContainer(ctx, c.ID)
	e.metrics.RecordSupersede(pass, err)

	if err != nil {
		entry.Error = err.Error()
		st.outcome.Supersede.Failed = append(st.outcome.Supersede.Failed, entry)
		e.logger.WithError(err).Warn("could not remove prior container",
			"step", "supersede", "pass", pass, "container", c.Names, "image", c.Image)
		return
	}
	st.outcome.Supersede.Removed = append(st.outcome.Supersede.Removed, entry)
	e.logger.Info("removed prior container",
		"step", "supersede", "pass", pass, "container", c.Names, "image", c.Image)
}
