package ux

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/deckhand/internal/health"
	"github.com/felixgeelhaar/deckhand/internal/publish"
	"github.com/felixgeelhaar/deckhand/internal/rollout"
)

type textWriter struct {
	w   io.Writer
	s   Styles
	err error
}

func (t *textWriter) line(format string, args ...any) {
	if t.err != nil {
		return
	}
	_, t.err = fmt.Fprintf(t.w, format+"\n", args...)
}

func (t *textWriter) field(label, value string) {
	if value == "" {
		return
	}
	t.line("  %s %s", t.s.Label.Render(fmt.Sprintf("%-12s", label)), value)
}

func round(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

// RenderOutcome writes a rollout outcome as text.
func RenderOutcome(w io.Writer, o *rollout.Outcome, s Styles) error {
	t := &textWriter{w: w, s: s}

	if o.Success {
		t.line("%s %s", s.Success.Render("✓ rollout succeeded"), s.Muted.Render(o.ID))
	} else {
		t.line("%s %s", s.Failure.Render("✗ rollout failed at "+o.FailedStep), s.Muted.Render(o.ID))
	}
	t.field("image", s.Code.Render(o.Image))
	t.field("service", o.Service)
	t.field("dir", o.Dir)
	t.field("host", o.Host)
	if o.Port > 0 {
		t.field("port", fmt.Sprint(o.Port))
	}
	t.field("override", o.ManifestDigest)
	t.field("duration", round(o.Duration))

	if len(o.Steps) > 0 {
		steps := make([]string, 0, len(o.Steps))
		for _, st := range o.Steps {
			mark := st.Name
			if st.Error != "" {
				mark = s.Failure.Render(st.Name)
			}
			steps = append(steps, fmt.Sprintf("%s %s", mark, s.Muted.Render(round(st.Duration))))
		}
		t.field("steps", strings.Join(steps, ", "))
	}

	for _, c := range o.Supersede.Removed {
		t.field("removed", fmt.Sprintf("%s %s %s", c.Name, s.Muted.Render(c.Image), s.Muted.Render("("+c.Pass+")")))
	}
	for _, c := range o.Supersede.Failed {
		t.field("not removed", s.Warning.Render(fmt.Sprintf("%s %s: %s", c.Name, c.Image, c.Error)))
	}

	if o.Health != nil {
		t.field("health", verificationSummary(o.Health, s))
	}
	if o.Error != "" {
		t.line("")
		t.line("%s", s.Failure.Render(o.Error))
	}
	return t.err
}

func verificationSummary(v *health.Verification, s Styles) string {
	if v.Healthy {
		return s.Success.Render(fmt.Sprintf("healthy after %d attempt(s)", v.Attempts))
	}
	return s.Failure.Render(fmt.Sprintf("unhealthy after %d attempt(s), last status %s", v.Attempts, v.LastStatus))
}

// RenderVerification writes a health verification as text.
func RenderVerification(w io.Writer, v *health.Verification, s Styles) error {
	t := &textWriter{w: w, s: s}
	t.line("%s %s", verificationSummary(v, s), s.Muted.Render(v.URL))
	for _, a := range v.History {
		status := a.Status
		if status == "200" {
			status = s.Success.Render(status)
		} else {
			status = s.Failure.Render(status)
		}
		t.line("  %s %s %s", s.Muted.Render(fmt.Sprintf("#%-2d", a.Number)), status, s.Muted.Render(round(a.Latency)))
	}
	return t.err
}

// RenderPublish writes a publish result as text.
func RenderPublish(w io.Writer, r *publish.Result, s Styles) error {
	t := &textWriter{w: w, s: s}
	t.line("%s %s", s.Title.Render("published "+r.Tag.Value), s.Muted.Render("("+string(r.Tag.Source)+")"))
	for _, img := range r.Images {
		ref := s.Code.Render(img.Ref)
		if !img.Pushed {
			ref = s.Warning.Render(img.Ref + " (not pushed)")
		}
		t.field(img.Service, strings.TrimSpace(ref+" "+s.Muted.Render(img.Digest)))
	}
	if r.Workflow != nil {
		if r.Workflow.Changed() {
			t.field("workflow", fmt.Sprintf("%s (%d replacement(s))", r.Workflow.Path, r.Workflow.Replacements))
		} else {
			t.field("workflow", s.Warning.Render(r.Workflow.Path+": placeholder "+r.Workflow.Token+" not found"))
		}
	}
	t.field("duration", round(r.Duration))
	return t.err
}

// RenderReport writes a doctor report as text.
func RenderReport(w io.Writer, r *health.Report, s Styles) error {
	t := &textWriter{w: w, s: s}
	t.line("%s %s", s.Title.Render("deckhand doctor"), statusStyle(r.Status, s).Render(r.Status.String()))
	for _, res := range r.Results {
		mark := "✓"
		switch res.Status {
		case health.StatusDegraded:
			mark = "!"
		case health.StatusUnhealthy:
			mark = "✗"
		}
		t.line("  %s %s %s", statusStyle(res.Status, s).Render(mark), s.Label.Render(fmt.Sprintf("%-18s", res.Name)), res.Message)
	}
	return t.err
}

func statusStyle(status health.Status, s Styles) lipgloss.Style {
	switch status {
	case health.StatusHealthy:
		return s.Success
	case health.StatusDegraded:
		return s.Warning
	default:
		return s.Failure
	}
}
