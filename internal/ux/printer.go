package ux

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/deckhand/internal/health"
	"github.com/felixgeelhaar/deckhand/internal/publish"
	"github.com/felixgeelhaar/deckhand/internal/rollout"
)

// Format is a value of the --output flag.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an --output value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (supported: text, json, yaml)", s)
	}
}

// Printer writes command results to stdout in one format. JSON and YAML
// are meant for scripts and carry every field; text is for people.
type Printer struct {
	w      io.Writer
	format Format
	styles Styles
}

// NewPrinter creates a Printer. Colors are dropped when noColor is set.
func NewPrinter(w io.Writer, format Format, noColor bool) *Printer {
	if format == "" {
		format = FormatText
	}
	return &Printer{w: w, format: format, styles: stylesFor(noColor)}
}

// Print writes v. In text format v must be one of the deckhand result
// types, a string, or a fmt.Stringer.
func (p *Printer) Print(v any) error {
	switch p.format {
	case FormatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	switch v := v.(type) {
	case *rollout.Outcome:
		return RenderOutcome(p.w, v, p.styles)
	case *publish.Result:
		return RenderPublish(p.w, v, p.styles)
	case *health.Verification:
		return RenderVerification(p.w, v, p.styles)
	case *health.Report:
		return RenderReport(p.w, v, p.styles)
	case string:
		_, err := fmt.Fprintln(p.w, v)
		return err
	case fmt.Stringer:
		_, err := fmt.Fprintln(p.w, v.String())
		return err
	}
	return fmt.Errorf("no text layout for %T; use --output json or yaml", v)
}
