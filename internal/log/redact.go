package log

import (
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// redactor masks configured secret values. Secrets shorter than four bytes
// are ignored; masking them would shred ordinary text.
type redactor struct {
	replacer *strings.Replacer
}

func newRedactor(secrets []string) *redactor {
	var pairs []string
	for _, s := range secrets {
		if len(s) >= 4 {
			pairs = append(pairs, s, redacted)
		}
	}
	if len(pairs) == 0 {
		return nil
	}
	return &redactor{replacer: strings.NewReplacer(pairs...)}
}

// replaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *redactor) replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		if s := a.Value.String(); s != "" {
			a.Value = slog.StringValue(r.replacer.Replace(s))
		}
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case error:
			a.Value = slog.StringValue(r.replacer.Replace(v.Error()))
		case []string:
			out := make([]string, len(v))
			for i, s := range v {
				out[i] = r.replacer.Replace(s)
			}
			a.Value = slog.AnyValue(out)
		}
	}
	return a
}
