package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/deckhand/internal/errors"
)

// Tracer names used by deckhand components.
const (
	TracerPublish = "github.com/felixgeelhaar/deckhand/publish"
	TracerRollout = "github.com/felixgeelhaar/deckhand/rollout"
)

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if code := errors.CodeOf(err); code != "" {
			span.SetAttributes(attribute.String("deckhand.error_code", string(code)))
		}
	}
	span.End()
}
