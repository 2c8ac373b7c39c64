package auth

import (
	"github.com/overmindtech/flightctl/tracing"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.40.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/overmindtech/flightctl/auth"

var tracer = otel.GetTracerProvider().Tracer(
	instrumentationName,
	trace.WithInstrumentationVersion(tracing.Version()),
	trace.WithSchemaURL(semconv.SchemaURL),
)
