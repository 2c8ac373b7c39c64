package tracing

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LogRecoverToReturn recovers from a panic, reports it to sentry, the logs and
// the current span, then lets the function return normally. Use with defer.
// Does nothing when there is no panic
func LogRecoverToReturn(ctx context.Context, loc string) {
	err := recover()
	if err == nil {
		return
	}

	HandleError(ctx, loc, err, string(debug.Stack()))
}

// LogRecoverToExit is LogRecoverToReturn followed by flushing telemetry and
// exiting with status 1
func LogRecoverToExit(ctx context.Context, loc string) {
	err := recover()
	if err == nil {
		return
	}

	HandleError(ctx, loc, err, string(debug.Stack()))

	// ensure that errors still get sent out
	ShutdownTracer(ctx)

	os.Exit(1)
}

// HandleError reports a recovered panic
func HandleError(ctx context.Context, loc string, err any, stack string) {
	msg := fmt.Sprintf("unhandled panic in %v: %v", loc, err)

	if hub := sentry.CurrentHub(); hub != nil {
		hub.Recover(err)
	}

	fields := log.Fields{"loc": loc, "stack": stack}

	if ctx == nil {
		log.WithFields(fields).Error(msg)
		return
	}

	log.WithContext(ctx).WithFields(fields).Error(msg)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("flight.panic.loc", loc),
		attribute.String("flight.panic.stack", stack),
	)
	span.SetStatus(codes.Error, msg)
}
