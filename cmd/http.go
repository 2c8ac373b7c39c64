package cmd

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// newHTTPClient creates the client used for the auth and discovery APIs. Every
// request is traced. With retries above zero, transport errors and retryable
// statuses are retried with backoff before the last response is handed back
func newHTTPClient(timeout time.Duration, retries int) *http.Client {
	base := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}

	if retries <= 0 {
		return base
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = base
	rc.RetryMax = retries
	rc.Logger = retryLogger{}
	// hand back the final response so that status codes are reported as
	// API errors rather than a generic "giving up" error
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return rc.StandardClient()
}

// retryLogger sends retryablehttp's logs to logrus
type retryLogger struct{}

var _ retryablehttp.LeveledLogger = retryLogger{}

func (retryLogger) Error(msg string, keysAndValues ...any) {
	log.WithFields(toFields(keysAndValues)).Error(msg)
}

func (retryLogger) Info(msg string, keysAndValues ...any) {
	log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (retryLogger) Debug(msg string, keysAndValues ...any) {
	log.WithFields(toFields(keysAndValues)).Trace(msg)
}

func (retryLogger) Warn(msg string, keysAndValues ...any) {
	log.WithFields(toFields(keysAndValues)).Warn(msg)
}

func toFields(keysAndValues []any) log.Fields {
	fields := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	return fields
}
