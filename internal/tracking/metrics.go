// Package tracking records OpenTelemetry metrics for request validation,
// document assembly and HTTP traffic. Instruments come from the global
// meter provider and are created lazily; a failed instrument is skipped.
package tracking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "apidoc"

	metricHTTPRequestDuration = "http.server.request.duration"
	metricRejections          = "apidoc.validation.rejections"
	metricDocumentBuild       = "apidoc.document.build.duration"

	attrHTTPRequestMethod  = "http.request.method"
	attrHTTPResponseStatus = "http.response.status_code"
	attrHTTPRoute          = "http.route"
	attrParamSource        = "apidoc.param.source"
	attrOutcome            = "apidoc.outcome"
)

var durationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

var (
	initMu   sync.Mutex
	initOnce sync.Once
	meter    metric.Meter

	httpDuration  metric.Float64Histogram
	rejections    metric.Int64Counter
	buildDuration metric.Float64Histogram
)

func logMetricError(name string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: failed to initialize metric %s: %v\n", name, err)
	}
}

func initMeter() {
	initMu.Lock()
	defer initMu.Unlock()

	if meter != nil {
		return
	}
	meter = otel.Meter(meterName)

	var err error
	httpDuration, err = meter.Float64Histogram(
		metricHTTPRequestDuration,
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	logMetricError(metricHTTPRequestDuration, err)

	rejections, err = meter.Int64Counter(
		metricRejections,
		metric.WithDescription("Requests rejected by parameter validation"),
		metric.WithUnit("{request}"),
	)
	logMetricError(metricRejections, err)

	buildDuration, err = meter.Float64Histogram(
		metricDocumentBuild,
		metric.WithDescription("Duration of OpenAPI document assembly"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	logMetricError(metricDocumentBuild, err)
}

func ensureMeter() {
	initOnce.Do(initMeter)
}

// RecordRejection counts one request rejected with 400 while extracting a
// parameter from source on route.
func RecordRejection(ctx context.Context, route, method, source string) {
	ensureMeter()
	if rejections == nil {
		return
	}
	rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrHTTPRoute, normalizeRoute(route)),
		attribute.String(attrHTTPRequestMethod, method),
		attribute.String(attrParamSource, source),
	))
}

// RecordDocumentBuild records how long one document build took.
func RecordDocumentBuild(ctx context.Context, d time.Duration, err error) {
	ensureMeter()
	if buildDuration == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	buildDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}

// HTTPMetrics returns middleware recording the request duration histogram
// keyed by method, route template and status code.
func HTTPMetrics() echo.MiddlewareFunc {
	ensureMeter()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if httpDuration != nil {
				status := c.Response().Status
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
				httpDuration.Record(c.Request().Context(), time.Since(start).Seconds(), metric.WithAttributes(
					attribute.String(attrHTTPRequestMethod, c.Request().Method),
					attribute.String(attrHTTPRoute, normalizeRoute(c.Path())),
					attribute.Int(attrHTTPResponseStatus, status),
				))
			}
			return err
		}
	}
}

func normalizeRoute(route string) string {
	if route == "" {
		return "unknown"
	}
	return route
}

// ResetForTesting drops every instrument so the next call binds to the
// current global meter provider. Tests only.
func ResetForTesting() {
	initMu.Lock()
	defer initMu.Unlock()

	meter = nil
	httpDuration = nil
	rejections = nil
	buildDuration = nil
	initOnce = sync.Once{}
}
