package http

import (
	"errors"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/worldmodel/internal/logging"
)

const meterName = "github.com/fyrsmithlabs/worldmodel/internal/http"

// requestObserver counts and times requests to the status server and
// logs each one at Debug.
type requestObserver struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
	logger   *logging.Logger
}

func newRequestObserver(meter metric.Meter, logger *logging.Logger) (*requestObserver, error) {
	requests, err1 := meter.Int64Counter("worldmodel.http.requests",
		metric.WithDescription("Status server requests by route and status code"),
		metric.WithUnit("{request}"),
	)
	// Scrapes and status polls are sub-millisecond unless the run stalls.
	latency, err2 := meter.Float64Histogram("worldmodel.http.request.duration",
		metric.WithDescription("Status server request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.025, 0.1, 0.5),
	)
	if err := errors.Join(err1, err2); err != nil {
		return nil, err
	}
	return &requestObserver{requests: requests, latency: latency, logger: logger}, nil
}

func (r *requestObserver) middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		elapsed := time.Since(start)

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		req, res := c.Request(), c.Response()
		attrs := metric.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", req.Method),
			attribute.Int("http.status_code", res.Status),
		)
		r.requests.Add(req.Context(), 1, attrs)
		r.latency.Record(req.Context(), elapsed.Seconds(), attrs)

		r.logger.Debug(req.Context(), "http request",
			zap.String("route", route),
			zap.Int("status", res.Status),
			zap.Duration("duration", elapsed),
			zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
		)
		return err
	}
}
