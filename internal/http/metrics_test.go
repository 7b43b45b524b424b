package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/worldmodel/internal/logging"
)

func TestRequestObserver(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	meter := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter(meterName)
	tl := logging.NewTestLogger()

	obs, err := newRequestObserver(meter, tl.Logger)
	require.NoError(t, err)

	e := echo.New()
	e.Use(obs.middleware)
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/healthz", "/healthz", "/missing"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byRoute := map[string]int64{}
	var observed uint64
	for _, md := range rm.ScopeMetrics[0].Metrics {
		switch data := md.Data.(type) {
		case metricdata.Sum[int64]:
			assert.Equal(t, "worldmodel.http.requests", md.Name)
			for _, dp := range data.DataPoints {
				route, _ := dp.Attributes.Value(attribute.Key("http.route"))
				byRoute[route.AsString()] += dp.Value
			}
		case metricdata.Histogram[float64]:
			assert.Equal(t, "worldmodel.http.request.duration", md.Name)
			for _, dp := range data.DataPoints {
				observed += dp.Count
			}
		}
	}
	var total int64
	for _, n := range byRoute {
		total += n
	}
	assert.Equal(t, int64(2), byRoute["/healthz"])
	assert.Equal(t, int64(3), total)
	assert.Equal(t, uint64(3), observed)

	assert.Equal(t, 3, tl.FilterMessage("http request").Len())
	tl.AssertLogged(t, zapcore.DebugLevel, "http request")
}
