package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anshuljethani/Deployment-CSC-Backend/pkg/circuitbreaker"
)

func TestInitIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Init()
		Init()
	})
}

func TestRecordBreakerState(t *testing.T) {
	RecordBreakerState("huggingface", circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	assert.Equal(t, 2.0, testutil.ToFloat64(BreakerState.WithLabelValues("huggingface")))

	RecordBreakerState("huggingface", circuitbreaker.StateOpen, circuitbreaker.StateHalfOpen)
	assert.Equal(t, 1.0, testutil.ToFloat64(BreakerState.WithLabelValues("huggingface")))
}

func TestMetricsHandlerExposesRegisteredMetrics(t *testing.T) {
	Init()
	TicketsProcessed.WithLabelValues("success").Inc()

	app := fiber.New()
	app.Get("/metrics", MetricsHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `helpdesk_tickets_processed_total{status="success"}`)
}
