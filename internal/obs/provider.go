package obs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"

	"doodledoc/internal/logging"
)

// SetupMeterProvider installs an SDK-backed global MeterProvider, so the
// otel.Meter("doodledoc") call inside NewOtelMetrics produces instruments
// backed by a real aggregation pipeline instead of the package-level no-op
// default. It polls a manual reader on interval and logs a snapshot,
// giving an operator visibility without requiring an external collector.
// Callers should defer the returned shutdown func.
func SetupMeterProvider(ctx context.Context, log logging.Logger, interval time.Duration) func(context.Context) error {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.Default()),
	)
	otel.SetMeterProvider(mp)

	stop := make(chan struct{})
	if interval > 0 {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					var data metricdata.ResourceMetrics
					if err := reader.Collect(ctx, &data); err == nil {
						log.Info("metrics snapshot", map[string]any{"scopes": len(data.ScopeMetrics)})
					}
				}
			}
		}()
	}

	return func(shutdownCtx context.Context) error {
		close(stop)
		return mp.Shutdown(shutdownCtx)
	}
}
