package observability

import (
	"context"
	"log/slog"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collectAndLog runs on an interval for the lifetime of the provider,
// pulling the accumulated metric points off the manual reader and writing
// them to the structured logger. There is no collector endpoint to push to
// in this deployment, so the log stream is the metrics sink.
func collectAndLog(ctx context.Context, reader *sdkmetric.ManualReader, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logMetrics(ctx, reader, logger)
		}
	}
}

func logMetrics(ctx context.Context, reader *sdkmetric.ManualReader, logger *slog.Logger) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		logger.WarnContext(ctx, "metric collection failed", "error", err)
		return
	}

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			logMetric(ctx, logger, m)
		}
	}
}

func logMetric(ctx context.Context, logger *slog.Logger, m metricdata.Metrics) {
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			logger.InfoContext(ctx, "metric", "name", m.Name, "value", dp.Value, "kind", "sum")
		}
	case metricdata.Sum[float64]:
		for _, dp := range data.DataPoints {
			logger.InfoContext(ctx, "metric", "name", m.Name, "value", dp.Value, "kind", "sum")
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			logger.InfoContext(ctx, "metric", "name", m.Name, "count", dp.Count, "sum", dp.Sum, "kind", "histogram")
		}
	case metricdata.Gauge[int64]:
		for _, dp := range data.DataPoints {
			logger.InfoContext(ctx, "metric", "name", m.Name, "value", dp.Value, "kind", "gauge")
		}
	}
}
