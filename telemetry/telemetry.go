// Package telemetry provides setup for reporting the obstacle layer's trace spans and stats
package telemetry

import (
	"time"

	"go.viam.com/utils/perf"
)

// SetupTelemetry starts a development exporter that reports spans and stats every reportingInterval.
func SetupTelemetry() (perf.Exporter, error) {
	exporter := perf.NewDevelopmentExporterWithOptions(perf.DevelopmentExporterOptions{
		ReportingInterval: reportingInterval,
	})
	if err := exporter.Start(); err != nil {
		return nil, err
	}

	return exporter, nil
}

const reportingInterval = 5 * time.Second
