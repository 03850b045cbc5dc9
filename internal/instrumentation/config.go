package instrumentation

import (
	"fmt"
	"time"
)

// Exporter names accepted by Config.
const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"
)

// DefaultServiceName is reported as service.name when none is configured.
const DefaultServiceName = "calendar-mcp"

// DefaultExportInterval is the push interval for periodic metric readers.
const DefaultExportInterval = 15 * time.Second

// Config controls how telemetry is produced and exported.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// InstanceID defaults to the hostname when empty.
	InstanceID string

	// Enabled switches the whole provider off when false. Metrics calls
	// still succeed and are discarded.
	Enabled bool

	MetricsExporter string
	TracingExporter string

	// OTLPEndpoint is host:port without a scheme.
	OTLPEndpoint string
	OTLPInsecure bool

	// TraceSamplingRate is the parent-based ratio in [0, 1].
	TraceSamplingRate float64

	// DetailedLabels adds the user's email domain to tool metrics.
	DetailedLabels bool

	Audit AuditConfig
}

// AuditConfig controls the audit log stream.
type AuditConfig struct {
	Enabled bool

	// IncludePII logs full email addresses instead of their domain.
	IncludePII bool
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ServiceName:       DefaultServiceName,
		ServiceVersion:    "dev",
		Enabled:           true,
		MetricsExporter:   ExporterPrometheus,
		TracingExporter:   ExporterNone,
		TraceSamplingRate: 0.1,
		Audit: AuditConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first inconsistency in c.
func (c Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %g", c.TraceSamplingRate)
	}

	switch c.MetricsExporter {
	case "", ExporterPrometheus, ExporterOTLP, ExporterStdout:
	default:
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}

	switch c.TracingExporter {
	case "", ExporterOTLP, ExporterStdout, ExporterNone:
	default:
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" && (c.MetricsExporter == ExporterOTLP || c.TracingExporter == ExporterOTLP) {
		return fmt.Errorf("OTLP endpoint is required when an OTLP exporter is selected")
	}

	return nil
}
