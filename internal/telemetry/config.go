package telemetry

// OTLP configures the OTLP/HTTP trace exporter.
type OTLP struct {
	Host   string `yaml:"host"`
	Secure bool   `yaml:"secure"`
}

// Config bounds the focus's tracing setup; at least one of JaegerURL or
// OTLP.Host must be set, and OTLP is used when both are.
type Config struct {
	// JaegerURL is the URL to a Jaeger collector.
	JaegerURL string `yaml:"jaegerUrl"`
	// OTLP configures the OTLP/HTTP exporter instead.
	OTLP OTLP `yaml:"otlp"`
	// Package is the resource's service name.
	Package string `yaml:"package"`
	// ID identifies this focus instance.
	ID string `yaml:"id"`
}
