package parser

import "time"

// ParserOpt configures a Parser invocation.
type ParserOpt func(*ParserConfig)

// TelemetryMode controls telemetry collection (production-safe, zero
// overhead when off).
type TelemetryMode int

const (
	TelemetryOff TelemetryMode = iota
	TelemetryBasic
	TelemetryTiming
)

// ParserConfig holds parser configuration assembled from ParserOpt values.
type ParserConfig struct {
	telemetry TelemetryMode
}

// WithTelemetryBasic enables parse counts only.
func WithTelemetryBasic() ParserOpt {
	return func(c *ParserConfig) { c.telemetry = TelemetryBasic }
}

// WithTelemetryTiming enables parse counts plus phase timing.
func WithTelemetryTiming() ParserOpt {
	return func(c *ParserConfig) { c.telemetry = TelemetryTiming }
}

// ParseTelemetry holds parser performance metrics.
type ParseTelemetry struct {
	LexTime    time.Duration
	ParseTime  time.Duration
	TotalTime  time.Duration
	TokenCount int
	ErrorCount int
}
