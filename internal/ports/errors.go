package ports

import (
	"errors"
	"fmt"
)

// Sentinels for failures at the edges of the program: reading poll files,
// finding configuration and selecting regions.
var (
	ErrSourceNotFound = errors.New("poll source not found")
	ErrMalformedTable = errors.New("malformed poll table")
	ErrConfigNotFound = errors.New("configuration not found")
	ErrUnknownRegion  = errors.New("unknown region")
)

// SourceError records which poll file and which step of loading it failed.
type SourceError struct {
	Path      string
	Operation string
	Err       error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Operation, e.Path, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// NewSourceError wraps err with the path and operation that produced it.
func NewSourceError(path, operation string, err error) *SourceError {
	return &SourceError{Path: path, Operation: operation, Err: err}
}

// MetricsError is returned when metrics cannot be exported.
type MetricsError struct {
	Metric    string
	Operation string
	Err       error
}

func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics %s %s: %v", e.Operation, e.Metric, e.Err)
}

func (e *MetricsError) Unwrap() error { return e.Err }

// NewMetricsError wraps err with the metric and operation that failed.
func NewMetricsError(metric, operation string, err error) *MetricsError {
	return &MetricsError{Metric: metric, Operation: operation, Err: err}
}

// ConfigError ties a configuration failure to the key it concerns, such as
// "scenario.general2018" or "config".
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError wraps err with the configuration key it concerns.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{Key: key, Err: err}
}
