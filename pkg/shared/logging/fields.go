// Package logging provides a small fluent builder for structured log fields,
// layered on top of logrus.Fields so every package in the repository logs
// with the same vocabulary (component, operation, resource_type, ...).
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is a fluent builder for structured logging key/value pairs.
type Fields map[string]interface{}

// NewFields starts an empty field set.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(kind, name string) Fields {
	f["resource_type"] = kind
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	f["request_id"] = id
	return f
}

func (f Fields) TraceID(id string) Fields {
	f["trace_id"] = id
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

func (f Fields) Method(method string) Fields {
	f["method"] = method
	return f
}

func (f Fields) URL(url string) Fields {
	f["url"] = url
	return f
}

func (f Fields) Count(n int) Fields {
	f["count"] = n
	return f
}

func (f Fields) Size(bytes int64) Fields {
	f["size_bytes"] = bytes
	return f
}

func (f Fields) Version(v string) Fields {
	f["version"] = v
	return f
}

func (f Fields) Custom(key string, value interface{}) Fields {
	f[key] = value
	return f
}

// ToLogrus converts to logrus.Fields for passing to a *logrus.Entry.
func (f Fields) ToLogrus() logrus.Fields {
	return logrus.Fields(f)
}

// DatabaseFields is a shorthand for logging a database operation against a
// table.
func DatabaseFields(operation, table string) Fields {
	return NewFields().Component("database").Operation(operation).Resource("table", table)
}

// HTTPFields is a shorthand for logging an HTTP request/response.
func HTTPFields(method, url string, statusCode int) Fields {
	return NewFields().Component("http").Method(method).URL(url).StatusCode(statusCode)
}

// PlatformFields is a shorthand for logging a platform adapter call
// (Databricks/ADF) against a resource.
func PlatformFields(platform, operation, resourceID string) Fields {
	return NewFields().Component(platform).Operation(operation).Resource("resource", resourceID)
}

// AIFields is a shorthand for logging a classifier call.
func AIFields(operation, model string) Fields {
	return NewFields().Component("ai").Operation(operation).Custom("model", model)
}

// MetricsFields is a shorthand for logging a metric emission.
func MetricsFields(operation, metricName string, value interface{}) Fields {
	return NewFields().Component("metrics").Operation(operation).
		Custom("metric_name", metricName).Custom("value", value)
}

// SecurityFields is a shorthand for logging a security-sensitive operation.
func SecurityFields(operation, subject string) Fields {
	return NewFields().Component("security").Operation(operation).Custom("subject", subject)
}

// PerformanceFields is a shorthand for logging the outcome of a timed
// operation.
func PerformanceFields(operation string, duration time.Duration, success bool) Fields {
	return NewFields().Component("performance").Operation(operation).
		Duration(duration).Custom("success", success)
}

// BreakerFields is a shorthand for logging a circuit breaker decision.
func BreakerFields(key, state string) Fields {
	return NewFields().Component("breaker").Custom("breaker_key", key).Custom("breaker_state", state)
}

// PlaybookFields is a shorthand for logging a playbook execution step.
func PlaybookFields(errorType, action string) Fields {
	return NewFields().Component("executor").Custom("error_type", errorType).Custom("action", action)
}
