package signals

import (
	"encoding/json"

	"github.com/shortontech/goprint/internal/fault"
)

// Reason says why a source produced no usable value.
type Reason string

const (
	ReasonUnavailable Reason = "unavailable"
	ReasonTimeout     Reason = "timeout"
	ReasonUnsupported Reason = "unsupported"
	ReasonError       Reason = "error"
)

// Value is the outcome of one signal source: either Ok carrying the
// collected data, or Failed carrying a reason. The zero Value is Ok(nil).
type Value struct {
	data    any
	failed  bool
	reason  Reason
	message string
}

// Ok wraps a successfully collected value.
func Ok(data any) Value { return Value{data: data} }

// Failed builds an error marker.
func Failed(reason Reason, message string) Value {
	if reason == "" {
		reason = ReasonError
	}
	return Value{failed: true, reason: reason, message: message}
}

// IsError reports whether v is an error marker.
func (v Value) IsError() bool { return v.failed }

// Data returns the collected data, or nil for an error marker.
func (v Value) Data() any {
	if v.failed {
		return nil
	}
	return v.data
}

// Reason returns the failure reason, or "" for Ok values.
func (v Value) Reason() Reason { return v.reason }

// Message returns the failure detail, if any.
func (v Value) Message() string { return v.message }

// Code maps a failure onto the pipeline error taxonomy.
func (v Value) Code() fault.Code {
	switch {
	case !v.failed:
		return ""
	case v.reason == ReasonTimeout:
		return fault.CodeSourceTimeout
	default:
		return fault.CodeSourceUnavailable
	}
}

// MarshalJSON renders Ok values as their data and error markers as
// {"error": reason}.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.failed {
		return json.Marshal(map[string]string{"error": string(v.reason)})
	}
	return json.Marshal(v.data)
}
