// Package collect turns a collector post into signal sources: one per
// browser-reported value plus the signals the server derives from the
// HTTP request itself.
package collect

import "github.com/shortontech/goprint/internal/signals"

// Strings the browser collector reports in place of a value it could not read.
var sentinels = map[string]signals.Reason{
	"unknown":       signals.ReasonUnavailable,
	"unavailable":   signals.ReasonUnavailable,
	"not available": signals.ReasonUnavailable,
	"error":         signals.ReasonError,
}

// ValueFromJSON classifies one decoded wire value. An object carrying an
// "error" field or one of the sentinel strings becomes an error marker;
// anything else is Ok.
func ValueFromJSON(v any) signals.Value {
	switch x := v.(type) {
	case map[string]any:
		e, ok := x["error"]
		if !ok {
			break
		}
		msg, _ := x["message"].(string)
		return signals.Failed(reasonOf(e), msg)
	case string:
		if reason, ok := sentinels[x]; ok {
			return signals.Failed(reason, x)
		}
	}
	return signals.Ok(v)
}

func reasonOf(e any) signals.Reason {
	s, ok := e.(string)
	if !ok {
		return signals.ReasonError
	}
	switch r := signals.Reason(s); r {
	case signals.ReasonUnavailable, signals.ReasonTimeout, signals.ReasonUnsupported, signals.ReasonError:
		return r
	}
	return signals.ReasonError
}
