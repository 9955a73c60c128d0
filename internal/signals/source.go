// Package signals defines named signal values, the source contract that
// produces them, and the static metadata that classifies them.
package signals

import "context"

// Name uniquely identifies one signal within a run.
type Name string

// Source is anything that yields a named value within a bounded time.
type Source interface {
	Name() Name
	Metadata() Metadata
	// Supported is a cheap capability probe. An unsupported source is
	// recorded as an error marker without calling Collect.
	Supported() bool
	// Collect must honour ctx cancellation where it can.
	Collect(ctx context.Context) (any, error)
	// Fallback is the value recorded when Collect exceeds the timeout.
	Fallback() Value
}

// Func adapts plain functions to the Source interface.
type Func struct {
	ID   Name
	Meta Metadata
	// Probe reports support; nil means always supported.
	Probe func() bool
	Fn    func(ctx context.Context) (any, error)
	// TimeoutValue overrides the default timeout marker.
	TimeoutValue *Value
}

func (f *Func) Name() Name         { return f.ID }
func (f *Func) Metadata() Metadata { return f.Meta }

func (f *Func) Supported() bool {
	if f.Probe == nil {
		return true
	}
	return f.Probe()
}

func (f *Func) Collect(ctx context.Context) (any, error) {
	if f.Fn == nil {
		return nil, nil
	}
	return f.Fn(ctx)
}

func (f *Func) Fallback() Value {
	if f.TimeoutValue != nil {
		return *f.TimeoutValue
	}
	return Failed(ReasonTimeout, "source did not answer in time")
}
