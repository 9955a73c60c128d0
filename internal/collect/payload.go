package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/shortontech/goprint/internal/fingerprint"
	"github.com/shortontech/goprint/internal/signals"
)

// MaxExtraSignals caps how many names outside the catalogue one post may carry.
const MaxExtraSignals = 32

const maxNameLength = 64

// ExtraMetadata is assigned to posted names the catalogue does not know.
// They count towards confidence but add no entropy and never reach a
// StableOnly digest.
var ExtraMetadata = signals.Metadata{Weight: 0.1, Entropy: 0, Stable: false, Category: signals.CategoryBrowser}

// ErrNoSignals is returned by Payload.Check when the collector posted nothing.
var ErrNoSignals = errors.New("collect: no client signals posted")

// ClientOptions are the per-call toggles a collector may set. Unset fields
// keep the server defaults.
type ClientOptions struct {
	Exclude                  []signals.Name `json:"exclude,omitempty"`
	AllowUnstableData        *bool          `json:"allowUnstableData,omitempty"`
	IncludeSuspicionAnalysis *bool          `json:"includeSuspicionAnalysis,omitempty"`
	StableOnly               *bool          `json:"stableOnly,omitempty"`
}

// Payload is the body of a collector post.
type Payload struct {
	Signals    map[string]any `json:"signals"`
	CustomData map[string]any `json:"customData,omitempty"`
	Options    *ClientOptions `json:"options,omitempty"`
}

// ParsePayload decodes a collector post. Numbers stay json.Number so the
// digest sees them exactly as sent.
func ParsePayload(body []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if dec.More() {
		return nil, errors.New("decode payload: trailing data after JSON object")
	}
	return &p, nil
}

// Check is an aggregator environment check: a post without any client
// signal cannot be fingerprinted.
func (p *Payload) Check(context.Context) error {
	if p == nil || len(p.Signals) == 0 {
		return ErrNoSignals
	}
	return nil
}

// Apply layers the client's options and custom data over the server defaults.
func (p *Payload) Apply(base fingerprint.Options) fingerprint.Options {
	opts := base
	opts.Exclude = append([]signals.Name(nil), base.Exclude...)
	if p == nil {
		return opts
	}
	if len(p.CustomData) > 0 {
		opts.CustomData = p.CustomData
	}
	if o := p.Options; o != nil {
		opts.Exclude = append(opts.Exclude, o.Exclude...)
		if o.AllowUnstableData != nil {
			opts.AllowUnstableData = *o.AllowUnstableData
		}
		if o.IncludeSuspicionAnalysis != nil {
			opts.IncludeSuspicionAnalysis = *o.IncludeSuspicionAnalysis
		}
		if o.StableOnly != nil {
			opts.StableOnly = *o.StableOnly
		}
	}
	return opts
}

// Sources returns one source per catalogue client signal, in catalogue
// order, followed by any extra posted names in lexical order. Catalogue
// names the collector left out are recorded as unavailable so that they
// count against confidence. Server-derived and reserved names are ignored.
func (p *Payload) Sources() []signals.Source {
	var posted map[string]any
	if p != nil {
		posted = p.Signals
	}

	sources := make([]signals.Source, 0, len(signals.ClientNames)+len(posted))
	for _, name := range signals.ClientNames {
		raw, ok := posted[string(name)]
		var v signals.Value
		if ok {
			v = ValueFromJSON(raw)
		} else {
			v = signals.Failed(signals.ReasonUnavailable, "not reported")
		}
		meta, _ := signals.MetadataFor(name)
		sources = append(sources, valueSource(name, meta, v))
	}

	var extra []string
	for key := range posted {
		name := signals.Name(key)
		if _, known := signals.MetadataFor(name); known || reserved(name) {
			continue
		}
		if key == "" || len(key) > maxNameLength {
			log.Printf("collect: ignoring signal with invalid name length %d", len(key))
			continue
		}
		extra = append(extra, key)
	}
	sort.Strings(extra)
	if len(extra) > MaxExtraSignals {
		log.Printf("collect: %d extra signals posted, keeping %d", len(extra), MaxExtraSignals)
		extra = extra[:MaxExtraSignals]
	}
	for _, key := range extra {
		sources = append(sources, valueSource(signals.Name(key), ExtraMetadata, ValueFromJSON(posted[key])))
	}
	return sources
}

func reserved(name signals.Name) bool {
	if name == fingerprint.CustomKey {
		return true
	}
	for _, n := range signals.RequestNames {
		if n == name {
			return true
		}
	}
	return false
}

// valueSource wraps an already-known value. It answers immediately, so it
// never hits the timeout.
func valueSource(name signals.Name, meta signals.Metadata, v signals.Value) signals.Source {
	return &signals.Func{
		ID:   name,
		Meta: meta,
		Fn: func(context.Context) (any, error) {
			return v, nil
		},
	}
}
