// Package fingerprint runs signal sources, merges their values with caller
// data and reduces the result to confidence, entropy and a stable digest.
package fingerprint

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shortontech/goprint/internal/fault"
	"github.com/shortontech/goprint/internal/signals"
	"github.com/shortontech/goprint/internal/suspicion"
)

// Analyzer scores a signal set. *suspicion.Engine implements it.
type Analyzer interface {
	Analyze(set *signals.Set) suspicion.Result
}

// Outcome classifies how a single source finished.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeError       Outcome = "error"
	OutcomeTimeout     Outcome = "timeout"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomePanic       Outcome = "panic"
)

// Observer receives per-source and per-result notifications.
type Observer interface {
	ObserveSource(name signals.Name, outcome Outcome, took time.Duration)
	ObserveResult(res *Result)
}

type nopObserver struct{}

func (nopObserver) ObserveSource(signals.Name, Outcome, time.Duration) {}
func (nopObserver) ObserveResult(*Result)                              {}

// Aggregator owns an ordered list of sources.
type Aggregator struct {
	sources  []signals.Source
	registry *signals.Registry
	engine   Analyzer
	envCheck func(ctx context.Context) error
	observer Observer
	digester Digester
}

type Option func(*Aggregator)

// WithEngine enables suspicion analysis when a call asks for it.
func WithEngine(engine Analyzer) Option {
	return func(a *Aggregator) { a.engine = engine }
}

// WithEnvironmentCheck installs a host check that runs before any source.
func WithEnvironmentCheck(check func(ctx context.Context) error) Option {
	return func(a *Aggregator) { a.envCheck = check }
}

func WithObserver(o Observer) Option {
	return func(a *Aggregator) {
		if o != nil {
			a.observer = o
		}
	}
}

func WithDigester(d Digester) Option {
	return func(a *Aggregator) { a.digester = d }
}

// New builds an Aggregator. Source names must be unique and must not
// collide with the custom block.
func New(sources []signals.Source, opts ...Option) (*Aggregator, error) {
	for _, s := range sources {
		if s.Name() == CustomKey {
			return nil, fmt.Errorf("fingerprint: source name %q is reserved", CustomKey)
		}
	}
	reg, err := signals.NewRegistry(sources...)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %w", err)
	}
	a := &Aggregator{
		sources:  append([]signals.Source(nil), sources...),
		registry: reg,
		observer: nopObserver{},
		digester: DefaultDigester,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SourceNames lists every registered source in registration order.
func (a *Aggregator) SourceNames() []signals.Name {
	return a.registry.Names()
}

// Registry exposes the stability classifier.
func (a *Aggregator) Registry() *signals.Registry {
	return a.registry
}

// Collect runs every non-excluded source and returns their values.
func (a *Aggregator) Collect(ctx context.Context, opts Options) (*signals.Set, error) {
	set, _, err := a.collect(ctx, opts)
	return set, err
}

// Signals returns the merged mapping without digest or suspicion analysis.
func (a *Aggregator) Signals(ctx context.Context, opts Options) (*signals.Set, error) {
	set, _, err := a.collect(ctx, opts)
	if err != nil {
		return nil, err
	}
	custom, _ := dropMalformed(opts.CustomData)
	custom, _ = normalizeCustomData(custom, opts.AllowUnstableData)
	return merge(set, custom), nil
}

// Generate runs the full pipeline. The only error it returns is an
// unsupported environment; every other failure degrades the result.
func (a *Aggregator) Generate(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	set, diag, err := a.collect(ctx, opts)
	if err != nil {
		return nil, err
	}

	custom, malformed := dropMalformed(opts.CustomData)
	custom, dropped := normalizeCustomData(custom, opts.AllowUnstableData)
	diag.MalformedCustom = malformed
	diag.DroppedCustom = dropped
	if len(malformed) > 0 {
		diag.addFault(fault.CodeMalformedCustomData)
	}
	hasCustom := len(custom) > 0
	if !hasCustom {
		custom = nil
	}

	okCount := 0
	entropy := 0.0
	for _, e := range set.Entries() {
		if e.Value.IsError() {
			continue
		}
		okCount++
		if meta, ok := a.registry.Lookup(e.Name); ok {
			entropy += meta.Entropy
		}
	}
	runCount := set.Len()

	var include func(signals.Name) bool
	if opts.StableOnly {
		include = a.registry.IsStable
		diag.StableOnly = true
	}
	serialized := canonicalSet(set, custom, include)

	if !a.digester.Available() {
		diag.addFault(fault.CodeDigestUnavailable)
	}
	diag.DigestAlgorithm = a.digester.Algorithm()

	res := &Result{
		ID:          uuid.NewString(),
		Fingerprint: a.digester.Sum(serialized),
		Signals:     set,
		Custom:      custom,
		Confidence:  Confidence(okCount, runCount, hasCustom),
		Entropy:     entropy,
		Diagnostics: diag,
	}
	if opts.IncludeSuspicionAnalysis && a.engine != nil {
		s := a.engine.Analyze(set)
		res.Suspicion = &s
	}
	res.Duration = time.Since(start)
	res.DurationMS = float64(res.Duration.Microseconds()) / 1000

	a.observer.ObserveResult(res)
	return res, nil
}

// Confidence is round((ok + 0.5*custom) / (run + 0.5*custom) * 100). A run
// with no sources and no custom data scores 0.
func Confidence(okCount, runCount int, hasCustom bool) int {
	num, den := float64(okCount), float64(runCount)
	if hasCustom {
		num += 0.5
		den += 0.5
	}
	if den == 0 {
		return 0
	}
	c := int(math.Round(num / den * 100))
	if c > 100 {
		return 100
	}
	return c
}

func (a *Aggregator) checkEnvironment(ctx context.Context) error {
	if a.envCheck == nil {
		return nil
	}
	if err := a.envCheck(ctx); err != nil {
		return fault.Wrap(fault.CodeUnsupportedEnvironment, err, "")
	}
	return nil
}

func (a *Aggregator) collect(ctx context.Context, opts Options) (*signals.Set, Diagnostics, error) {
	var diag Diagnostics
	if err := a.checkEnvironment(ctx); err != nil {
		return nil, diag, err
	}

	excluded := opts.excluded()
	timeout := opts.timeout()
	values := make([]signals.Value, len(a.sources))
	outcomes := make([]Outcome, len(a.sources))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Sequential {
		g.SetLimit(1)
	}
	for i, src := range a.sources {
		if excluded[src.Name()] {
			diag.Excluded = append(diag.Excluded, src.Name())
			continue
		}
		i, src := i, src
		g.Go(func() error {
			started := time.Now()
			values[i], outcomes[i] = a.runSource(gctx, src, timeout)
			a.observer.ObserveSource(src.Name(), outcomes[i], time.Since(started))
			return nil
		})
	}
	_ = g.Wait()

	entries := make([]signals.Entry, 0, len(a.sources))
	for i, src := range a.sources {
		if outcomes[i] == "" {
			continue
		}
		name := src.Name()
		v := values[i]
		entries = append(entries, signals.Entry{Name: name, Value: v})
		switch {
		case outcomes[i] == OutcomeTimeout:
			diag.TimedOut = append(diag.TimedOut, name)
			diag.addFault(fault.CodeSourceTimeout)
		case v.IsError():
			diag.addFault(v.Code())
		}
		if v.IsError() {
			if diag.Failed == nil {
				diag.Failed = make(map[signals.Name]string)
			}
			diag.Failed[name] = string(v.Reason())
		} else {
			diag.Collected = append(diag.Collected, name)
		}
	}
	return signals.NewSet(entries...), diag, nil
}

type sourceResult struct {
	value    signals.Value
	outcome  Outcome
	timedOut bool
}

// runSource bounds one source by timeout. A source that loses the race is
// cancelled through its context and its late result is dropped.
func (a *Aggregator) runSource(ctx context.Context, src signals.Source, timeout time.Duration) (signals.Value, Outcome) {
	if ok, v := supported(src); !ok {
		return v, OutcomeUnsupported
	}

	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan sourceResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("aggregator: source %s panicked: %v", src.Name(), r)
				ch <- sourceResult{value: signals.Failed(signals.ReasonError, fmt.Sprint(r)), outcome: OutcomePanic}
			}
		}()
		data, err := src.Collect(sctx)
		if err != nil {
			ch <- sourceResult{
				value:    signals.Failed(signals.ReasonError, err.Error()),
				outcome:  OutcomeError,
				timedOut: sctx.Err() != nil,
			}
			return
		}
		if v, ok := data.(signals.Value); ok {
			ch <- sourceResult{value: v, outcome: outcomeOf(v)}
			return
		}
		ch <- sourceResult{value: signals.Ok(data), outcome: OutcomeOK}
	}()

	select {
	case r := <-ch:
		if r.timedOut {
			return src.Fallback(), OutcomeTimeout
		}
		return r.value, r.outcome
	case <-sctx.Done():
		return src.Fallback(), OutcomeTimeout
	}
}

func supported(src signals.Source) (ok bool, v signals.Value) {
	defer func() {
		if r := recover(); r != nil {
			ok, v = false, signals.Failed(signals.ReasonError, fmt.Sprint(r))
		}
	}()
	if !src.Supported() {
		return false, signals.Failed(signals.ReasonUnsupported, "source not supported on this host")
	}
	return true, signals.Value{}
}

func outcomeOf(v signals.Value) Outcome {
	if !v.IsError() {
		return OutcomeOK
	}
	switch v.Reason() {
	case signals.ReasonTimeout:
		return OutcomeTimeout
	case signals.ReasonUnsupported:
		return OutcomeUnsupported
	}
	return OutcomeError
}
