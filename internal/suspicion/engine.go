package suspicion

import (
	"log"
	"sync/atomic"

	"github.com/shortontech/goprint/internal/signals"
)

// Engine evaluates a fixed rule battery against signal sets. Tables can be
// swapped at runtime without blocking evaluations.
type Engine struct {
	rules  []Rule
	tables atomic.Pointer[Tables]
}

// NewEngine builds an engine over tables (DefaultTables when nil) and rules
// (DefaultRules when none are given).
func NewEngine(tables *Tables, rules ...Rule) *Engine {
	if tables == nil {
		tables = DefaultTables()
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	e := &Engine{rules: make([]Rule, len(rules))}
	for i, r := range rules {
		r.Severity = clampSeverity(r.Severity)
		e.rules[i] = r
	}
	e.tables.Store(tables)
	return e
}

// SetTables installs new tables for subsequent evaluations.
func (e *Engine) SetTables(t *Tables) {
	if t == nil {
		return
	}
	e.tables.Store(t)
}

func (e *Engine) Tables() *Tables { return e.tables.Load() }

// Rules returns a copy of the battery in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Analyze runs every rule once against set. A rule that panics counts as
// not detected.
func (e *Engine) Analyze(set *signals.Set) Result {
	view := NewView(set)
	tables := e.tables.Load()

	detected := make([]Signal, 0, 4)
	for _, r := range e.rules {
		if !evaluate(r, view, tables) {
			continue
		}
		detected = append(detected, Signal{
			ID:          r.ID,
			Severity:    r.Severity,
			Category:    r.Category,
			Description: r.Description,
			Detected:    true,
		})
	}
	score := Score(detected)
	return Result{Score: score, RiskLevel: Level(score), Signals: detected}
}

func evaluate(r Rule, v View, t *Tables) (hit bool) {
	if r.Detect == nil {
		return false
	}
	defer func() {
		if p := recover(); p != nil {
			log.Printf("rules: %s panicked: %v", r.ID, p)
			hit = false
		}
	}()
	return r.Detect(v, t)
}

func clampSeverity(s int) int {
	if s < 0 {
		return 0
	}
	if s > 10 {
		return 10
	}
	return s
}
