// Package grammar expands species axioms into bounded symbol sequences.
//
// Rewriting is parallel: on every iteration each symbol that heads a
// production is replaced by its replacement, every other symbol is copied
// unchanged. Growth is exponential in the replacement length, so Expand
// projects the worst case before it allocates anything and lowers the
// iteration count until the projection fits under Limits.MaxSymbols.
package grammar

import (
	"fmt"
	"sort"
)

// Turtle command alphabet. Symbols outside this set are grammar variables
// and must head a production.
const (
	Draw      byte = 'F'
	DrawAlt   byte = 'G'
	Move      byte = 'f'
	YawLeft   byte = '-'
	YawRight  byte = '+'
	PitchUp   byte = '^'
	PitchDown byte = '&'
	RollLeft  byte = '\\'
	RollRight byte = '/'
	Push      byte = '['
	Pop       byte = ']'
	Leaf      byte = 'L'
)

// DefaultMaxSymbols applies when Limits.MaxSymbols is unset.
const DefaultMaxSymbols = 200_000

// IsCommand reports whether s is interpreted by the turtle.
func IsCommand(s byte) bool {
	switch s {
	case Draw, DrawAlt, Move, YawLeft, YawRight, PitchUp, PitchDown, RollLeft, RollRight, Push, Pop, Leaf:
		return true
	}
	return false
}

// IsDraw reports whether s emits a branch.
func IsDraw(s byte) bool {
	return s == Draw || s == DrawAlt
}

// Rules maps a symbol to its replacement sequence.
type Rules map[byte]string

// Limits bounds expansion.
type Limits struct {
	MaxSymbols int
}

func (l Limits) maxSymbols() int {
	if l.MaxSymbols <= 0 {
		return DefaultMaxSymbols
	}
	return l.MaxSymbols
}

// String is an expanded, immutable symbol sequence.
type String struct {
	symbols    []byte
	iterations int
}

func (s String) Len() int            { return len(s.symbols) }
func (s String) At(i int) byte       { return s.symbols[i] }
func (s String) Iterations() int     { return s.iterations }
func (s String) String() string      { return string(s.symbols) }
func (s String) Equal(o String) bool { return string(s.symbols) == string(o.symbols) }

// Bytes returns a copy of the symbols.
func (s String) Bytes() []byte {
	out := make([]byte, len(s.symbols))
	copy(out, s.symbols)
	return out
}

// Count returns how many times sym occurs.
func (s String) Count(sym byte) int {
	n := 0
	for _, c := range s.symbols {
		if c == sym {
			n++
		}
	}
	return n
}

// Report describes how an expansion was bounded.
type Report struct {
	Requested int
	Effective int
	Projected int64
	Limit     int
	Length    int
}

// Clamped reports whether fewer iterations than requested were applied.
func (r Report) Clamped() bool {
	return r.Effective < r.Requested
}

// ConfigError reports a recipe whose grammar cannot be expanded safely.
// It is raised once, when the catalog is loaded.
type ConfigError struct {
	Recipe string
	Symbol byte
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Symbol != 0 {
		return fmt.Sprintf("recipe %q: %s (symbol %q)", e.Recipe, e.Reason, e.Symbol)
	}
	return fmt.Sprintf("recipe %q: %s", e.Recipe, e.Reason)
}

// Validate checks that every symbol referenced by the axiom or by a
// replacement is either a turtle command or the head of a production.
func Validate(name, axiom string, rules Rules) error {
	if axiom == "" {
		return &ConfigError{Recipe: name, Reason: "empty axiom"}
	}
	check := func(seq string) error {
		for i := 0; i < len(seq); i++ {
			sym := seq[i]
			if IsCommand(sym) {
				continue
			}
			if _, ok := rules[sym]; ok {
				continue
			}
			return &ConfigError{Recipe: name, Symbol: sym, Reason: "undefined rule symbol"}
		}
		return nil
	}
	if err := check(axiom); err != nil {
		return err
	}
	heads := make([]int, 0, len(rules))
	for head := range rules {
		heads = append(heads, int(head))
	}
	sort.Ints(heads)
	for _, head := range heads {
		if err := check(rules[byte(head)]); err != nil {
			return err
		}
	}
	return nil
}

// Project returns the worst-case length after n iterations:
// len(axiom) * maxReplacement^n, saturating at limit+1 so callers can
// compare against limit without overflow.
func Project(axiomLen int, rules Rules, n int, limit int) int64 {
	growth := int64(1)
	for _, repl := range rules {
		if int64(len(repl)) > growth {
			growth = int64(len(repl))
		}
	}
	ceiling := int64(limit) + 1
	projected := int64(axiomLen)
	for i := 0; i < n; i++ {
		if projected > ceiling/growth {
			return ceiling
		}
		projected *= growth
	}
	if projected > ceiling {
		return ceiling
	}
	return projected
}

// Expand rewrites axiom iterations times under limits. When the worst-case
// projection exceeds the limit, iterations are lowered until it fits and the
// returned Report says so.
func Expand(name, axiom string, rules Rules, iterations int, limits Limits) (String, Report, error) {
	limit := limits.maxSymbols()
	if iterations < 0 {
		iterations = 0
	}
	report := Report{Requested: iterations, Limit: limit}
	if len(axiom) > limit {
		return String{}, report, &ConfigError{Recipe: name, Reason: fmt.Sprintf("axiom length %d exceeds symbol ceiling %d", len(axiom), limit)}
	}

	effective := iterations
	projected := Project(len(axiom), rules, effective, limit)
	report.Projected = projected
	for effective > 0 && projected > int64(limit) {
		effective--
		projected = Project(len(axiom), rules, effective, limit)
	}
	report.Effective = effective

	size := exactLength(axiom, rules, effective)
	current := make([]byte, 0, size)
	current = append(current, axiom...)
	if effective > 0 {
		next := make([]byte, 0, size)
		for i := 0; i < effective; i++ {
			next = next[:0]
			for _, sym := range current {
				if repl, ok := rules[sym]; ok {
					next = append(next, repl...)
				} else {
					next = append(next, sym)
				}
			}
			current, next = next, current
		}
	}
	report.Length = len(current)
	return String{symbols: current, iterations: effective}, report, nil
}

// exactLength counts symbols per iteration without materializing the
// sequence. Only called once the projection is known to fit.
func exactLength(axiom string, rules Rules, n int) int {
	counts := make(map[byte]int, len(rules)+8)
	for i := 0; i < len(axiom); i++ {
		counts[axiom[i]]++
	}
	for i := 0; i < n; i++ {
		next := make(map[byte]int, len(counts))
		for sym, c := range counts {
			repl, ok := rules[sym]
			if !ok {
				next[sym] += c
				continue
			}
			for j := 0; j < len(repl); j++ {
				next[repl[j]] += c
			}
		}
		counts = next
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}
