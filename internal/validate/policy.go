package validate

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

// Mode decides what happens to escalating findings.
type Mode int

const (
	// Advisory collects every finding as a warning.
	Advisory Mode = iota
	// Critical fails on the first escalating finding.
	Critical
)

func (m Mode) String() string {
	if m == Critical {
		return "critical"
	}
	return "advisory"
}

// ParseMode accepts "advisory" or "critical" (case-insensitive); empty means advisory.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "advisory":
		return Advisory, nil
	case "critical":
		return Critical, nil
	}
	return Advisory, fmt.Errorf("invalid checks mode %q (want advisory or critical)", s)
}

// IntegrityError is an escalated finding.
type IntegrityError struct {
	Finding Finding
}

func (e *IntegrityError) Error() string {
	f := e.Finding
	msg := fmt.Sprintf("integrity check failed: %s/%s: %s", f.Entity, f.Check, f.Message)
	if f.Expected != "" || f.Observed != "" {
		msg += fmt.Sprintf(" (expected %s, observed %s)", f.Expected, f.Observed)
	}
	return msg
}

// Apply turns findings into warning messages. In critical mode the first
// escalating finding is returned as an *IntegrityError along with the
// messages collected so far.
func Apply(findings []Finding, mode Mode) ([]string, error) {
	msgs := make([]string, 0, len(findings))
	for _, f := range findings {
		if mode == Critical && f.Escalates {
			return msgs, &IntegrityError{Finding: f}
		}
		msgs = append(msgs, f.Message)
	}
	return msgs, nil
}

// Report is the named warning list per entity.
type Report map[string][]string

// Add records the warnings of an entity, replacing earlier ones.
func (r Report) Add(entity string, warnings []string) {
	r[entity] = warnings
}

// Total returns the number of warnings across entities.
func (r Report) Total() int {
	n := 0
	for _, w := range r {
		n += len(w)
	}
	return n
}

// WriteSummary prints one status line per entity in name order.
func (r Report) WriteSummary(w io.Writer) {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		warns := r[name]
		if len(warns) == 0 {
			fmt.Fprintf(w, "✓ %s: no warnings\n", name)
			continue
		}
		fmt.Fprintf(w, "⚠ %s: %d warning(s):\n", name, len(warns))
		for _, msg := range warns {
			fmt.Fprintf(w, "   - %s\n", msg)
		}
	}
}
