// Package alerts owns the security alert ledger: creation, resolution,
// deletion, filtering, export and simulated auto-generation.
package alerts

import (
	"fmt"
	"time"

	"classwatch/internal/apperr"
)

type Type string

const (
	TypeUnauthorized   Type = "unauthorized"
	TypeProhibitedItem Type = "prohibited_item"
	TypeDistraction    Type = "distraction"
	TypeViolation      Type = "violation"
)

// Types lists every alert type.
var Types = []Type{TypeUnauthorized, TypeProhibitedItem, TypeDistraction, TypeViolation}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Severities lists every severity.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh}

func (t Type) Valid() bool {
	for _, v := range Types {
		if v == t {
			return true
		}
	}
	return false
}

func (s Severity) Valid() bool {
	for _, v := range Severities {
		if v == s {
			return true
		}
	}
	return false
}

// Alert is a single ledger entry. Only Resolved ever changes after creation.
type Alert struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Severity  Severity  `json:"severity"`
	Location  string    `json:"location"`
	Resolved  bool      `json:"resolved"`
	Image     string    `json:"image,omitempty"`
}

// Validate checks enum membership for alerts supplied from outside the ledger.
func (a Alert) Validate() error {
	if !a.Type.Valid() {
		return fmt.Errorf("alert type %q: %w", a.Type, apperr.ErrInvalidArgument)
	}
	if !a.Severity.Valid() {
		return fmt.Errorf("alert severity %q: %w", a.Severity, apperr.ErrInvalidArgument)
	}
	return nil
}

// Filter selects a view of the ledger.
type Filter string

const (
	FilterAll        Filter = "all"
	FilterUnresolved Filter = "unresolved"
	FilterResolved   Filter = "resolved"
)

// ParseFilter maps a query value; empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterUnresolved, FilterResolved:
		return f, nil
	default:
		return "", fmt.Errorf("filter %q: %w", s, apperr.ErrInvalidArgument)
	}
}

// Match reports whether a belongs to the view.
func (f Filter) Match(a Alert) bool {
	switch f {
	case FilterResolved:
		return a.Resolved
	case FilterUnresolved:
		return !a.Resolved
	default:
		return true
	}
}

// Apply keeps the matching alerts in ledger order.
func (f Filter) Apply(list []Alert) []Alert {
	out := make([]Alert, 0, len(list))
	for _, a := range list {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

// Stats are the four counters of the alerts dashboard. HighPriority counts
// every high severity alert whether or not it is resolved.
type Stats struct {
	Unresolved   int `json:"unresolved"`
	Resolved     int `json:"resolved"`
	HighPriority int `json:"high_priority"`
	Total        int `json:"total"`
}

// Summarize computes Stats over list.
func Summarize(list []Alert) Stats {
	st := Stats{Total: len(list)}
	for _, a := range list {
		if a.Resolved {
			st.Resolved++
		} else {
			st.Unresolved++
		}
		if a.Severity == SeverityHigh {
			st.HighPriority++
		}
	}
	return st
}
