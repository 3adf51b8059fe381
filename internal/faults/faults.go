package faults

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of a raised error. It is assigned
// once when the error is created and never reclassified.
type Kind string

const (
	KindTimeout            Kind = "timeout"
	KindElementMissing     Kind = "element_missing"
	KindStaleReference     Kind = "stale_reference"
	KindNotInteractable    Kind = "not_interactable"
	KindActionBlocked      Kind = "action_blocked"
	KindAutomationFault    Kind = "automation_fault"
	KindNetworkFailure     Kind = "network_failure"
	KindResourceExhaustion Kind = "resource_exhaustion"
	KindFatal              Kind = "fatal"
	KindUnknown            Kind = "unknown"
)

func (k Kind) String() string {
	return string(k)
}

// Severity orders failures from retryable nuisances to hard stops.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Static kind-to-severity table. Kinds missing from the table classify
// as medium.
var severityByKind = map[Kind]Severity{
	KindTimeout:            SeverityLow,
	KindStaleReference:     SeverityLow,
	KindNotInteractable:    SeverityLow,
	KindActionBlocked:      SeverityLow,
	KindElementMissing:     SeverityMedium,
	KindAutomationFault:    SeverityHigh,
	KindNetworkFailure:     SeverityHigh,
	KindResourceExhaustion: SeverityCritical,
	KindFatal:              SeverityCritical,
}

// Error tags an underlying cause with a failure kind. The kind travels
// with the error through any number of fmt.Errorf %w wrappings.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a kinded error with a formatted message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, cause: fmt.Errorf(format, args...)}
}

// Wrap tags an existing error with a kind. A nil error stays nil.
// Wrapping an already-kinded error keeps the original kind.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, cause: err}
}

// Retag forces a new kind onto an error, replacing any existing tag.
// Used by the retry executor to mark exhausted critical failures fatal.
func Retag(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: err}
}

// KindOf extracts the kind from an error chain. Untagged errors report
// KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// Classify maps an error to its severity. Pure function over the static
// table; unmapped kinds (including untagged errors) are medium.
func Classify(err error) Severity {
	if sev, ok := severityByKind[KindOf(err)]; ok {
		return sev
	}
	return SeverityMedium
}
