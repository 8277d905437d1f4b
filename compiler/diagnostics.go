package compiler

import (
	"fmt"
	"strings"
)

// Severity of a diagnostic.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// DiagCode identifies the kind of problem found.
type DiagCode string

const (
	MissingTile             DiagCode = "MissingTile"
	ParseError              DiagCode = "ParseError"
	MissingTypeInfo         DiagCode = "MissingTypeInfo"
	MissingOperatorOverload DiagCode = "MissingOperatorOverload"
	TypeMismatch            DiagCode = "TypeMismatch"
	UnknownField            DiagCode = "UnknownField"
	UnknownVariable         DiagCode = "UnknownVariable"
	UnknownType             DiagCode = "UnknownType"
)

// Diagnostic is one compile-time problem. Diagnostics never abort a
// compilation; the affected code degrades to a Nil placeholder.
type Diagnostic struct {
	Code     DiagCode
	Severity Severity
	Message  string
	Rule     string // rule path, e.g. "0/1"
	Node     NodeID
	Pos      Position
}

func (d Diagnostic) String() string {
	var sb strings.Builder
	if d.Rule != "" {
		sb.WriteString(d.Rule)
		sb.WriteString(" ")
	}
	if d.Pos.Line > 0 {
		sb.WriteString(d.Pos.String())
		sb.WriteString(" ")
	}
	fmt.Fprintf(&sb, "%s %s: %s", d.Severity, d.Code, d.Message)
	return sb.String()
}

// Diagnostics is the list collected by one compilation.
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic has error severity.
func (ds Diagnostics) HasErrors() bool {
	for _, d := range ds {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Errors returns the diagnostics with error severity.
func (ds Diagnostics) Errors() Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Severity == SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// WithCode returns the diagnostics carrying code.
func (ds Diagnostics) WithCode(code DiagCode) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Code == code {
			out = append(out, d)
		}
	}
	return out
}

func (ds Diagnostics) String() string {
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// diagSink collects diagnostics for one rule.
type diagSink struct {
	list *Diagnostics
	rule string
}

func (s diagSink) errorf(code DiagCode, e Expr, format string, args ...any) {
	s.add(code, SeverityError, e, format, args...)
}

func (s diagSink) warnf(code DiagCode, e Expr, format string, args ...any) {
	s.add(code, SeverityWarning, e, format, args...)
}

func (s diagSink) add(code DiagCode, sev Severity, e Expr, format string, args ...any) {
	d := Diagnostic{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...), Rule: s.rule}
	if e != nil {
		d.Node = e.ID()
		d.Pos = e.Pos()
	}
	*s.list = append(*s.list, d)
}
