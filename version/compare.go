package version

import (
	"strings"
)

// Operator is a version constraint operator.
type Operator string

const (
	OpNone Operator = ""
	OpGE   Operator = ">="
	OpLE   Operator = "<="
	OpEQ   Operator = "="
	OpGT   Operator = ">"
	OpLT   Operator = "<"
)

// ParseOperator recognises one of the five operators.
func ParseOperator(s string) (Operator, bool) {
	switch op := Operator(s); op {
	case OpGE, OpLE, OpEQ, OpGT, OpLT:
		return op, true
	}
	return OpNone, false
}

// Constraint is an operator applied to a required version. The zero value
// accepts every version.
type Constraint struct {
	Op      Operator `json:"op,omitempty"`
	Version string   `json:"version,omitempty"`
}

// IsZero reports whether c places no restriction.
func (c Constraint) IsZero() bool { return c.Op == OpNone }

// Allows reports whether installed satisfies c.
func (c Constraint) Allows(installed string) bool {
	return Satisfies(installed, c.Op, c.Version)
}

func (c Constraint) String() string {
	if c.IsZero() {
		return ""
	}
	return string(c.Op) + c.Version
}

// Satisfies reports whether installed meets "op required". A missing
// operator always satisfies.
func Satisfies(installed string, op Operator, required string) bool {
	if op == OpNone {
		return true
	}
	c := Compare(installed, required)
	switch op {
	case OpGE:
		return c >= 0
	case OpLE:
		return c <= 0
	case OpEQ:
		return c == 0
	case OpGT:
		return c > 0
	case OpLT:
		return c < 0
	}
	return false
}

// Compare returns -1, 0 or 1 as a is less than, equal to or greater than b.
// Trailing zero components are insignificant, whatever separates them, so
// "2", "2.0" and "2-0" are equal.
func Compare(a, b string) int {
	ra, rb := trimZeroTail(splitRuns(a)), trimZeroTail(splitRuns(b))
	n := min(len(ra), len(rb))
	for i := 0; i < n; i++ {
		if c := compareRun(ra[i], rb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(ra) == len(rb):
		return 0
	case len(ra) > len(rb):
		return 1
	default:
		return -1
	}
}

type run struct {
	text    string
	numeric bool
}

func splitRuns(v string) []run {
	var runs []run
	start := 0
	for i := 1; i <= len(v); i++ {
		if i == len(v) || isDigit(v[i]) != isDigit(v[start]) {
			runs = append(runs, run{text: v[start:i], numeric: isDigit(v[start])})
			start = i
		}
	}
	return runs
}

func compareRun(a, b run) int {
	if a.numeric && b.numeric {
		return compareNumeric(a.text, b.text)
	}
	return strings.Compare(a.text, b.text)
}

// compareNumeric compares digit strings of any length without overflow.
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// trimZeroTail drops trailing zero numeric runs and the separator runs
// between them.
func trimZeroTail(runs []run) []run {
	for len(runs) > 0 {
		r := runs[len(runs)-1]
		if r.numeric && strings.TrimLeft(r.text, "0") != "" {
			break
		}
		if !r.numeric && strings.Trim(r.text, ".-_+") != "" {
			break
		}
		runs = runs[:len(runs)-1]
	}
	return runs
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
