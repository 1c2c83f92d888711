package metadata

import (
	"strings"
	"unicode"

	"github.com/kbukum/portforge/errors"
	"github.com/kbukum/portforge/version"
)

// Reference is a parsed dependency token.
type Reference struct {
	Target     string             `json:"target"`
	Constraint version.Constraint `json:"constraint,omitzero"`
}

func (r Reference) String() string {
	return r.Target + r.Constraint.String()
}

// ParseToken splits "target[operator version]" into a Reference. Whitespace
// around the operator is tolerated.
func ParseToken(token string) (Reference, error) {
	tok := strings.TrimSpace(token)

	target, rest := tok, ""
	if i := strings.IndexAny(tok, "<>="); i >= 0 {
		target, rest = strings.TrimSpace(tok[:i]), tok[i:]
	}

	if target == "" {
		return Reference{}, errors.MalformedToken(token, "empty target")
	}
	for _, r := range target {
		if unicode.IsSpace(r) {
			return Reference{}, errors.MalformedToken(token, "whitespace in target")
		}
		if !isTargetRune(r) {
			return Reference{}, errors.MalformedToken(token, "unknown operator character "+string(r))
		}
	}
	if rest == "" {
		return Reference{Target: target}, nil
	}

	opEnd := strings.IndexFunc(rest, func(r rune) bool { return !strings.ContainsRune("<>=", r) })
	if opEnd < 0 {
		opEnd = len(rest)
	}
	op, ok := version.ParseOperator(rest[:opEnd])
	if !ok {
		return Reference{}, errors.MalformedToken(token, "unknown operator "+rest[:opEnd])
	}
	ver := strings.TrimSpace(rest[opEnd:])
	if ver == "" {
		return Reference{}, errors.MalformedToken(token, "operator without version")
	}
	if strings.IndexFunc(ver, unicode.IsSpace) >= 0 {
		return Reference{}, errors.MalformedToken(token, "whitespace in version")
	}
	if strings.ContainsAny(ver, "<>=") {
		return Reference{}, errors.MalformedToken(token, "operator character in version")
	}

	return Reference{Target: target, Constraint: version.Constraint{Op: op, Version: ver}}, nil
}

func isTargetRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '-', '_', '.', '+', '/', '@', ':':
		return true
	}
	return false
}
