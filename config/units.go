package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseMemory converts human-readable memory strings to bytes.
// Supported suffixes: k/ki (KiB), m/mi (MiB), g/gi (GiB), t/ti (TiB), with an
// optional trailing "b". Without suffix, the value is treated as bytes.
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("config: empty memory string")
	}
	if len(s) > 1 && strings.HasSuffix(s, "b") {
		s = strings.TrimSuffix(s, "b")
	}

	var multiplier int64 = 1
	for _, unit := range memoryUnits {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.factor
			s = strings.TrimSuffix(s, unit.suffix)
			break
		}
	}

	val, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: parse memory %q: %w", s, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("config: memory must be non-negative: %d", val)
	}
	return val * multiplier, nil
}

// ParseMemoryMB is ParseMemory rounded down to whole mebibytes.
func ParseMemoryMB(s string) (uint64, error) {
	b, err := ParseMemory(s)
	if err != nil {
		return 0, err
	}
	return uint64(b) / mib, nil
}

const mib = 1024 * 1024

// Two-letter suffixes come first so "mi" is not read as "m".
var memoryUnits = []struct {
	suffix string
	factor int64
}{
	{"ti", 1 << 40},
	{"gi", 1 << 30},
	{"mi", 1 << 20},
	{"ki", 1 << 10},
	{"t", 1 << 40},
	{"g", 1 << 30},
	{"m", 1 << 20},
	{"k", 1 << 10},
}
