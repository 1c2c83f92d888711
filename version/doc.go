// Package version compares port versions and reports portforge's own build.
//
// Port versions are ordered naturally: a version splits into alternating
// numeric and non-numeric runs, numeric runs compare as integers and the
// rest compare as strings, so "1.9" < "1.10" < "1.10.1". Missing trailing
// numeric runs count as zero, so "2" == "2.0".
//
// Build information is set at compile time via -ldflags:
//
//	go build -ldflags "-X github.com/kbukum/portforge/version.Version=1.0.0"
package version
