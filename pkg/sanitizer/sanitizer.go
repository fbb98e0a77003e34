package sanitizer

import (
	"regexp"
	"strings"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reControlChars  = regexp.MustCompile(`[\x00-\x1f\x7f]+`)
	reInnerSpaces   = regexp.MustCompile(`\s+`)
	reReferenceSafe = regexp.MustCompile(`[^0-9A-Za-z_\-]+`)
	reTrimDashes    = regexp.MustCompile(`-+`)
)

func trim(s string) string {
	return strings.TrimSpace(s)
}

func stripControl(s string) string {
	return reControlChars.ReplaceAllString(s, "")
}

func collapseSpaces(s string) string {
	return reInnerSpaces.ReplaceAllString(s, " ")
}

// SanitizeDisplayName normalizes human-facing names (resources, stock units)
// without destroying their casing.
func SanitizeDisplayName(input string) string {
	// Collapse whitespace first so tabs and newlines leave a word boundary
	// behind before the remaining control characters are stripped.
	p := Pipeline{
		collapseSpaces,
		stripControl,
		trim,
	}
	return p.Apply(input)
}

// SanitizeReference normalizes machine identifiers such as order references
// and operator ids down to a URL- and filename-safe form.
func SanitizeReference(input string) string {
	p := Pipeline{
		trim,
		func(s string) string { return reReferenceSafe.ReplaceAllString(s, "-") },
		func(s string) string { return reTrimDashes.ReplaceAllString(s, "-") },
		func(s string) string { return strings.Trim(s, "-") },
	}
	return p.Apply(input)
}
