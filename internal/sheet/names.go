package sheet

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName turns a sheet name into a file-safe identifier: every rune
// other than a letter, digit, '_' or '-' becomes '_', runs of '_' collapse,
// and leading/trailing '_' are trimmed.
func NormalizeName(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))

	var b strings.Builder
	lastUnderscore := false
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-') {
			r = '_'
		}
		if r == '_' {
			if lastUnderscore {
				continue
			}
			lastUnderscore = true
		} else {
			lastUnderscore = false
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}

// CompanyName derives the company from a sheet name by removing boilerplate
// suffixes such as "- Supplier Partner Performance Matrix".
func CompanyName(sheetName string, stripSuffixes []string) string {
	name := strings.TrimSpace(sheetName)
	for _, suffix := range stripSuffixes {
		suffix = strings.TrimSpace(suffix)
		if suffix == "" {
			continue
		}
		name = strings.TrimSpace(strings.ReplaceAll(name, suffix, ""))
	}
	if name == "" {
		return strings.TrimSpace(sheetName)
	}
	return name
}
