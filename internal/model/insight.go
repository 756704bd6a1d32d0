package model

import (
	"sort"
	"strings"
)

// MaxCompanyInsights caps the key points kept per company.
const MaxCompanyInsights = 5

// Bounds on the general summary length.
const (
	MinSummaryPoints = 5
	MaxSummaryPoints = 10
)

// CompanyInsights maps company name to its key points.
type CompanyInsights map[string][]string

// Companies returns the company names, sorted.
func (ci CompanyInsights) Companies() []string {
	out := make([]string, 0, len(ci))
	for c := range ci {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Normalize trims every point, drops blanks and companies left without
// points, and caps each list at MaxCompanyInsights.
func (ci CompanyInsights) Normalize() CompanyInsights {
	out := make(CompanyInsights, len(ci))
	for company, points := range ci {
		company = strings.TrimSpace(company)
		if company == "" {
			continue
		}
		cleaned := CleanPoints(points, MaxCompanyInsights)
		if len(cleaned) == 0 {
			continue
		}
		out[company] = cleaned
	}
	return out
}

// GeneralSummary is the comparative summary across all companies.
type GeneralSummary []string

// Normalize trims points, drops blanks and caps the list at MaxSummaryPoints.
func (gs GeneralSummary) Normalize() GeneralSummary {
	return GeneralSummary(CleanPoints(gs, MaxSummaryPoints))
}

// CleanPoints trims each point, drops empty ones and keeps at most limit.
func CleanPoints(points []string, limit int) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
