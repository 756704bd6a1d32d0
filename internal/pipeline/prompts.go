package pipeline

import (
	"fmt"
	"strings"

	"github.com/sells-group/kpi-insights/internal/catalog"
	"github.com/sells-group/kpi-insights/internal/model"
)

const kpiSystemPrompt = `You are a data extractor. You convert supplier performance tables into KPI-wise JSON.
Always include all 12 months (Jan through Dec) for every KPI and use null for missing data.
Return only JSON: no markdown, no commentary.`

const kpiRules = `Rules:
1. Use only these KPI keys: %s
2. Always include all 12 months (Jan through Dec) for every KPI.
3. Use null for missing or empty values, never 0.
4. Convert "null" strings to null.
5. Convert Excel errors (#DIV/0!, #N/A, #REF! and similar) to null.
6. Formulas (cells starting with "=") are not values; use null.
7. Only use actual numbers for real data values.`

const insightsSystemPrompt = `You are a senior data analyst reviewing monthly supplier KPIs.
Be fully accurate with months, figures and trends. Make no assumptions or extrapolations.
Return only JSON: no markdown, no commentary.`

const insightsPrompt = `Below is a KPI document. "kpis" maps each KPI key to companies, and each company to monthly values from Jan to Dec. null means no data for that month. "kpiMetadata.unitDescriptions" explains each KPI.

For every company, write at most %d concise insights:
- Highlight patterns, trends, gaps or performance observations strictly from the data.
- Name the exact months and figures you refer to.
- Do not describe months that have no data as trends.
- Avoid vague phrases like "the data shows" or "it can be seen".

Return a JSON object mapping each company name exactly as written in the document to an array of insight strings:
{"<company>": ["insight", "..."]}

Companies: %s

KPI document:
%s`

const summarySystemPrompt = `You are a senior supply chain analyst writing an executive comparison of suppliers.
Use only the facts you are given. Return only JSON: no markdown, no commentary.`

const summaryPrompt = `Below are key insights per supplier. Write a general comparative summary of %d to %d points:
- Compare suppliers against each other: leaders, laggards, shared risks and outliers.
- Keep every figure and month exactly as given.
- Each point is one or two sentences.

Return a JSON array of strings only.

Insights:
%s`

// kpiCatalogBlock describes each catalog KPI for the extraction prompt.
func kpiCatalogBlock(cat *catalog.Catalog) string {
	var b strings.Builder
	for _, k := range cat.KPIs {
		fmt.Fprintf(&b, "- %s", k.Key)
		if k.Label != "" {
			fmt.Fprintf(&b, " (row label %q)", k.Label)
		}
		if k.Description != "" {
			fmt.Fprintf(&b, ": %s", k.Description)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// monthTemplate renders {"Jan": null, ..., "Dec": null}.
func monthTemplate() string {
	parts := make([]string, len(model.Months))
	for i, m := range model.Months {
		parts[i] = fmt.Sprintf("%q: null", m)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// kpiTemplate renders the "kpis" object the model is asked to fill.
func kpiTemplate(cat *catalog.Catalog, indent string) string {
	months := monthTemplate()
	lines := make([]string, len(cat.KPIs))
	for i, k := range cat.KPIs {
		lines[i] = fmt.Sprintf("%s  %q: %s", indent, k.Key, months)
	}
	return "{\n" + strings.Join(lines, ",\n") + "\n" + indent + "}"
}

func quotedKeys(cat *catalog.Catalog) string {
	keys := cat.Keys()
	for i, k := range keys {
		keys[i] = fmt.Sprintf("%q", k)
	}
	return strings.Join(keys, ", ")
}

func sheetBlock(s model.SheetCSV) string {
	return fmt.Sprintf("### Sheet %q (company: %s)\n```csv\n%s```\n", s.SheetName, s.Company, s.CSV)
}

// combinedKPIPrompt asks for every sheet's KPIs in one call.
func combinedKPIPrompt(cat *catalog.Catalog, sheets []model.SheetCSV) string {
	var b strings.Builder
	b.WriteString("Each sheet below is one supplier's monthly performance table in CSV form. ")
	b.WriteString("Extract the KPIs of every supplier into this JSON structure, one entry per sheet:\n\n")
	fmt.Fprintf(&b, "{\n  \"suppliers\": [\n    {\n      \"supplier\": \"<company>\",\n      \"kpis\": %s\n    }\n  ]\n}\n\n",
		kpiTemplate(cat, "      "))
	b.WriteString("KPIs:\n")
	b.WriteString(kpiCatalogBlock(cat))
	b.WriteByte('\n')
	fmt.Fprintf(&b, kpiRules, quotedKeys(cat))
	b.WriteString("\n8. Use the company name given for each sheet as \"supplier\".\n\n")
	for _, s := range sheets {
		b.WriteString(sheetBlock(s))
		b.WriteByte('\n')
	}
	return b.String()
}

// sheetKPIPrompt asks for a single sheet's KPIs.
func sheetKPIPrompt(cat *catalog.Catalog, s model.SheetCSV) string {
	var b strings.Builder
	b.WriteString("The sheet below is a supplier's monthly performance table in CSV form. ")
	b.WriteString("Extract its KPIs into this JSON structure:\n\n")
	fmt.Fprintf(&b, "{\n  \"supplier\": %q,\n  \"kpis\": %s\n}\n\n", s.Company, kpiTemplate(cat, "  "))
	b.WriteString("KPIs:\n")
	b.WriteString(kpiCatalogBlock(cat))
	b.WriteByte('\n')
	fmt.Fprintf(&b, kpiRules, quotedKeys(cat))
	b.WriteString("\n\n")
	b.WriteString(sheetBlock(s))
	return b.String()
}
