package model

import (
	"bytes"
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Months lists the month keys in calendar order.
var Months = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// MonthIndex returns the calendar index of a month key (case-insensitive,
// three-letter or full name) or -1.
func MonthIndex(name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) < 3 {
		return -1
	}
	for i, m := range Months {
		if strings.HasPrefix(name, strings.ToLower(m)) {
			return i
		}
	}
	return -1
}

// MonthlyValues holds one value per calendar month. A nil entry means the
// month had no usable value.
type MonthlyValues [12]*float64

// Set stores v for the month at idx.
func (m *MonthlyValues) Set(idx int, v float64) {
	m[idx] = &v
}

// Count returns the number of months that carry a value.
func (m MonthlyValues) Count() int {
	n := 0
	for _, v := range m {
		if v != nil {
			n++
		}
	}
	return n
}

// MarshalJSON writes all twelve months in calendar order, null for missing.
func (m MonthlyValues) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range Months {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(name))
		buf.WriteByte(':')
		if m[i] == nil {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(strconv.FormatFloat(*m[i], 'f', -1, 64))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON accepts an object keyed by month. Values may be numbers,
// numeric strings (with thousands separators, currency or percent signs),
// or anything else, which is treated as missing.
func (m *MonthlyValues) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "model: monthly values")
	}
	// Longer keys first so that "Jan" overrides "January" when both appear.
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	*m = MonthlyValues{}
	for _, key := range keys {
		idx := MonthIndex(key)
		if idx < 0 {
			continue
		}
		if f, ok := ParseValue(raw[key]); ok {
			m.Set(idx, f)
		}
	}
	return nil
}

// ParseValue converts a model-returned cell value into a number. Excel error
// strings, "null", "-", blanks, NaN and infinities are not numbers.
func ParseValue(v any) (float64, bool) {
	f, ok := parseNumber(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		s = strings.NewReplacer(",", "", "$", "", "%", "").Replace(s)
		s = strings.TrimSpace(s)
		if s == "" || s == "-" || strings.HasPrefix(s, "#") || strings.EqualFold(s, "null") {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// KPIMetadata describes the KPI keys used in a document.
type KPIMetadata struct {
	UnitDescriptions map[string]string `json:"unitDescriptions"`
}

// KPIDocument maps KPI key -> company -> month -> value. It is written to
// final_supplier_kpis.json.
type KPIDocument struct {
	GeneratedOn string                              `json:"generatedOn"`
	Metadata    KPIMetadata                         `json:"kpiMetadata"`
	KPIs        map[string]map[string]MonthlyValues `json:"kpis"`
}

// NewKPIDocument returns an empty document stamped with the given date.
func NewKPIDocument(generatedOn string, descriptions map[string]string) *KPIDocument {
	return &KPIDocument{
		GeneratedOn: generatedOn,
		Metadata:    KPIMetadata{UnitDescriptions: descriptions},
		KPIs:        make(map[string]map[string]MonthlyValues),
	}
}

// Merge records a company's KPI series. A later series for the same KPI and
// company replaces the earlier one.
func (d *KPIDocument) Merge(company string, kpis map[string]MonthlyValues) {
	if d.KPIs == nil {
		d.KPIs = make(map[string]map[string]MonthlyValues)
	}
	for kpi, values := range kpis {
		byCompany, ok := d.KPIs[kpi]
		if !ok {
			byCompany = make(map[string]MonthlyValues)
			d.KPIs[kpi] = byCompany
		}
		byCompany[company] = values
	}
}

// Companies returns every company present in the document, sorted.
func (d *KPIDocument) Companies() []string {
	seen := make(map[string]struct{})
	for _, byCompany := range d.KPIs {
		for c := range byCompany {
			seen[c] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// KPIKeys returns the KPI keys present in the document, sorted.
func (d *KPIDocument) KPIKeys() []string {
	out := make([]string, 0, len(d.KPIs))
	for k := range d.KPIs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Empty reports whether the document holds no series.
func (d *KPIDocument) Empty() bool {
	return d == nil || len(d.KPIs) == 0
}
