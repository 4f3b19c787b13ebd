// Package prescription defines the validated prescription document consumed
// from the upstream extraction and validation pipeline.
package prescription

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
)

// Document is the schema-validated medications JSON produced by the
// document-extraction stage. All fields arrive as strings; parsing and
// defaulting happen here.
type Document struct {
	Medications []MedicationOrder `json:"medications"`
}

// MedicationOrder is a single medication row from the source document.
// Count fields keep their source string form because the extraction stage
// does not guarantee clean integers.
type MedicationOrder struct {
	DrugName     string `json:"drug_name"`
	DosePerTime  string `json:"dose_per_time"`
	TimesPerDay  string `json:"times_per_day"`
	TotalDays    string `json:"total_days"`
	Instructions string `json:"instructions"`
}

// Validate checks the document shape. Count fields are intentionally not
// validated here; unparseable values fall back to 1 at read time.
func (d *Document) Validate() error {
	if len(d.Medications) == 0 {
		return errors.New("document has no medications")
	}
	return nil
}

// TimesPerDayCount returns the per-day dose count, defaulting to 1 when the
// field is not a positive integer.
func (m *MedicationOrder) TimesPerDayCount() int {
	return positiveInt(m.TimesPerDay, 1)
}

// TotalDaysCount returns the regimen length in days, defaulting to 1 when
// the field is not a positive integer.
func (m *MedicationOrder) TotalDaysCount() int {
	return positiveInt(m.TotalDays, 1)
}

// CleanName returns the drug name with the leading ordinal-number artifact
// from the source table stripped.
func (m *MedicationOrder) CleanName() string {
	name := strings.TrimSpace(m.DrugName)
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	if i == 0 {
		return name
	}
	return strings.TrimLeftFunc(name[i:], unicode.IsSpace)
}

// ActionVerb selects the verb used in reminder messages: 사용 for topical
// (외용) and ophthalmic (점안) preparations, 복용 otherwise.
func (m *MedicationOrder) ActionVerb() string {
	raw := strings.TrimSpace(m.DrugName)
	if strings.Contains(raw, "외용") || strings.Contains(raw, "점안") {
		return "사용"
	}
	return "복용"
}

func positiveInt(s string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
