package catalog

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vkurennov/medarchive/internal/core/domain"
)

var leadingNumber = regexp.MustCompile(`^[-+]?\d+(?:\.\d+)?`)

// hemoglobinOCRThreshold: the upstream OCR step occasionally drops the
// decimal point in hemoglobin values ("92" read as "9.2"). A true hemoglobin
// below 30 г/л is not survivable, so anything under the threshold with the
// expected unit is treated as a misread and multiplied by 10. A genuinely low
// reading like 84 passes through unchanged.
const hemoglobinOCRThreshold = 30

// Extract parses analyzer key/value fields into typed measurements. Unknown
// keys and unparseable values are skipped, never errors; a nil map yields an
// empty slice.
func (c *Catalog) Extract(fields map[string]string, date time.Time) []domain.Measurement {
	out := make([]domain.Measurement, 0, len(fields))
	for _, key := range sortedKeys(fields) {
		spec, ok := c.Resolve(key)
		if !ok {
			continue
		}
		value, unit, ok := parseValue(fields[key])
		if !ok {
			continue
		}
		if unit == "" {
			unit = spec.Unit
		}
		value = applyOCRCorrection(spec, value, unit)
		out = append(out, domain.Measurement{
			Name:  spec.Name,
			Value: value,
			Unit:  unit,
			Date:  date,
		})
	}
	return out
}

// parseValue splits "<number><optional unit>", accepting a comma decimal
// separator. Values with no leading number (e.g. "не обнаружено") yield no
// measurement.
func parseValue(raw string) (float64, string, bool) {
	s := strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	match := leadingNumber.FindString(s)
	if match == "" {
		return 0, "", false
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, "", false
	}
	unit := strings.TrimSpace(s[len(match):])
	return value, unit, true
}

func applyOCRCorrection(spec Spec, value float64, unit string) float64 {
	if spec.Name == MetricHemoglobin && value < hemoglobinOCRThreshold && unit == spec.Unit {
		return value * 10
	}
	return value
}

func sortedKeys(fields map[string]string) []string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
