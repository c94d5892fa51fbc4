package bulk

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Field types understood by the row validator.
const (
	TypeString  = "string"
	TypeNumeric = "numeric"
	TypeInteger = "integer"
	TypeEnum    = "enum"
	TypeDate    = "date"
	TypeURL     = "url"
)

// FieldRule is one declarative constraint set for a spreadsheet column.
// Min/Max apply to numeric values, MinLen/MaxLen to string lengths.
type FieldRule struct {
	Name     string
	Required bool
	Type     string
	MinLen   int
	MaxLen   int
	Min      *float64
	Max      *float64
	Enum     []string
}

// NormalizeRow lower-cases and trims the field-name keys so header variations
// ("Name", "PRICE ") land on the schema's canonical names.
func NormalizeRow(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}

// ValidateRow checks every rule against the row and reports all violations
// keyed by field name; it never stops at the first failure. An empty map means
// the row is well-formed. Coercion failures are violations, not errors.
func ValidateRow(row map[string]string, rules []FieldRule) map[string][]string {
	violations := map[string][]string{}
	add := func(field, msg string) {
		violations[field] = append(violations[field], msg)
	}

	for _, rule := range rules {
		value := strings.TrimSpace(row[rule.Name])

		if value == "" {
			if rule.Required {
				add(rule.Name, "is required")
			}
			continue
		}

		switch rule.Type {
		case TypeString, "":
			if rule.MinLen > 0 && len(value) < rule.MinLen {
				add(rule.Name, fmt.Sprintf("must be at least %d characters", rule.MinLen))
			}
			if rule.MaxLen > 0 && len(value) > rule.MaxLen {
				add(rule.Name, fmt.Sprintf("must be at most %d characters", rule.MaxLen))
			}

		case TypeNumeric:
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				add(rule.Name, "must be a number")
				continue
			}
			checkBounds(n, rule, add)

		case TypeInteger:
			n, err := strconv.Atoi(value)
			if err != nil {
				add(rule.Name, "must be an integer")
				continue
			}
			checkBounds(float64(n), rule, add)

		case TypeEnum:
			if !enumContains(rule.Enum, value) {
				add(rule.Name, "must be one of: "+strings.Join(rule.Enum, ", "))
			}

		case TypeDate:
			if _, err := time.Parse("2006-01-02", value); err != nil {
				add(rule.Name, "must be a date (YYYY-MM-DD)")
			}

		case TypeURL:
			u, err := url.Parse(value)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				add(rule.Name, "must be a valid http(s) URL")
			}
		}
	}

	return violations
}

func checkBounds(n float64, rule FieldRule, add func(field, msg string)) {
	if rule.Min != nil && n < *rule.Min {
		add(rule.Name, fmt.Sprintf("must be at least %v", *rule.Min))
	}
	if rule.Max != nil && n > *rule.Max {
		add(rule.Name, fmt.Sprintf("must be at most %v", *rule.Max))
	}
}

func enumContains(allowed []string, value string) bool {
	for _, a := range allowed {
		if strings.EqualFold(a, value) {
			return true
		}
	}
	return false
}

// flattenViolations joins a violation map into deterministic "field message"
// lines, sorted by field so repeated runs produce identical detail text.
func flattenViolations(v map[string][]string) []string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var out []string
	for _, f := range fields {
		for _, msg := range v[f] {
			out = append(out, f+" "+msg)
		}
	}
	return out
}
