package mapping

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// transformFunc turns a raw cell into a field value. An empty result is
// the null sentinel.
type transformFunc func(string) string

var transforms = map[string]transformFunc{
	"":                      strings.TrimSpace,
	"trim":                  strings.TrimSpace,
	"upper":                 upper,
	"zone_from_description": zoneFromDescription,
	"load_from_description": loadFromDescription,
	"zone_word":             zoneWord,
	"load_word":             loadWord,
	"term":                  termText,
	"number":                numberText,
}

// Transforms returns the names of the available transforms.
func Transforms() []string {
	out := make([]string, 0, len(transforms))
	for name := range transforms {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

var upperCaser = cases.Upper(language.Und)

func upper(s string) string {
	return upperCaser.String(strings.TrimSpace(s))
}

var loadFactorSuffixes = []struct {
	suffix string
	load   string
}{
	{" low load factor", "LOW"},
	{" medium load factor", "MED"},
	{" high load factor", "HIGH"},
}

// zoneFromDescription returns the zone of a matrix description such as
// "HOUSTON High Load Factor".
func zoneFromDescription(s string) string {
	s = strings.TrimSpace(s)
	for _, lf := range loadFactorSuffixes {
		if cut, ok := cutSuffixFold(s, lf.suffix); ok {
			s = strings.TrimSpace(cut)
			break
		}
	}
	return upper(s)
}

// cutSuffixFold removes an ASCII suffix from s, ignoring case.
func cutSuffixFold(s, suffix string) (string, bool) {
	if len(s) < len(suffix) || !strings.EqualFold(s[len(s)-len(suffix):], suffix) {
		return s, false
	}
	return s[:len(s)-len(suffix)], true
}

func loadFromDescription(s string) string {
	lower := strings.ToLower(s)
	for _, lf := range loadFactorSuffixes {
		if strings.Contains(lower, strings.TrimSpace(lf.suffix)) {
			return lf.load
		}
	}
	return ""
}

var zoneWordRe = regexp.MustCompile(`(?i)\b([a-z]+)\s+zone\b`)

var zoneWords = map[string]string{
	"north":   "NORTH",
	"west":    "WEST",
	"south":   "SOUTH",
	"houston": "COAST",
}

// zoneWord maps the word before "zone" in a descriptor like
// "Houston Zone - High LF". Anything unrecognized is NA.
func zoneWord(s string) string {
	m := zoneWordRe.FindStringSubmatch(s)
	if m == nil {
		return "NA"
	}
	if z, ok := zoneWords[strings.ToLower(m[1])]; ok {
		return z
	}
	return "NA"
}

func loadWord(s string) string {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "high"):
		return "HIGH"
	case strings.Contains(lower, "med"):
		return "MED"
	case strings.Contains(lower, "low"):
		return "LOW"
	}
	return "NA"
}

var digitsRe = regexp.MustCompile(`\d+`)

// parseTerm reads a term in months from "12", "12.0" or "12 Months".
func parseTerm(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	}
	m := digitsRe.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

func termText(s string) string {
	n, ok := parseTerm(s)
	if !ok {
		return ""
	}
	return strconv.Itoa(n)
}

// ParseNumber reads a decimal, ignoring currency symbols, thousands
// separators and whitespace. "(1.50)" is negative.
func ParseNumber(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case '$', ',', ' ', '\t', '\u00a0':
			return -1
		}
		return r
	}, s)
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if neg {
		d = d.Neg()
	}
	return d, true
}

func numberText(s string) string {
	d, ok := ParseNumber(s)
	if !ok {
		return ""
	}
	return d.String()
}
