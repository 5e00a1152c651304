package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var firstNumber = regexp.MustCompile(`\d+(\.\d+)?`)

// tenThousand is the "万" magnitude suffix used by the forum's view counters.
const tenThousand = "万"

// ExtractNumber returns the first decimal number found in s.
func ExtractNumber(s string) (float64, bool) {
	m := firstNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseCount parses a listing counter such as "150" or "1.2万" (12000).
// Empty or unparseable input yields 0.
func ParseCount(s string) int {
	s = strings.TrimSpace(s)
	n, ok := ExtractNumber(s)
	if !ok {
		return 0
	}
	if strings.Contains(s, tenThousand) {
		n *= 10000
	}
	return int(math.Round(n))
}
