package extractor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	errs "pinscraper/pkg/errors"
)

// ErrUnparsedCount marks a count text that held no number
var ErrUnparsedCount = errs.New(errs.KindTransientExtraction, "extractor.count", "pin count text holds no number")

var (
	trailingNumber = regexp.MustCompile(`(\d{1,3}(?:,\d{3})+|\d+)\s*$`)
	sectionsPhrase = regexp.MustCompile(`(\d[\d,]*)\s+section`)
)

// ParsePinCount pulls the pin count out of a board card's count text such as
// "Travel, 1,234 Pins". The result still carries thousands separators. When
// the text holds no digits it is returned unchanged, and CoerceCount rejects it.
func ParsePinCount(text string) string {
	s := strings.ReplaceAll(text, "\n", "")
	if i := strings.Index(s, "Pin"); i >= 0 {
		s = s[:i]
	}
	s = s[labelEnd(s):]

	m := trailingNumber.FindStringSubmatch(s)
	if m == nil {
		return text
	}
	return m[1]
}

// labelEnd returns the offset just past the first comma that separates a label
// from a digit run. Thousands separators do not count.
func labelEnd(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] != ',' {
			continue
		}
		switch {
		case i+1 < len(s) && isDigit(s[i+1]):
			if isThousandsSeparator(s, i) {
				continue
			}
			return i + 1
		case i+2 < len(s) && s[i+1] == ' ' && isDigit(s[i+2]):
			return i + 2
		}
	}
	return 0
}

// isThousandsSeparator reports whether the comma at i sits between a digit
// and exactly three digits
func isThousandsSeparator(s string, i int) bool {
	if i == 0 || !isDigit(s[i-1]) || i+3 >= len(s) {
		return false
	}
	for j := i + 1; j <= i+3; j++ {
		if !isDigit(s[j]) {
			return false
		}
	}
	return i+4 == len(s) || !isDigit(s[i+4])
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// CoerceCount turns a parsed count into an integer
func CoerceCount(raw string) (int, error) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)

	n, err := strconv.Atoi(cleaned)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrUnparsedCount, raw)
	}
	return n, nil
}

// parseSections returns the n of an "n sections" phrase, or 0
func parseSections(text string) int {
	m := sectionsPhrase.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}
