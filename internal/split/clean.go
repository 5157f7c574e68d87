package split

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reNumSep    = regexp.MustCompile(`^\d{1,3}[\.\)]\s*`)
	reNumSpace  = regexp.MustCompile(`^\d{1,3}\s+`)
	reNumPrefix = regexp.MustCompile(`^\d{1,3}`)
	reBullet    = regexp.MustCompile(`^[\-\*]\s+`)

	// A numbered line inside a multiline comment, e.g. "\n2. провис двери".
	reNumberedLine = regexp.MustCompile(`\n\s*\d{1,2}[\.\)\s]|\n\s*\d{1,2}[А-ЯЁа-яёA-Za-z]`)
	reLineStart    = regexp.MustCompile(`^\d{1,2}([\.\)\s]|[А-ЯЁа-яёA-Za-z])`)
)

// cleanDefectText strips leading list numbering and bullets the model tends
// to echo back: "1. Текст", "1) Текст", "1 Текст", "1Текст", "- Текст".
func cleanDefectText(text string) string {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return ""
	}

	switch {
	case reNumSep.MatchString(cleaned):
		cleaned = reNumSep.ReplaceAllString(cleaned, "")
	case reNumSpace.MatchString(cleaned):
		cleaned = reNumSpace.ReplaceAllString(cleaned, "")
	default:
		// "1Текст" with no separator: strip only when what remains is
		// substantial, so "5шт" is left alone.
		if loc := reNumPrefix.FindStringIndex(cleaned); loc != nil {
			rest := cleaned[loc[1]:]
			if r := firstRune(rest); unicode.IsLetter(r) && len([]rune(rest)) > 5 {
				cleaned = rest
			}
		}
	}

	cleaned = reBullet.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

// localSplitByNumbers is the no-model fallback for comments written as a
// numbered list: it cuts on line numbering when the model returned nothing
// usable for an input that clearly contains several defects.
func localSplitByNumbers(text string) []string {
	var defects []string
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		if cleaned := cleanDefectText(strings.Join(current, " ")); cleaned != "" {
			defects = append(defects, cleaned)
		}
		current = nil
	}

	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if reLineStart.MatchString(line) {
			flush()
			current = append(current, line)
			continue
		}
		if len(current) > 0 {
			current = append(current, line)
		} else if cleaned := cleanDefectText(line); cleaned != "" {
			defects = append(defects, cleaned)
		}
	}
	flush()
	return defects
}

// hasNumberedLines reports whether the comment looks like a numbered list,
// which makes the local fallback worth trying.
func hasNumberedLines(comment string) bool {
	return reNumberedLine.MatchString(comment)
}
