package structure

import "regexp"

const numerals = `[0-9０-９一二三四五六七八九十百千]+`

// Pattern is a heading style recognized by the detector.
type Pattern struct {
	ID string
	re *regexp.Regexp
}

// Match reports whether text starts with the pattern.
func (p Pattern) Match(text string) bool {
	return p.re.MatchString(text)
}

func newPattern(expr string) Pattern {
	return Pattern{ID: expr, re: regexp.MustCompile(expr)}
}

var (
	chapterPattern = newPattern(`^第` + numerals + `章`)
	sectionPattern = newPattern(`^第` + numerals + `節`)
	numericPattern = newPattern(`^\d+\.`)
)

// HeadingPatterns is the ordered set of heading styles. Order matters only for
// diagnostics: the first entries are the most specific.
var HeadingPatterns = []Pattern{
	chapterPattern,
	sectionPattern,
	numericPattern,
	newPattern(`^\d+-\d+`),
	newPattern(`^[(（]\d+[)）]`),
	newPattern(`^[０-９]+[．.]`),
	newPattern(`^[ぁ-ゖ][．.、]`),
	newPattern(`^[ァ-ヺ][．.、]`),
}

// matchesAny reports whether text matches at least one heading pattern.
func matchesAny(text string) bool {
	for _, p := range HeadingPatterns {
		if p.Match(text) {
			return true
		}
	}
	return false
}
