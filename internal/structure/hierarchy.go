package structure

import (
	"math"
	"slices"
	"sort"

	"github.com/dgallion1/docchunk/internal/doctree"
)

const maxNumericLevel = 3

// AssignLevels turns heading candidates into unlinked sections. The level comes
// from the rank of the candidate's font size among all candidate font sizes
// (largest first) and is then refined by the matched heading pattern.
func AssignLevels(cands []Candidate) []doctree.Section {
	if len(cands) == 0 {
		return nil
	}

	var sizes []float64
	for _, c := range cands {
		k := sizeKey(c.FontSize)
		if !slices.Contains(sizes, k) {
			sizes = append(sizes, k)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(sizes)))

	secs := make([]doctree.Section, 0, len(cands))
	for _, c := range cands {
		level := slices.Index(sizes, sizeKey(c.FontSize)) + 1
		switch {
		case chapterPattern.Match(c.Text):
			level = 1
		case sectionPattern.Match(c.Text):
			level = 2
		case numericPattern.Match(c.Text):
			level = min(level, maxNumericLevel)
		}

		origin := c.BBox.Origin()
		secs = append(secs, doctree.Section{
			Title:      c.Text,
			Level:      level,
			StartPage:  c.PageNumber,
			StartPos:   &origin,
			FontSize:   c.FontSize,
			FontName:   c.FontName,
			Confidence: c.Confidence,
			Parent:     doctree.NoSection,
		})
	}
	return secs
}

// sizeKey rounds a font size to 0.1pt so extraction noise does not create
// spurious levels.
func sizeKey(size float64) float64 {
	return math.Round(size*10) / 10
}

// LinkSections orders sections by (start page, level), keeping input order on
// ties, assigns arena ids and links parents and children. It returns the arena
// and the root ids.
func LinkSections(secs []doctree.Section) ([]doctree.Section, []doctree.SectionID) {
	arena := make([]doctree.Section, len(secs))
	copy(arena, secs)
	sort.SliceStable(arena, func(i, j int) bool {
		if arena[i].StartPage != arena[j].StartPage {
			return arena[i].StartPage < arena[j].StartPage
		}
		return arena[i].Level < arena[j].Level
	})

	var roots []doctree.SectionID
	var stack []doctree.SectionID
	for i := range arena {
		id := doctree.SectionID(i)
		arena[i].ID = id
		arena[i].Children = nil
		arena[i].Parent = doctree.NoSection

		for len(stack) > 0 && arena[stack[len(stack)-1]].Level >= arena[i].Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) > 0 {
			parent := stack[len(stack)-1]
			arena[i].Parent = parent
			arena[parent].Children = append(arena[parent].Children, id)
		} else {
			roots = append(roots, id)
		}
		stack = append(stack, id)
	}
	return arena, roots
}
