package doctree

// SectionID indexes a Section within its Structure's arena.
type SectionID int

// NoSection marks the absent parent of a root section.
const NoSection SectionID = -1

// Section is a node in the inferred document outline.
//
// Sections never point at each other directly: parent and children are ids into
// the owning Structure's Sections slice.
type Section struct {
	ID         SectionID   `json:"id"`
	Title      string      `json:"title"`
	Level      int         `json:"level"`
	StartPage  int         `json:"start_page"`
	EndPage    int         `json:"end_page,omitempty"` // 0 until resolved
	StartPos   *Position   `json:"start_pos,omitempty"`
	EndPos     *Position   `json:"end_pos,omitempty"`
	FontSize   float64     `json:"font_size,omitempty"` // 0 when unknown
	FontName   string      `json:"font_name,omitempty"`
	Confidence float64     `json:"confidence"`
	Children   []SectionID `json:"children,omitempty"`
	Parent     SectionID   `json:"parent"`
}

// IsRoot reports whether the section has no parent.
func (s Section) IsRoot() bool { return s.Parent == NoSection }

// Resolved reports whether the boundary resolver has set an end page.
func (s Section) Resolved() bool { return s.EndPage > 0 }

// Contains reports whether page lies within the section's resolved page range.
func (s Section) Contains(page int) bool {
	return s.Resolved() && page >= s.StartPage && page <= s.EndPage
}

// Structure is the inferred outline of one document.
type Structure struct {
	// Sections is the arena, in document order (start page, then level).
	Sections        []Section   `json:"sections"`
	Roots           []SectionID `json:"roots"`
	TOCDetected     bool        `json:"toc_detected"`
	Confidence      float64     `json:"structure_confidence"`
	HeadingPatterns []string    `json:"heading_patterns"`
	TotalHeadings   int         `json:"total_headings"`
}

// Section returns the section with the given id.
func (s *Structure) Section(id SectionID) (Section, bool) {
	if s == nil || id < 0 || int(id) >= len(s.Sections) {
		return Section{}, false
	}
	return s.Sections[id], true
}

// RootSections returns the top-level sections in order.
func (s *Structure) RootSections() []Section {
	out := make([]Section, 0, len(s.Roots))
	for _, id := range s.Roots {
		out = append(out, s.Sections[id])
	}
	return out
}

// ChildSections returns the direct children of id in order.
func (s *Structure) ChildSections(id SectionID) []Section {
	sec, ok := s.Section(id)
	if !ok {
		return nil
	}
	out := make([]Section, 0, len(sec.Children))
	for _, c := range sec.Children {
		out = append(out, s.Sections[c])
	}
	return out
}

// Flatten returns every section in pre-order, which is document order.
func (s *Structure) Flatten() []Section {
	if s == nil {
		return nil
	}
	out := make([]Section, 0, len(s.Sections))
	var walk func(ids []SectionID)
	walk = func(ids []SectionID) {
		for _, id := range ids {
			out = append(out, s.Sections[id])
			walk(s.Sections[id].Children)
		}
	}
	walk(s.Roots)
	return out
}

// SectionForPage returns the first section in document order whose page range
// contains page. A missing section is not an error.
func (s *Structure) SectionForPage(page int) (Section, bool) {
	if s == nil {
		return Section{}, false
	}
	for _, sec := range s.Flatten() {
		if sec.Contains(page) {
			return sec, true
		}
	}
	return Section{}, false
}

// Breadcrumb returns the titles from the root down to id.
func (s *Structure) Breadcrumb(id SectionID) []string {
	var titles []string
	for id != NoSection {
		sec, ok := s.Section(id)
		if !ok {
			break
		}
		titles = append([]string{sec.Title}, titles...)
		id = sec.Parent
	}
	return titles
}
