package structure

import "github.com/dgallion1/docchunk/internal/doctree"

// ResolveBoundaries fills in end pages on sections already in document order.
// A section ends where the next one starts; on a shared page the next section's
// start position approximates the end position. The last section runs to the
// end of the document.
func ResolveBoundaries(secs []doctree.Section, totalPages int) {
	for i := range secs {
		if i+1 < len(secs) {
			next := secs[i+1]
			secs[i].EndPage = next.StartPage
			if next.StartPage == secs[i].StartPage && next.StartPos != nil {
				pos := *next.StartPos
				secs[i].EndPos = &pos
			}
			continue
		}
		secs[i].EndPage = max(totalPages, secs[i].StartPage)
	}
}
