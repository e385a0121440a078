package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docchunk/internal/doctree"
)

// TextParser handles plain text files. Form feeds separate pages and every
// non-blank line becomes a body span.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyInput
	}

	var l layout
	for _, pageText := range strings.Split(string(data), "\f") {
		l.newPage()
		scanner := bufio.NewScanner(strings.NewReader(pageText))
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			l.body(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scan text: %w", err)
		}
	}

	pages := l.result()
	return newDocument(filename, pages, len(pages), nil)
}
