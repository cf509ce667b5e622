package extractor

import (
	"strings"
)

// headingMaxLen is the longest line still considered a heading candidate.
const headingMaxLen = 60

// TextToMarkdown converts pdftotext layout output to markdown. Form feeds
// separate pages; runs of non-blank lines become paragraphs. Short isolated
// lines without terminal punctuation are treated as headings, which matches
// how layout text for titles and section heads comes out of poppler.
func TextToMarkdown(text string) string {
	var b strings.Builder
	for i, page := range strings.Split(text, "\f") {
		page = strings.TrimSpace(page)
		if page == "" {
			continue
		}
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		for _, para := range splitParagraphs(page) {
			if isHeading(para) {
				b.WriteString("## ")
				b.WriteString(para[0])
				b.WriteString("\n\n")
				continue
			}
			b.WriteString(strings.Join(para, " "))
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

// splitParagraphs groups consecutive non-blank lines. Layout mode indents
// with runs of spaces; those are collapsed so reflowed paragraphs read
// naturally.
func splitParagraphs(page string) [][]string {
	var (
		paras [][]string
		cur   []string
	)
	for _, line := range strings.Split(page, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(cur) > 0 {
				paras = append(paras, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		paras = append(paras, cur)
	}
	return paras
}

func isHeading(para []string) bool {
	if len(para) != 1 {
		return false
	}
	line := para[0]
	if line == "" || len(line) > headingMaxLen {
		return false
	}
	switch line[len(line)-1] {
	case '.', ',', ';', ':':
		return false
	}
	return true
}
