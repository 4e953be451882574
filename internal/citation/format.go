// Package citation renders model citations as a human-readable source list.
package citation

import (
	"regexp"
	"strings"

	"github.com/seyyidi/ravenchat/internal/domain"
)

// Header opens the source block appended to a final answer.
const Header = "\n\n**Sources**:\n"

// Chunk-qualified PDF names like report.chunk1.pdf collapse to report.pdf.
var pdfChunkPattern = regexp.MustCompile(`([^/]+)\.[^.]+\.pdf$`)

// FormatSources renders citations as a header plus one bullet per unique
// source. Citations referencing different chunks of the same PDF collapse to
// the base document name before deduplication. Empty input produces no block.
func FormatSources(citations []domain.Citation) string {
	if len(citations) == 0 {
		return ""
	}

	seen := make(map[string]bool, len(citations))
	var b strings.Builder
	b.WriteString(Header)
	for _, c := range citations {
		source := DisplayName(c.URL)
		if seen[source] {
			continue
		}
		seen[source] = true
		b.WriteString("- ")
		b.WriteString(source)
		b.WriteString("\n")
	}
	return b.String()
}

// DisplayName rewrites a chunk-qualified PDF url to its base document name
// and leaves every other url untouched.
func DisplayName(url string) string {
	if m := pdfChunkPattern.FindStringSubmatch(url); m != nil {
		return m[1] + ".pdf"
	}
	return url
}
