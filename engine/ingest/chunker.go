package ingest

import "strings"

// DefaultSentencesPerSection is the target section granularity. Sections are
// the unit of vector search and of context expansion, so they should stay
// small enough that a hit pinpoints a few sentences.
const DefaultSentencesPerSection = 3

// SectionContents groups the tagger's sentences into section texts of up to
// perSection sentences each, joined with single spaces. The grouping is
// deterministic: re-ingesting the same text yields the same sections in the
// same order.
func SectionContents(sentences []string, perSection int) []string {
	if perSection <= 0 {
		perSection = DefaultSentencesPerSection
	}

	var out []string
	for start := 0; start < len(sentences); start += perSection {
		end := min(start+perSection, len(sentences))
		part := strings.TrimSpace(strings.Join(sentences[start:end], " "))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
