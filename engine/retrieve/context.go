package retrieve

import (
	"strings"

	"github.com/docuchat/docuchat/engine/domain"
)

// ExpandContext returns the text of up to before sections preceding and up to
// after sections following the section with targetIndex, each side joined
// with single spaces. sections must be sorted by ascending DocIndex; ranges
// are clipped at document boundaries. Adjacency is defined by position in
// the slice, so index gaps left by partial deletes do not widen the window.
func ExpandContext(sections []domain.Section, targetIndex, before, after int) (string, string) {
	pos := -1
	for i, s := range sections {
		if s.DocIndex == targetIndex {
			pos = i
			break
		}
	}
	if pos < 0 {
		return "", ""
	}

	lo := max(pos-before, 0)
	hi := min(pos+after+1, len(sections))

	return joinContents(sections[lo:pos]), joinContents(sections[pos+1 : hi])
}

func joinContents(sections []domain.Section) string {
	parts := make([]string, len(sections))
	for i, s := range sections {
		parts[i] = s.Content
	}
	return strings.Join(parts, " ")
}
