// Package anonymize rewrites person and location entities in retrieved text
// with stable, request-scoped pseudonyms, keeping the original mapping so
// the substitution can be reversed by the caller.
package anonymize

import (
	"sort"
	"strconv"

	"github.com/docuchat/docuchat/engine/domain"
)

// Tracked is the set of entity labels that get pseudonymized.
type Tracked map[string]bool

// DefaultTracked covers persons and locations.
func DefaultTracked() Tracked {
	return Tracked{"PER": true, "LOC": true}
}

// Mapping assigns pseudonyms to entity surface texts. It is scoped to one
// retrieval request: the same surface text always maps to the same
// pseudonym within a request, and per-label counters start at 0. A Mapping
// is not safe for concurrent use; callers pseudonymize hits sequentially
// in rank order so pseudonym allocation stays deterministic.
type Mapping struct {
	pseudonyms map[string]string
	counters   map[string]int
}

// NewMapping returns an empty request-scoped mapping.
func NewMapping() *Mapping {
	return &Mapping{
		pseudonyms: make(map[string]string),
		counters:   make(map[string]int),
	}
}

// Pseudonym returns the pseudonym for surface, allocating
// "{first-3-letters-of-label}_{counter}" on first sight.
func (m *Mapping) Pseudonym(label, surface string) string {
	if p, ok := m.pseudonyms[surface]; ok {
		return p
	}
	prefix := label
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	p := prefix + "_" + strconv.Itoa(m.counters[label])
	m.counters[label]++
	m.pseudonyms[surface] = p
	return p
}

// Len reports how many surfaces have been assigned pseudonyms.
func (m *Mapping) Len() int { return len(m.pseudonyms) }

// Result is the outcome of pseudonymizing one text block.
type Result struct {
	// Text is the input with tracked entities replaced by pseudonyms.
	Text string
	// Used maps each original surface text replaced in this block to its
	// pseudonym. A subset of the request mapping.
	Used map[string]string
}

// Pseudonymize scans entities in increasing start-offset order and replaces
// every tracked entity with its pseudonym from m. Text between entities and
// after the last tracked entity passes through unchanged; untracked
// entities stay verbatim. A span that overlaps an already replaced one is
// dropped, the earlier replacement wins.
func Pseudonymize(text string, entities []domain.Entity, tracked Tracked, m *Mapping) Result {
	ordered := make([]domain.Entity, len(entities))
	copy(ordered, entities)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	used := make(map[string]string)
	out := make([]byte, 0, len(text))
	prev := 0
	for _, ent := range ordered {
		if !tracked[ent.Label] {
			continue
		}
		if ent.Start < 0 || ent.End > len(text) || ent.Start > ent.End {
			continue
		}
		if ent.Start < prev {
			continue
		}
		original := text[ent.Start:ent.End]
		pseudo := m.Pseudonym(ent.Label, original)
		used[original] = pseudo
		out = append(out, text[prev:ent.Start]...)
		out = append(out, pseudo...)
		prev = ent.End
	}
	out = append(out, text[prev:]...)
	return Result{Text: string(out), Used: used}
}
