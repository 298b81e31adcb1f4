package jsrewrite

import (
	"sort"
	"strings"
)

// edit replaces src[start:end] with text. Insertions have start == end.
// seq orders edits that share a start offset.
type edit struct {
	start, end int
	text       string
	seq        int
}

type editList struct {
	edits []edit
}

func (l *editList) replace(start, end int, text string) {
	l.edits = append(l.edits, edit{start: start, end: end, text: text})
}

func (l *editList) insert(at int, text string, seq int) {
	l.edits = append(l.edits, edit{start: at, end: at, text: text, seq: seq})
}

func (l *editList) len() int { return len(l.edits) }

// apply materializes the edits over src in one pass and returns the result
// with the number of edits kept. An edit that overlaps an earlier one is dropped.
func (l *editList) apply(src string) (string, int) {
	if len(l.edits) == 0 {
		return src, 0
	}

	edits := make([]edit, len(l.edits))
	copy(edits, l.edits)
	sort.SliceStable(edits, func(i, j int) bool {
		a, b := edits[i], edits[j]
		if a.start != b.start {
			return a.start < b.start
		}
		// At one offset, insertions go before the replacement that starts there.
		if ai, bi := a.start == a.end, b.start == b.end; ai != bi {
			return ai
		}
		return a.seq < b.seq
	})

	var b strings.Builder
	b.Grow(len(src) + len(edits)*16)
	pos, kept := 0, 0
	for _, e := range edits {
		if e.start < pos || e.end > len(src) {
			continue
		}
		b.WriteString(src[pos:e.start])
		b.WriteString(e.text)
		pos = e.end
		kept++
	}
	b.WriteString(src[pos:])
	return b.String(), kept
}
