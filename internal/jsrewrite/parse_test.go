package jsrewrite

import (
	"strings"
	"testing"
)

func TestSpanSetCovers(t *testing.T) {
	set := newSpanSet([]span{{10, 20}, {12, 15}, {30, 40}, {0, 5}, {30, 35}})

	tests := []struct {
		name string
		sp   span
		want bool
	}{
		{"outer span itself", span{10, 20}, true},
		{"nested", span{13, 14}, true},
		{"inside discarded inner span", span{12, 15}, true},
		{"shared start", span{30, 38}, true},
		{"first span", span{1, 5}, true},
		{"gap", span{6, 9}, false},
		{"overlaps end", span{18, 25}, false},
		{"overlaps start", span{8, 12}, false},
		{"after all spans", span{41, 42}, false},
		{"empty at boundary", span{20, 20}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set.covers(tt.sp); got != tt.want {
				t.Errorf("covers(%v) = %v, want %v", tt.sp, got, tt.want)
			}
		})
	}

	if (spanSet{}).covers(span{0, 1}) {
		t.Error("empty set covers a span")
	}
}

func TestMarkComments(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		literals []string
		want     string
	}{
		{"line and block", "a = \"//x\"; // c\nb /* d */ c", []string{`"//x"`}, "// c/* d */"},
		{"unterminated block", "a /* open", nil, "/* open"},
		{"crlf", "x // a\r\ny", nil, "// a"},
		{"division", "a = b / c / d", nil, ""},
		{"regexp literal", `r = /\/\//g; x`, []string{`/\/\//g`}, ""},
		{"comment at end", "x //", nil, "//"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var lits []span
			for _, l := range tt.literals {
				i := strings.Index(tt.src, l)
				lits = append(lits, span{i, i + len(l)})
			}
			mask := make([]bool, len(tt.src))
			markComments(tt.src, lits, mask)

			var got strings.Builder
			for i, marked := range mask {
				if marked {
					got.WriteByte(tt.src[i])
				}
			}
			if got.String() != tt.want {
				t.Errorf("marked %q, want %q", got.String(), tt.want)
			}
		})
	}
}
