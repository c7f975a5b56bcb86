package normalizer

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "plain", raw: "SELECT a FROM t", want: "SELECT a FROM t"},
		{name: "whitespace runs", raw: "  SELECT\n\ta\r\n  FROM   t  ", want: "SELECT a FROM t"},
		{name: "full width", raw: "\uff33\uff25\uff2c\uff25\uff23\uff34 1", want: "SELECT 1"},
		{name: "zero width stripped", raw: "SEL\u200bECT\ufeff 1", want: "SELECT 1"},
		{name: "bidi override stripped", raw: "\u202eSELECT 1", want: "SELECT 1"},
		{name: "cyrillic folded", raw: "S\u0415L\u0415CT 1", want: "SELECT 1"},
		{name: "greek folded", raw: "\u039fR 1", want: "OR 1"},
		{name: "literal whitespace kept", raw: "WHERE a = 'x   y'", want: "WHERE a = 'x   y'"},
		{name: "literal homoglyph kept", raw: "WHERE a = '\u0430'", want: "WHERE a = '\u0430'"},
		{name: "invalid utf8", raw: "SELECT \xff", want: "SELECT \ufffd"},
		{name: "non breaking space", raw: "SELECT\u00a0a", want: "SELECT a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if got.Text != tt.want {
				t.Errorf("Normalize() = %q, want %q", got.Text, tt.want)
			}
		})
	}
}

func TestNormalize_Literals(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantSpans []Span
	}{
		{name: "none", raw: "SELECT 1", wantSpans: nil},
		{name: "one", raw: "a = 'x'", wantSpans: []Span{{Start: 4, End: 7}}},
		{name: "doubled quote", raw: "a = 'it''s'", wantSpans: []Span{{Start: 4, End: 11}}},
		{name: "two", raw: "'a' 'b'", wantSpans: []Span{{Start: 0, End: 3}, {Start: 4, End: 7}}},
		{name: "backslash does not escape", raw: `'a\' OR 1`, wantSpans: []Span{{Start: 0, End: 4}}},
		{name: "unterminated", raw: "a = 'x", wantSpans: nil},
		{name: "quote in line comment", raw: "a -- it's\nb", wantSpans: nil},
		{name: "quote in block comment", raw: "/* ' */ 'x'", wantSpans: []Span{{Start: 8, End: 11}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if len(got.Literals) != len(tt.wantSpans) {
				t.Fatalf("Literals = %v, want %v", got.Literals, tt.wantSpans)
			}
			for i := range tt.wantSpans {
				if got.Literals[i] != tt.wantSpans[i] {
					t.Errorf("Literals[%d] = %v, want %v", i, got.Literals[i], tt.wantSpans[i])
				}
			}
		})
	}
}

func TestNormalized_InLiteral(t *testing.T) {
	n := Normalize("a = 'xy' -- c")

	for pos, want := range map[int]bool{0: false, 4: true, 6: true, 7: true, 8: false} {
		if got := n.InLiteral(pos); got != want {
			t.Errorf("InLiteral(%d) = %v, want %v", pos, got, want)
		}
	}
	if !n.InComment(9) || n.InComment(7) {
		t.Errorf("InComment mismatch, comments = %v", n.Comments)
	}
	if _, ok := n.LiteralAt(4); !ok {
		t.Errorf("LiteralAt(4) not found")
	}
	if _, ok := n.LiteralAt(5); ok {
		t.Errorf("LiteralAt(5) found a span that does not start there")
	}
}
