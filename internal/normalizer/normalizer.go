// Package normalizer canonicalizes untrusted SQL text before any check looks
// at it, so that width variants, invisible characters and look-alike letters
// cannot smuggle keywords past the scanner.
package normalizer

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Span is a half-open byte range [Start, End) into Normalized.Text.
type Span struct {
	Start int
	End   int
}

// Normalized is the canonical form of a candidate plus the byte ranges of its
// single-quoted string literals (quotes included) and of its comments.
type Normalized struct {
	Text     string
	Literals []Span
	Comments []Span
}

// InLiteral reports whether the byte at pos lies inside a string literal.
func (n Normalized) InLiteral(pos int) bool {
	i := sort.Search(len(n.Literals), func(i int) bool { return n.Literals[i].End > pos })
	return i < len(n.Literals) && n.Literals[i].Start <= pos
}

// InComment reports whether the byte at pos lies inside a comment.
func (n Normalized) InComment(pos int) bool {
	i := sort.Search(len(n.Comments), func(i int) bool { return n.Comments[i].End > pos })
	return i < len(n.Comments) && n.Comments[i].Start <= pos
}

// LiteralAt returns the literal span starting at pos.
func (n Normalized) LiteralAt(pos int) (Span, bool) {
	i := sort.Search(len(n.Literals), func(i int) bool { return n.Literals[i].Start >= pos })
	if i < len(n.Literals) && n.Literals[i].Start == pos {
		return n.Literals[i], true
	}
	return Span{}, false
}

const (
	stateCode = iota
	stateLiteral
	stateLineComment
	stateBlockComment
)

// Normalize applies NFKC, strips invisible characters, folds look-alike
// letters to ASCII outside literals and collapses whitespace runs outside
// literals to a single space.
//
// Quotes inside comments never open a literal. A backslash never escapes a
// quote, and an unterminated literal produces no span, so its text is scanned
// like code by everything downstream.
func Normalize(raw string) Normalized {
	s := norm.NFKC.String(strings.ToValidUTF8(raw, "\uFFFD"))

	runes := make([]rune, 0, len(s))
	for _, r := range s {
		if !isInvisible(r) {
			runes = append(runes, r)
		}
	}

	var b strings.Builder
	b.Grow(len(s))

	var spans, comments []Span
	state := stateCode
	space := false
	litStart, commentStart := 0, 0

	emit := func(r rune) {
		if space {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
		}
		b.WriteRune(r)
	}
	next := func(i int) rune {
		if i+1 < len(runes) {
			return runes[i+1]
		}
		return 0
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if state == stateLiteral {
			b.WriteRune(r)
			if r == '\'' {
				if next(i) == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				spans = append(spans, Span{Start: litStart, End: b.Len()})
				state = stateCode
			}
			continue
		}

		if unicode.IsSpace(r) {
			space = true
			if state == stateLineComment && (r == '\n' || r == '\r') {
				comments = append(comments, Span{Start: commentStart, End: b.Len()})
				state = stateCode
			}
			continue
		}

		r = fold(r)
		switch state {
		case stateCode:
			switch {
			case r == '\'':
				emit(r)
				litStart = b.Len() - 1
				state = stateLiteral
			case r == '-' && next(i) == '-':
				emit(r)
				b.WriteByte('-')
				i++
				commentStart = b.Len() - 2
				state = stateLineComment
			case r == '/' && next(i) == '*':
				emit(r)
				b.WriteByte('*')
				i++
				commentStart = b.Len() - 2
				state = stateBlockComment
			default:
				emit(r)
			}
		case stateLineComment:
			emit(r)
		case stateBlockComment:
			emit(r)
			if r == '*' && next(i) == '/' {
				b.WriteByte('/')
				i++
				comments = append(comments, Span{Start: commentStart, End: b.Len()})
				state = stateCode
			}
		}
	}
	if state == stateLineComment || state == stateBlockComment {
		comments = append(comments, Span{Start: commentStart, End: b.Len()})
	}

	return Normalized{Text: b.String(), Literals: spans, Comments: comments}
}

func isInvisible(r rune) bool {
	switch r {
	case '\u034F', '\u115F', '\u1160', '\u180E', '\u3164', '\uFFA0':
		return true
	}
	return unicode.Is(unicode.Cf, r)
}

// homoglyphs maps Cyrillic and Greek letters that render like ASCII.
var homoglyphs = map[rune]rune{
	// Cyrillic lowercase
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'у': 'y', 'х': 'x',
	'і': 'i', 'ј': 'j', 'ѕ': 's', 'ԁ': 'd', 'һ': 'h', 'ԛ': 'q', 'ԝ': 'w',
	'ӏ': 'l', 'ү': 'y',
	// Cyrillic uppercase
	'А': 'A', 'В': 'B', 'Е': 'E', 'К': 'K', 'М': 'M', 'Н': 'H', 'О': 'O',
	'Р': 'P', 'С': 'C', 'Т': 'T', 'Х': 'X', 'Ѕ': 'S', 'І': 'I', 'Ј': 'J',
	'Ү': 'Y', 'Ԛ': 'Q', 'Ԝ': 'W', 'Ӏ': 'I',
	// Greek
	'α': 'a', 'ο': 'o', 'ν': 'v', 'ρ': 'p', 'ι': 'i', 'κ': 'k', 'υ': 'u',
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I', 'Κ': 'K',
	'Μ': 'M', 'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T', 'Υ': 'Y', 'Χ': 'X',
	// Latin variants
	'ı': 'i', 'ſ': 's',
}

func fold(r rune) rune {
	if r < unicode.MaxASCII {
		return r
	}
	if a, ok := homoglyphs[r]; ok {
		return a
	}
	return r
}
