package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"sql-guard/internal/normalizer"
)

// Kind classifies a token.
type Kind int

const (
	Word Kind = iota
	QuotedIdent
	Number
	String
	Op
	LParen
	RParen
	Comma
	Dot
	Semicolon
	CommentOpen
	CommentClose
	Other
)

// Token is one lexical unit of the normalized text. Depth is the paren depth
// the token sits at; for parens it is the depth outside the group.
// QueryDepth counts the enclosing parens that open a SELECT or CTE scope.
type Token struct {
	Kind       Kind
	Text       string // literal content for String, unquoted name for QuotedIdent
	Upper      string
	Pos        int
	End        int
	Depth      int
	QueryDepth int
	Stmt       int
}

// Is reports whether the token is the unquoted word kw (uppercase).
func (t Token) Is(kw string) bool {
	return t.Kind == Word && t.Upper == kw
}

// IsIdent reports whether the token can name a column, table or function.
func (t Token) IsIdent() bool {
	return t.Kind == QuotedIdent || (t.Kind == Word && !IsKeyword(t.Upper))
}

// Lower is the lowercased identifier text.
func (t Token) Lower() string {
	return strings.ToLower(t.Text)
}

// Scan holds the structural facts the checks share. It is built once per
// candidate and only read afterwards.
type Scan struct {
	normalizer.Normalized

	Tokens []Token
	// Boundaries are byte offsets of semicolons at paren depth zero.
	Boundaries []int
	MaxDepth   int

	Tables []TableRef
	Joins  []JoinRef
	Calls  []FuncCall
	CTEs   map[string]struct{}
	// Glued holds words rebuilt across block comments with no surrounding
	// whitespace, e.g. DR/**/OP.
	Glued []Token

	match     []int
	tableToks map[int]bool
	cteDefs   map[int]bool
}

// Parse normalizes raw and scans it.
func Parse(raw string) *Scan {
	return Tokenize(normalizer.Normalize(raw))
}

// Tokenize scans already normalized text.
func Tokenize(n normalizer.Normalized) *Scan {
	s := &Scan{
		Normalized: n,
		CTEs:       map[string]struct{}{},
		tableToks:  map[int]bool{},
		cteDefs:    map[int]bool{},
	}
	s.Tokens = lex(n)
	s.structure()
	s.extractCTEs()
	s.extractCalls()
	s.extractTables()
	s.glue()
	return s
}

// Matching returns the index of the paren matching the one at i, or -1.
func (s *Scan) Matching(i int) int {
	if i < 0 || i >= len(s.match) {
		return -1
	}
	return s.match[i]
}

// At returns the token at i, or a zero Other token when out of range.
func (s *Scan) At(i int) Token {
	if i < 0 || i >= len(s.Tokens) {
		return Token{Kind: Other, Pos: len(s.Text), End: len(s.Text), Stmt: -1}
	}
	return s.Tokens[i]
}

// IsTableToken reports whether token i names a FROM/JOIN target.
func (s *Scan) IsTableToken(i int) bool {
	return s.tableToks[i]
}

// FirstStatement returns the token index range [0, end) of the first
// statement, excluding its terminating semicolon.
func (s *Scan) FirstStatement() int {
	for i, t := range s.Tokens {
		if t.Kind == Semicolon && t.Depth == 0 {
			return i
		}
	}
	return len(s.Tokens)
}

func lex(n normalizer.Normalized) []Token {
	text := n.Text
	var toks []Token
	add := func(k Kind, start, end int, txt string) {
		toks = append(toks, Token{Kind: k, Text: txt, Upper: strings.ToUpper(txt), Pos: start, End: end})
	}

	for i := 0; i < len(text); {
		if span, ok := n.LiteralAt(i); ok {
			body := text[span.Start+1 : span.End-1]
			add(String, span.Start, span.End, strings.ReplaceAll(body, "''", "'"))
			i = span.End
			continue
		}

		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '"' || c == '`':
			end, name, ok := quoted(text, i, c)
			if !ok || n.InComment(i) {
				add(Other, i, i+1, text[i:i+1])
				i++
				continue
			}
			add(QuotedIdent, i, end, name)
			i = end
		case isDigit(c):
			j := i + 1
			for j < len(text) && (isAlnum(text[j]) || text[j] == '.') {
				j++
			}
			add(Number, i, j, text[i:j])
			i = j
		case c == '-' && next(text, i) == '-':
			add(CommentOpen, i, i+2, "--")
			i += 2
		case c == '/' && next(text, i) == '*':
			add(CommentOpen, i, i+2, "/*")
			i += 2
		case c == '*' && next(text, i) == '/':
			add(CommentClose, i, i+2, "*/")
			i += 2
		case c == '(':
			add(LParen, i, i+1, "(")
			i++
		case c == ')':
			add(RParen, i, i+1, ")")
			i++
		case c == ',':
			add(Comma, i, i+1, ",")
			i++
		case c == '.':
			add(Dot, i, i+1, ".")
			i++
		case c == ';':
			add(Semicolon, i, i+1, ";")
			i++
		case c == '$' && isDigit(next(text, i)):
			j := i + 1
			for j < len(text) && isDigit(text[j]) {
				j++
			}
			add(Other, i, j, text[i:j])
			i = j
		case strings.IndexByte("=<>!|:+-*/%^&~?#@$", c) >= 0:
			j := i + 1
			if j < len(text) && isTwoCharOp(text[i:j+1]) {
				j++
			}
			add(Op, i, j, text[i:j])
			i = j
		default:
			r, size := utf8.DecodeRuneInString(text[i:])
			if isWordStart(r) {
				j := i + size
				for j < len(text) {
					r2, sz := utf8.DecodeRuneInString(text[j:])
					if !isWordPart(r2) {
						break
					}
					j += sz
				}
				add(Word, i, j, text[i:j])
				i = j
				continue
			}
			add(Other, i, i+size, text[i:i+size])
			i += size
		}
	}
	return toks
}

// structure assigns depths and statement indexes and matches parens.
func (s *Scan) structure() {
	s.match = make([]int, len(s.Tokens))
	var stack []int
	var isQuery []bool
	queries := 0
	stmt := 0

	for i := range s.Tokens {
		s.match[i] = -1
		t := &s.Tokens[i]
		t.Stmt = stmt
		switch t.Kind {
		case LParen:
			t.Depth = len(stack)
			t.QueryDepth = queries
			query := false
			if nt := s.At(i + 1); nt.Is("SELECT") || nt.Is("WITH") {
				query = true
				queries++
				if queries > s.MaxDepth {
					s.MaxDepth = queries
				}
			}
			stack = append(stack, i)
			isQuery = append(isQuery, query)
		case RParen:
			if len(stack) > 0 {
				open := stack[len(stack)-1]
				if isQuery[len(isQuery)-1] {
					queries--
				}
				stack = stack[:len(stack)-1]
				isQuery = isQuery[:len(isQuery)-1]
				s.match[open] = i
				s.match[i] = open
			}
			t.Depth = len(stack)
			t.QueryDepth = queries
		default:
			t.Depth = len(stack)
			t.QueryDepth = queries
			if t.Kind == Semicolon && len(stack) == 0 {
				s.Boundaries = append(s.Boundaries, t.Pos)
				stmt++
			}
		}
	}
}

// enclosingCall reports whether the innermost group around token i was
// opened by a function-style word such as EXTRACT( or SUBSTRING(.
func (s *Scan) enclosingCall(i int) bool {
	depth := s.Tokens[i].Depth
	for j := i - 1; j >= 0; j-- {
		t := s.Tokens[j]
		if t.Kind == LParen && t.Depth == depth-1 {
			pt := s.At(j - 1)
			return pt.Kind == Word && !IsKeyword(pt.Upper)
		}
	}
	return false
}

func quoted(text string, i int, q byte) (int, string, bool) {
	var b strings.Builder
	j := i + 1
	for j < len(text) {
		if text[j] == q {
			if j+1 < len(text) && text[j+1] == q {
				b.WriteByte(q)
				j += 2
				continue
			}
			return j + 1, b.String(), true
		}
		b.WriteByte(text[j])
		j++
	}
	return j, "", false
}

func next(text string, i int) byte {
	if i+1 < len(text) {
		return text[i+1]
	}
	return 0
}

func isTwoCharOp(op string) bool {
	switch op {
	case "<>", "!=", "<=", ">=", "||", "::", "==", ":=", "->", "#>", "@>", "<@":
		return true
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isAlnum(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isWordStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isWordPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
