package parser

import (
	"strings"
)

// TableRef is a FROM or JOIN target.
type TableRef struct {
	Name   string // lowercased, dotted when qualified
	Schema string
	Base   string
	Alias  string
	Pos    int
	Func   bool // table-valued function, e.g. FROM generate_series(...)
	Join   bool
	CTE    bool // reference to a name defined in a WITH clause
}

// JoinRef is one JOIN and what follows it.
type JoinRef struct {
	Kind         string // e.g. "LEFT JOIN", "CROSS JOIN"
	Target       TableRef
	Subquery     bool
	HasCondition bool
	Pos          int
}

// FuncCall is a word, or qualified word, immediately followed by "(".
type FuncCall struct {
	Name string // lowercased, dotted when qualified
	Base string
	Pos  int
}

var joinModifiers = map[string]bool{
	"LEFT": true, "RIGHT": true, "FULL": true, "INNER": true,
	"OUTER": true, "CROSS": true, "NATURAL": true,
}

// qualifiedName reads ident(.ident)* starting at i and returns the lowercased
// parts and the index of the last part.
func (s *Scan) qualifiedName(i int) ([]string, int) {
	t := s.At(i)
	if t.Kind != Word && t.Kind != QuotedIdent {
		return nil, i
	}
	parts := []string{t.Lower()}
	last := i
	for s.At(last+1).Kind == Dot {
		nt := s.At(last + 2)
		if nt.Kind != Word && nt.Kind != QuotedIdent {
			break
		}
		parts = append(parts, nt.Lower())
		last += 2
	}
	return parts, last
}

func (s *Scan) extractCTEs() {
	for i, t := range s.Tokens {
		if !t.Is("WITH") {
			continue
		}
		j := i + 1
		if s.At(j).Is("RECURSIVE") {
			j++
		}
		for {
			nt := s.At(j)
			if !nt.IsIdent() {
				break
			}
			k := j + 1
			if s.At(k).Kind == LParen {
				m := s.Matching(k)
				if m < 0 {
					break
				}
				k = m + 1
			}
			if !s.At(k).Is("AS") {
				break
			}
			k++
			if s.At(k).Is("NOT") {
				k++
			}
			if s.At(k).Is("MATERIALIZED") {
				k++
			}
			if s.At(k).Kind != LParen {
				break
			}
			s.CTEs[nt.Lower()] = struct{}{}
			s.cteDefs[j] = true

			m := s.Matching(k)
			if m < 0 || s.At(m+1).Kind != Comma {
				break
			}
			j = m + 2
		}
	}
}

func (s *Scan) extractCalls() {
	for i, t := range s.Tokens {
		if t.Kind != Word && t.Kind != QuotedIdent {
			continue
		}
		if s.At(i-1).Kind == Dot || s.cteDefs[i] {
			continue
		}
		parts, last := s.qualifiedName(i)
		if s.At(last+1).Kind != LParen {
			continue
		}
		if lt := s.At(last); lt.Kind == Word && IsKeyword(lt.Upper) {
			continue
		}
		// type modifiers and insert column lists look like calls
		pt := s.At(i - 1)
		if pt.Is("AS") || pt.Is("INTO") || pt.Is("TABLE") || (pt.Kind == Op && pt.Text == "::") {
			continue
		}
		s.Calls = append(s.Calls, FuncCall{
			Name: strings.Join(parts, "."),
			Base: parts[len(parts)-1],
			Pos:  t.Pos,
		})
	}
}

func (s *Scan) extractTables() {
	for i, t := range s.Tokens {
		switch {
		case t.Is("FROM"):
			// EXTRACT(YEAR FROM ts), SUBSTRING(x FROM 2), a IS DISTINCT FROM b
			if t.Depth > 0 && s.enclosingCall(i) {
				continue
			}
			if s.At(i - 1).Is("DISTINCT") {
				continue
			}
			j := i + 1
			for {
				ref, sub, next, ok := s.tableSource(j)
				if !ok {
					break
				}
				if !sub {
					s.Tables = append(s.Tables, ref)
				}
				if s.At(next).Kind != Comma {
					break
				}
				j = next + 1
			}
		case t.Is("JOIN"):
			kind := "JOIN"
			for k := i - 1; k >= 0 && s.Tokens[k].Kind == Word && joinModifiers[s.Tokens[k].Upper]; k-- {
				kind = s.Tokens[k].Upper + " " + kind
			}
			ref, sub, next, ok := s.tableSource(i + 1)
			jr := JoinRef{Kind: kind, Subquery: sub, Pos: t.Pos}
			if ok {
				jr.HasCondition = s.At(next).Is("ON") || s.At(next).Is("USING")
				if !sub {
					ref.Join = true
					jr.Target = ref
					s.Tables = append(s.Tables, ref)
				}
			}
			s.Joins = append(s.Joins, jr)
		}
	}
}

// tableSource reads one FROM/JOIN item at j: a name or a parenthesised
// subquery, then an optional alias. next is the index after the item.
func (s *Scan) tableSource(j int) (ref TableRef, subquery bool, next int, ok bool) {
	if s.At(j).Is("LATERAL") || s.At(j).Is("ONLY") {
		j++
	}
	t := s.At(j)
	switch {
	case t.Kind == LParen:
		m := s.Matching(j)
		if m < 0 {
			return ref, false, j, false
		}
		subquery = true
		next = m + 1
	case t.IsIdent():
		parts, last := s.qualifiedName(j)
		for k := j; k <= last; k += 2 {
			s.tableToks[k] = true
		}
		ref = TableRef{
			Name: strings.Join(parts, "."),
			Base: parts[len(parts)-1],
			Pos:  t.Pos,
		}
		if len(parts) > 1 {
			ref.Schema = parts[len(parts)-2]
		} else if _, ok := s.CTEs[ref.Name]; ok {
			ref.CTE = true
		}
		next = last + 1
		if s.At(next).Kind == LParen {
			ref.Func = true
			ref.CTE = false
			m := s.Matching(next)
			if m < 0 {
				return ref, false, len(s.Tokens), true
			}
			next = m + 1
		}
	default:
		return ref, false, j, false
	}

	if s.At(next).Is("AS") {
		next++
	}
	if a := s.At(next); a.IsIdent() {
		ref.Alias = a.Lower()
		next++
		if s.At(next).Kind == LParen {
			if m := s.Matching(next); m >= 0 {
				next = m + 1
			}
		}
	}
	return ref, subquery, next, true
}

func (s *Scan) glue() {
	for i := 0; i < len(s.Tokens); i++ {
		t := s.Tokens[i]
		if t.Kind != Word {
			continue
		}
		text, end, j := t.Text, t.End, i
		for {
			open := s.At(j + 1)
			if open.Kind != CommentOpen || open.Text != "/*" || open.Pos != end {
				break
			}
			k := j + 2
			for k < len(s.Tokens) && s.Tokens[k].Kind != CommentClose {
				k++
			}
			closing, w := s.At(k), s.At(k+1)
			if closing.Kind != CommentClose || w.Kind != Word || w.Pos != closing.End {
				break
			}
			text += w.Text
			end = w.End
			j = k + 1
		}
		if j == i {
			continue
		}
		g := t
		g.Text, g.Upper, g.End = text, strings.ToUpper(text), end
		s.Glued = append(s.Glued, g)
		i = j
	}
}
