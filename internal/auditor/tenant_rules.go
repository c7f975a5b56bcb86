package auditor

import (
	"fmt"
	"strings"

	"sql-guard/internal/model"
	"sql-guard/internal/parser"
)

// TenantRule requires every top-level query arm of the first statement to
// restrict the tenant column to the caller's tenant through AND-only logic.
type TenantRule struct{}

func (r *TenantRule) Name() model.CheckName { return model.CheckTenantIsolation }

func (r *TenantRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	if vctx.TenantID == "" || vctx.TenantColumn == "" {
		return model.Fail(r.Name(), model.SeverityCritical, model.CodeTenantMissing, "no tenant in validation context")
	}

	var bypass string
	for _, arm := range queryArms(scan) {
		where := -1
		for i := arm[0]; i < arm[1]; i++ {
			if t := scan.Tokens[i]; t.Depth == 0 && t.Is("WHERE") && !commented(scan, t) {
				where = i
				break
			}
		}
		if where < 0 {
			return model.Fail(r.Name(), model.SeverityCritical, model.CodeTenantMissing, "no top-level WHERE clause")
		}
		// The clause ends at the next clause keyword or at a ')' closing a
		// group opened before WHERE. Groups inside the clause close at depth 0
		// too, so depth alone does not end it.
		end := where + 1
		for end < arm[1] {
			t := scan.Tokens[end]
			if t.Depth == 0 && !commented(scan, t) {
				if t.Kind == parser.RParen && scan.Matching(end) < where {
					break
				}
				if t.Kind == parser.Word && parser.IsClauseEnd(t.Upper) {
					break
				}
			}
			end++
		}

		bound, present := r.analyze(scan, where+1, end, 0, vctx)
		switch {
		case bound:
		case present:
			if bypass == "" {
				bypass = fmt.Sprintf("%s predicate at offset %d is reachable through OR", vctx.TenantColumn, scan.Tokens[where].Pos)
			}
		default:
			return model.Fail(r.Name(), model.SeverityCritical, model.CodeTenantMissing,
				fmt.Sprintf("WHERE clause does not restrict %s to the caller tenant", vctx.TenantColumn))
		}
	}
	if bypass != "" {
		return model.Fail(r.Name(), model.SeverityCritical, model.CodeTenantBypass, bypass)
	}
	return model.Pass(r.Name())
}

// queryArms splits the first statement at top-level set operators.
func queryArms(scan *parser.Scan) [][2]int {
	end := scan.FirstStatement()
	var arms [][2]int
	start := 0
	for i := 0; i < end; i++ {
		t := scan.Tokens[i]
		if t.Depth == 0 && (t.Is("UNION") || t.Is("INTERSECT") || t.Is("EXCEPT")) {
			arms = append(arms, [2]int{start, i})
			start = i + 1
		}
	}
	return append(arms, [2]int{start, end})
}

// analyze walks the boolean expression in tokens [from, to) at depth base.
// bound means a tenant predicate holds on every path; present means one
// appears at all.
func (r *TenantRule) analyze(scan *parser.Scan, from, to, base int, vctx *model.ValidationContext) (bound, present bool) {
	terms, hasOr := splitTerms(scan, from, to, base)
	for _, term := range terms {
		var tb, tp bool
		switch {
		case isTenantEquality(scan, term[0], term[1], vctx):
			tb, tp = true, true
		case scan.At(term[0]).Kind == parser.LParen && scan.Matching(term[0]) == term[1]-1:
			tb, tp = r.analyze(scan, term[0]+1, term[1]-1, base+1, vctx)
		}
		if tp {
			present = true
		}
		if tb && !hasOr {
			bound = true
		}
	}
	return bound, present
}

// commented reports whether t is comment text or a comment marker. Such
// tokens are not part of the statement the database runs.
func commented(scan *parser.Scan, t parser.Token) bool {
	return t.Kind == parser.CommentOpen || t.Kind == parser.CommentClose || scan.InComment(t.Pos)
}

// splitTerms cuts [from, to) at AND/OR connectives of depth base. The AND
// that belongs to BETWEEN is not a connective. Comment tokens are dropped
// from the ends of each term.
func splitTerms(scan *parser.Scan, from, to, base int) (terms [][2]int, hasOr bool) {
	add := func(a, b int) {
		for a < b && commented(scan, scan.Tokens[a]) {
			a++
		}
		for b > a && commented(scan, scan.Tokens[b-1]) {
			b--
		}
		if b > a {
			terms = append(terms, [2]int{a, b})
		}
	}
	start := from
	between := false
	for i := from; i < to; i++ {
		t := scan.Tokens[i]
		if t.Depth != base || commented(scan, t) {
			continue
		}
		switch {
		case t.Is("BETWEEN"):
			between = true
		case t.Is("AND") && between:
			between = false
		case t.Is("AND"), t.Is("OR"), t.Kind == parser.Op && t.Text == "||":
			if !t.Is("AND") {
				hasOr = true
			}
			add(start, i)
			start = i + 1
		}
	}
	add(start, to)
	return terms, hasOr
}

// isTenantEquality matches [qualifier.]column = 'tenant' in either order.
func isTenantEquality(scan *parser.Scan, from, to int, vctx *model.ValidationContext) bool {
	for i := from; i < to; i++ {
		t := scan.Tokens[i]
		if t.Kind != parser.Op || (t.Text != "=" && t.Text != "==") {
			continue
		}
		return (isTenantColumn(scan, from, i, vctx) && isTenantValue(scan, i+1, to, vctx)) ||
			(isTenantValue(scan, from, i, vctx) && isTenantColumn(scan, i+1, to, vctx))
	}
	return false
}

func isTenantColumn(scan *parser.Scan, from, to int, vctx *model.ValidationContext) bool {
	if to <= from || (to-from)%2 == 0 {
		return false
	}
	for i := from; i < to; i++ {
		t := scan.Tokens[i]
		if (i-from)%2 == 1 {
			if t.Kind != parser.Dot {
				return false
			}
			continue
		}
		if t.Kind != parser.QuotedIdent && t.Kind != parser.Word {
			return false
		}
	}
	return strings.EqualFold(scan.Tokens[to-1].Text, vctx.TenantColumn)
}

func isTenantValue(scan *parser.Scan, from, to int, vctx *model.ValidationContext) bool {
	if to-from != 1 {
		return false
	}
	t := scan.Tokens[from]
	return (t.Kind == parser.String || t.Kind == parser.Number) && t.Text == vctx.TenantID
}
