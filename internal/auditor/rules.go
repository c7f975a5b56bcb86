package auditor

import (
	"fmt"
	"strconv"
	"strings"

	"sql-guard/internal/model"
	"sql-guard/internal/parser"
)

var forbiddenKeywords = map[string]bool{
	"DROP": true, "DELETE": true, "UPDATE": true, "INSERT": true,
	"ALTER": true, "TRUNCATE": true, "EXEC": true, "EXECUTE": true,
	"CREATE": true, "GRANT": true, "REVOKE": true, "MERGE": true,
	"SHUTDOWN": true,
}

// InjectionRule detects stacked statements, write/DDL keywords, extended
// procedure prefixes and always-true predicates after OR.
type InjectionRule struct{}

func (r *InjectionRule) Name() model.CheckName { return model.CheckSQLInjection }

func (r *InjectionRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	for _, detect := range []func(*parser.Scan) string{stackedStatement, forbiddenWord, tautology} {
		if details := detect(scan); details != "" {
			return model.Fail(r.Name(), model.SeverityCritical, model.CodeInjection, details)
		}
	}
	return model.Pass(r.Name())
}

// stackedStatement finds a semicolon followed by anything other than more
// semicolons or comment text.
func stackedStatement(scan *parser.Scan) string {
	for i, t := range scan.Tokens {
		if t.Kind != parser.Semicolon {
			continue
		}
		for _, rest := range scan.Tokens[i+1:] {
			if rest.Kind == parser.Semicolon || scan.InComment(rest.Pos) {
				continue
			}
			return fmt.Sprintf("statement stacked after ';' at offset %d", t.Pos)
		}
	}
	return ""
}

func forbiddenWord(scan *parser.Scan) string {
	for _, toks := range [][]parser.Token{scan.Tokens, scan.Glued} {
		for _, t := range toks {
			if t.Kind != parser.Word {
				continue
			}
			if forbiddenKeywords[t.Upper] {
				return fmt.Sprintf("forbidden keyword %s", t.Upper)
			}
			if strings.HasPrefix(t.Upper, "XP_") || strings.HasPrefix(t.Upper, "SP_") {
				return fmt.Sprintf("extended procedure %s", t.Lower())
			}
		}
	}
	return ""
}

func tautology(scan *parser.Scan) string {
	for i, t := range scan.Tokens {
		if !t.Is("OR") && !(t.Kind == parser.Op && t.Text == "||") {
			continue
		}
		j := i + 1
		for scan.At(j).Kind == parser.LParen {
			j++
		}
		if v, known, _ := constantTruth(scan, j); known && v {
			return fmt.Sprintf("always-true predicate after OR at offset %d", t.Pos)
		}
	}
	return ""
}

// constantTruth evaluates the predicate starting at token i when it is built
// from constants only. next is the index after the predicate.
func constantTruth(scan *parser.Scan, i int) (value, known bool, next int) {
	t := scan.At(i)
	if t.Is("NOT") {
		v, ok, n := constantTruth(scan, i+1)
		return !v, ok, n
	}

	op := scan.At(i + 1)
	rhs := scan.At(i + 2)
	if op.Kind == parser.Op && isComparison(op.Text) && isOperand(rhs) {
		if v, ok := compare(t, op.Text, rhs); ok {
			return v, true, i + 3
		}
		return false, false, i + 3
	}
	if op.Is("LIKE") && isOperand(t) && rhs.Kind == parser.String && strings.Trim(rhs.Text, "%") == "" {
		return true, true, i + 3
	}
	if op.Is("IS") && (t.Kind == parser.Number || t.Kind == parser.String) {
		if scan.At(i+2).Is("NOT") && scan.At(i+3).Is("NULL") {
			return true, true, i + 4
		}
		if scan.At(i+2).Is("NULL") {
			return false, true, i + 3
		}
	}

	switch {
	case t.Is("TRUE"):
		return true, true, i + 1
	case t.Is("FALSE"):
		return false, true, i + 1
	case t.Kind == parser.Number:
		f, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return false, false, i + 1
		}
		return f != 0, true, i + 1
	}
	return false, false, i + 1
}

func isComparison(op string) bool {
	switch op {
	case "=", "==", "<>", "!=", "<", ">", "<=", ">=":
		return true
	}
	return false
}

func isOperand(t parser.Token) bool {
	switch t.Kind {
	case parser.Number, parser.String, parser.QuotedIdent:
		return true
	case parser.Word:
		return t.IsIdent() || t.Is("TRUE") || t.Is("FALSE")
	}
	return false
}

// compare evaluates a op b when the outcome does not depend on row data.
func compare(a parser.Token, op string, b parser.Token) (bool, bool) {
	if a.Kind == parser.Word || a.Kind == parser.QuotedIdent || b.Kind == parser.Word || b.Kind == parser.QuotedIdent {
		// x = x holds for any non-null x
		if a.Kind == b.Kind && strings.EqualFold(a.Text, b.Text) {
			switch op {
			case "=", "==", "<=", ">=":
				return true, true
			case "<>", "!=", "<", ">":
				return false, true
			}
		}
		return false, false
	}

	af, aerr := strconv.ParseFloat(strings.TrimSpace(a.Text), 64)
	bf, berr := strconv.ParseFloat(strings.TrimSpace(b.Text), 64)
	if aerr == nil && berr == nil {
		return ordered(af < bf, af == bf, op), true
	}
	if a.Kind == parser.String && b.Kind == parser.String {
		return ordered(a.Text < b.Text, a.Text == b.Text, op), true
	}
	return false, false
}

func ordered(less, equal bool, op string) bool {
	switch op {
	case "=", "==":
		return equal
	case "<>", "!=":
		return !equal
	case "<":
		return less
	case "<=":
		return less || equal
	case ">":
		return !less && !equal
	case ">=":
		return !less
	}
	return false
}

// UnionRule detects UNION and UNION ALL outside literals.
type UnionRule struct{}

func (r *UnionRule) Name() model.CheckName { return model.CheckUnionInjection }

func (r *UnionRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	for i, t := range scan.Tokens {
		if t.Is("UNION") {
			details := "UNION"
			if scan.At(i + 1).Is("ALL") {
				details = "UNION ALL"
			}
			return model.Fail(r.Name(), model.SeverityHigh, model.CodeUnion,
				fmt.Sprintf("%s at offset %d", details, t.Pos))
		}
	}
	for _, g := range scan.Glued {
		if g.Upper == "UNION" {
			return model.Fail(r.Name(), model.SeverityHigh, model.CodeUnion,
				fmt.Sprintf("UNION split by a comment at offset %d", g.Pos))
		}
	}
	return model.Pass(r.Name())
}

// CommentRule detects comment markers outside literals.
type CommentRule struct{}

func (r *CommentRule) Name() model.CheckName { return model.CheckCommentStripping }

func (r *CommentRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	for _, t := range scan.Tokens {
		if t.Kind == parser.CommentOpen || t.Kind == parser.CommentClose {
			return model.Fail(r.Name(), model.SeverityMedium, model.CodeComment,
				fmt.Sprintf("comment marker %q at offset %d", t.Text, t.Pos))
		}
	}
	return model.Pass(r.Name())
}
