package auditor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"sql-guard/internal/model"
	"sql-guard/internal/parser"
)

// RowLimitRule requires a literal row cap no larger than the maximum.
type RowLimitRule struct{}

func (r *RowLimitRule) Name() model.CheckName { return model.CheckRowLimit }

func (r *RowLimitRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	end := scan.FirstStatement()
	at := -1
	for i := 0; i < end; i++ {
		if t := scan.Tokens[i]; t.Depth == 0 && (t.Is("LIMIT") || t.Is("FETCH")) && !commented(scan, t) {
			at = i
		}
	}
	if at < 0 {
		return model.Fail(r.Name(), model.SeverityMedium, model.CodeLimitMissing, "no top-level LIMIT")
	}

	var count parser.Token
	if scan.Tokens[at].Is("LIMIT") {
		count = scan.At(at + 1)
		if scan.At(at+2).Kind == parser.Comma {
			count = scan.At(at + 3)
		}
	} else {
		// FETCH FIRST|NEXT [n] ROW|ROWS ONLY
		count = scan.At(at + 2)
		if count.Is("ROW") || count.Is("ROWS") {
			count = parser.Token{Kind: parser.Number, Text: "1", Pos: count.Pos}
		}
	}
	if count.Kind != parser.Number {
		return model.Fail(r.Name(), model.SeverityMedium, model.CodeLimitMissing,
			fmt.Sprintf("row limit at offset %d is not a literal count", scan.Tokens[at].Pos))
	}

	n, err := strconv.ParseInt(count.Text, 10, 64)
	if err != nil {
		if isDigits(count.Text) {
			return model.Fail(r.Name(), model.SeverityHigh, model.CodeLimitExceeded,
				fmt.Sprintf("row limit %s exceeds maximum %d", count.Text, vctx.MaxRowLimit))
		}
		return model.Fail(r.Name(), model.SeverityMedium, model.CodeLimitMissing,
			fmt.Sprintf("row limit %s is not an integer", count.Text))
	}
	if n > int64(vctx.MaxRowLimit) {
		return model.Fail(r.Name(), model.SeverityHigh, model.CodeLimitExceeded,
			fmt.Sprintf("row limit %d exceeds maximum %d", n, vctx.MaxRowLimit))
	}
	return model.Pass(r.Name())
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NestingRule caps the depth of subqueries and CTE bodies.
type NestingRule struct{}

func (r *NestingRule) Name() model.CheckName { return model.CheckNestedQueryDepth }

func (r *NestingRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	if scan.MaxDepth > vctx.MaxNestingDepth {
		return model.Fail(r.Name(), model.SeverityMedium, model.CodeNesting,
			fmt.Sprintf("query nesting depth %d exceeds maximum %d", scan.MaxDepth, vctx.MaxNestingDepth))
	}
	return model.Pass(r.Name())
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// TimeWindowRule bounds the span between the earliest lower and the latest
// upper date literal, and the length of INTERVAL literals. Open ranges pass.
type TimeWindowRule struct{}

func (r *TimeWindowRule) Name() model.CheckName { return model.CheckTimeWindowLimit }

func (r *TimeWindowRule) Check(scan *parser.Scan, vctx *model.ValidationContext) model.CheckResult {
	// Bounds are pooled across columns, so a lower bound on one column and an
	// upper bound on another still form one window.
	var lower, upper time.Time
	var hasLower, hasUpper bool
	addLower := func(t time.Time) {
		if !hasLower || t.Before(lower) {
			lower, hasLower = t, true
		}
	}
	addUpper := func(t time.Time) {
		if !hasUpper || t.After(upper) {
			upper, hasUpper = t, true
		}
	}

	for i, t := range scan.Tokens {
		switch {
		case t.Kind == parser.String:
			d, ok := parseDate(t.Text)
			if !ok {
				continue
			}
			if op, ok := comparisonBefore(scan, i); ok {
				switch op {
				case ">", ">=":
					addLower(d)
				case "<", "<=":
					addUpper(d)
				}
			} else if op, ok := comparisonAfter(scan, i); ok {
				switch op {
				case ">", ">=":
					addUpper(d)
				case "<", "<=":
					addLower(d)
				}
			}
		case t.Is("BETWEEN"):
			a, next := dateOperand(scan, i+1)
			if !scan.At(next).Is("AND") {
				continue
			}
			b, _ := dateOperand(scan, next+1)
			if a != nil && b != nil {
				addLower(*a)
				addUpper(*b)
			}
		case t.Is("INTERVAL"):
			days, text, ok := intervalDays(scan, i+1)
			if ok && days > float64(vctx.MaxTimeWindowDays) {
				return model.Fail(r.Name(), model.SeverityMedium, model.CodeTimeWindow,
					fmt.Sprintf("INTERVAL %s exceeds %d days", text, vctx.MaxTimeWindowDays))
			}
		}
	}

	if hasLower && hasUpper {
		span := upper.Sub(lower).Hours() / 24
		if span > float64(vctx.MaxTimeWindowDays) {
			return model.Fail(r.Name(), model.SeverityMedium, model.CodeTimeWindow,
				fmt.Sprintf("date range %s to %s spans %d days, maximum %d",
					lower.Format("2006-01-02"), upper.Format("2006-01-02"), int(math.Ceil(span)), vctx.MaxTimeWindowDays))
		}
	}
	return model.Pass(r.Name())
}

// comparisonBefore returns the operator left of the literal at i, skipping a
// DATE or TIMESTAMP type prefix.
func comparisonBefore(scan *parser.Scan, i int) (string, bool) {
	k := i - 1
	if p := scan.At(k); p.Is("DATE") || p.Is("TIMESTAMP") || p.Is("TIMESTAMPTZ") {
		k--
	}
	op := scan.At(k)
	if op.Kind == parser.Op && isRangeOp(op.Text) {
		return op.Text, true
	}
	return "", false
}

// comparisonAfter returns the operator right of the literal at i, skipping a
// ::type cast.
func comparisonAfter(scan *parser.Scan, i int) (string, bool) {
	k := i + 1
	if c := scan.At(k); c.Kind == parser.Op && c.Text == "::" {
		k += 2
	}
	op := scan.At(k)
	if op.Kind == parser.Op && isRangeOp(op.Text) {
		return op.Text, true
	}
	return "", false
}

func isRangeOp(op string) bool {
	return op == "<" || op == "<=" || op == ">" || op == ">="
}

// dateOperand reads an optionally typed date literal at i.
func dateOperand(scan *parser.Scan, i int) (*time.Time, int) {
	if p := scan.At(i); p.Is("DATE") || p.Is("TIMESTAMP") || p.Is("TIMESTAMPTZ") {
		i++
	}
	t := scan.At(i)
	if t.Kind != parser.String {
		return nil, i + 1
	}
	next := i + 1
	if c := scan.At(next); c.Kind == parser.Op && c.Text == "::" {
		next += 2
	}
	d, ok := parseDate(t.Text)
	if !ok {
		return nil, next
	}
	return &d, next
}

var unitDays = map[string]float64{
	"second": 1.0 / 86400, "minute": 1.0 / 1440, "hour": 1.0 / 24,
	"day": 1, "week": 7, "mon": 30, "month": 30, "quarter": 91, "year": 365,
	"decade": 3650, "century": 36500, "millennium": 365000,
}

func unitLength(u string) (float64, bool) {
	u = strings.ToLower(u)
	if d, ok := unitDays[u]; ok {
		return d, true
	}
	if strings.HasSuffix(u, "s") {
		d, ok := unitDays[strings.TrimSuffix(u, "s")]
		return d, ok
	}
	switch u {
	case "y", "yr", "yrs":
		return 365, true
	case "d":
		return 1, true
	case "h", "hr", "hrs":
		return 1.0 / 24, true
	}
	return 0, false
}

// intervalDays reads INTERVAL 'n unit [n unit ...]', INTERVAL 'n' UNIT or
// INTERVAL n UNIT starting at i.
func intervalDays(scan *parser.Scan, i int) (float64, string, bool) {
	t := scan.At(i)
	switch t.Kind {
	case parser.String:
		fields := strings.Fields(t.Text)
		if len(fields) == 1 {
			unit := scan.At(i + 1)
			n, err := strconv.ParseFloat(fields[0], 64)
			days, ok := unitLength(unit.Text)
			if err != nil || unit.Kind != parser.Word || !ok {
				return 0, "", false
			}
			return n * days, fmt.Sprintf("'%s' %s", t.Text, unit.Upper), true
		}
		total := 0.0
		for k := 0; k+1 < len(fields); k += 2 {
			n, err := strconv.ParseFloat(fields[k], 64)
			days, ok := unitLength(fields[k+1])
			if err != nil || !ok {
				return 0, "", false
			}
			total += n * days
		}
		return total, fmt.Sprintf("'%s'", t.Text), true
	case parser.Number:
		unit := scan.At(i + 1)
		n, err := strconv.ParseFloat(t.Text, 64)
		days, ok := unitLength(unit.Text)
		if err != nil || unit.Kind != parser.Word || !ok {
			return 0, "", false
		}
		return n * days, t.Text + " " + unit.Upper, true
	}
	return 0, "", false
}
