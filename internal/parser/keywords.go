package parser

// reserved are words that never name a column, table alias or function.
var reserved = map[string]struct{}{}

func init() {
	for _, kw := range []string{
		"ALL", "AND", "ANY", "ARRAY", "AS", "ASC", "BETWEEN", "BY", "CASE",
		"CROSS", "DESC", "DISTINCT", "ELSE", "END", "EXCEPT", "EXISTS",
		"FETCH", "FILTER", "FIRST", "FOR", "FROM", "FULL", "GROUP", "HAVING",
		"ILIKE", "IN", "INNER", "INTERSECT", "INTERVAL", "INTO", "IS", "JOIN",
		"LAST", "LATERAL", "LEFT", "LIKE", "LIMIT", "MATERIALIZED", "NATURAL",
		"NOT", "NULL", "NULLS", "OFFSET", "ON", "ONLY", "OR", "ORDER", "OUTER",
		"OVER", "PARTITION", "RECURSIVE", "RETURNING", "RIGHT", "ROW", "ROWS",
		"SELECT", "SET", "SOME", "TABLE", "THEN", "TRUE", "FALSE", "UNION",
		"USING", "VALUES", "WHEN", "WHERE", "WINDOW", "WITH", "WITHIN",
	} {
		reserved[kw] = struct{}{}
	}
}

// IsKeyword reports whether the uppercase word is reserved.
func IsKeyword(upper string) bool {
	_, ok := reserved[upper]
	return ok
}

// clauseEnd lists keywords that end a WHERE clause at its own depth.
var clauseEnd = map[string]bool{
	"GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true,
	"OFFSET": true, "FETCH": true, "UNION": true, "INTERSECT": true,
	"EXCEPT": true, "WINDOW": true, "RETURNING": true, "FOR": true,
}

// IsClauseEnd reports whether the uppercase word starts a clause that
// follows WHERE.
func IsClauseEnd(upper string) bool {
	return clauseEnd[upper]
}
