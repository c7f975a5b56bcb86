package extractor

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"sql-guard/internal/model"
)

// RegexExtractor finds SELECT/WITH templates in string literals of Go and
// Python sources.
type RegexExtractor struct {
}

func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

// Patterns for different quote types. Group 1 is the template text.
// Backtick and triple-quoted strings may span lines; the others may not.
var (
	tripleQuoteSQL = regexp.MustCompile(`(?s)(?:"""|''')\s*((?i:SELECT|WITH)\b.*?)(?:"""|''')`)
	backTickSQL    = regexp.MustCompile("`\\s*((?i:SELECT|WITH)\\b[^`]*)`")
	doubleQuoteSQL = regexp.MustCompile(`"((?i:SELECT|WITH)\b(?:[^"\\\n]|\\.)*)"`)
	singleQuoteSQL = regexp.MustCompile(`'((?i:SELECT|WITH)\b(?:[^'\\\n]|\\.)*)'`)
)

type span struct{ start, end int }

func (e *RegexExtractor) Extract(filePath string, content []byte) ([]model.SQLSegment, error) {
	type found struct {
		seg model.SQLSegment
		at  int
	}
	var (
		hits    []found
		covered []span
	)
	lang := languageOf(filePath)

	// Earlier patterns win: a triple-quoted string also contains a
	// double-quoted one.
	for _, re := range []*regexp.Regexp{tripleQuoteSQL, backTickSQL, doubleQuoteSQL, singleQuoteSQL} {
		for _, m := range re.FindAllSubmatchIndex(content, -1) {
			whole := span{m[0], m[1]}
			if overlaps(covered, whole) {
				continue
			}
			covered = append(covered, whole)

			sql := string(content[m[2]:m[3]])
			if re == doubleQuoteSQL {
				sql = unescape(sql)
			}
			hits = append(hits, found{
				seg: model.SQLSegment{
					SQL: strings.TrimSpace(sql),
					Location: model.Location{
						FilePath: filePath,
						Line:     1 + bytes.Count(content[:m[2]], []byte("\n")),
					},
					Language: lang,
				},
				at: m[0],
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	var segments []model.SQLSegment
	for _, h := range hits {
		segments = append(segments, h.seg)
	}
	return segments, nil
}

func overlaps(covered []span, s span) bool {
	for _, c := range covered {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

// unescape resolves Go/Python escapes in a double-quoted literal, keeping the
// raw text when it is not a valid Go string.
func unescape(s string) string {
	if u, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return u
	}
	return s
}

// SQLFileExtractor treats a whole .sql file as one template.
type SQLFileExtractor struct {
}

func NewSQLFileExtractor() *SQLFileExtractor {
	return &SQLFileExtractor{}
}

func (e *SQLFileExtractor) Extract(filePath string, content []byte) ([]model.SQLSegment, error) {
	text := string(content)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, nil
	}
	lead := text[:strings.Index(text, trimmed)]
	return []model.SQLSegment{{
		SQL: trimmed,
		Location: model.Location{
			FilePath: filePath,
			Line:     1 + strings.Count(lead, "\n"),
		},
		Language: "sql",
	}}, nil
}

func languageOf(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".sql":
		return "sql"
	default:
		return "detected"
	}
}

// Manager selects the appropriate extractor based on file extension
type Manager struct {
	extractors map[string]model.Extractor
	fallback   model.Extractor
}

func NewManager() *Manager {
	return &Manager{
		extractors: make(map[string]model.Extractor),
		fallback:   NewRegexExtractor(),
	}
}

// NewDefaultManager registers the source and .sql extractors.
func NewDefaultManager() *Manager {
	m := NewManager()
	generic := NewRegexExtractor()
	m.Register("go", generic)
	m.Register("py", generic)
	m.Register("sql", NewSQLFileExtractor())
	return m
}

func (m *Manager) Register(ext string, extr model.Extractor) {
	m.extractors[strings.ToLower(strings.TrimPrefix(ext, "."))] = extr
}

func (m *Manager) Extract(filePath string) ([]model.SQLSegment, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	if extr, ok := m.extractors[ext]; ok {
		return extr.Extract(filePath, content)
	}
	return m.fallback.Extract(filePath, content)
}
