package refactor

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/codescalpel/scalpel/frontend"
	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/taint"
)

// LiteralPatternTemplate is one entry of the catalogue O2 asks for:
// "a concrete regex catalogue... produced and versioned." Template is a
// regexp with a single %s verb, filled in with regexp.QuoteMeta(identifier)
// at scan time; Language restricts the template to one recognized
// extension's language tag ("" matches every language).
type LiteralPatternTemplate struct {
	SinkCategory taint.Category
	Language     string
	Template     string
}

// LiteralPatterns is the versioned catalogue itself, per O2's resolution.
// Version travels with the templates; no cache key includes it.
type LiteralPatterns struct {
	Version   int
	Templates []LiteralPatternTemplate
}

// DefaultLiteralPatterns is the built-in catalogue covering the four
// sink categories §4.10's worked example and §3's sink taxonomy call
// out most often for identifier leakage through string content: SQL
// statements, NoSQL query operators, JSON object keys (config/serialized
// payloads), and template/format-string placeholders.
func DefaultLiteralPatterns() LiteralPatterns {
	return LiteralPatterns{
		Version: 1,
		Templates: []LiteralPatternTemplate{
			{SinkCategory: taint.CategorySql, Template: `(?i)\b(select|insert|update|delete|where|set|values|order\s+by|group\s+by)\b[^;]{0,200}\b%s\b`},
			{SinkCategory: taint.CategoryNosql, Template: `(?i)[\$"'](where|match|project|group)["'\$]?\s*:[^}]{0,200}\b%s\b`},
			{SinkCategory: taint.CategoryDeserialize, Template: `"%s"\s*:`},
			{SinkCategory: taint.CategoryCommand, Template: `[\{%%]\s*%s\s*[\}%%]`},
		},
	}
}

// compiledPattern pairs a template with the regexp it produces once the
// identifier is known. A template that fails to compile is skipped by
// compile without an error.
type compiledPattern struct {
	template LiteralPatternTemplate
	re       *regexp.Regexp
}

func (p LiteralPatterns) compile(identifier string) []compiledPattern {
	out := make([]compiledPattern, 0, len(p.Templates))
	for _, t := range p.Templates {
		pattern := fmt.Sprintf(t.Template, regexp.QuoteMeta(identifier))
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue // a malformed template never reaches production; skip defensively rather than panic mid-scan
		}
		out = append(out, compiledPattern{template: t, re: re})
	}
	return out
}

// scanLiteralReferences finds every occurrence of identifier inside a
// sink-shaped string literal across files, per §4.10: "by scanning
// literals with context-aware regexes keyed on the renamed identifier."
// This operates on raw file bytes rather than on parsed string-literal
// IR nodes because the sink categories span file types the language
// frontends don't parse at all (.sql, .json).
func scanLiteralReferences(files map[string][]byte, identifier string, patterns LiteralPatterns) []Location {
	compiled := patterns.compile(identifier)
	var out []Location
	for path, content := range files {
		lang := frontend.LanguageForExt(filepath.Ext(path))
		for _, cp := range compiled {
			if cp.template.Language != "" && cp.template.Language != lang {
				continue
			}
			for _, match := range cp.re.FindAllIndex(content, -1) {
				line, col := offsetToLineCol(content, match[0])
				out = append(out, Location{
					FilePath: path,
					Span: ir.SourceSpan{
						FilePath: path, StartLine: line, StartCol: col,
						ByteStart: uint32(match[0]), ByteEnd: uint32(match[1]),
					},
					Context:  "string_literal:" + string(cp.template.SinkCategory),
					Resolved: true,
				})
			}
		}
	}
	sortLocations(out)
	return out
}

func offsetToLineCol(content []byte, offset int) (line, col int) {
	line, col = 1, 1
	for i := 0; i < offset && i < len(content); i++ {
		if content[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

func sortLocations(locs []Location) {
	sort.Slice(locs, func(i, j int) bool {
		if locs[i].FilePath != locs[j].FilePath {
			return locs[i].FilePath < locs[j].FilePath
		}
		if locs[i].Span.StartLine != locs[j].Span.StartLine {
			return locs[i].Span.StartLine < locs[j].Span.StartLine
		}
		return locs[i].Span.StartCol < locs[j].Span.StartCol
	})
}
