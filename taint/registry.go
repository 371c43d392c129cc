// Package taint implements the source/sink/sanitizer propagation engine:
// per-function intra-procedural taint tracking (engine.go) composed into
// a bounded inter-procedural walk over the project call graph
// (interprocedural.go). Grounded in the original engine's
// graph/callgraph/analysis/taint (intra-procedural forward analysis) and
// dsl/dataflow_executor.go (local vs. global scope, cross-function path
// walking), unified here behind a single shared Registry so source/sink/
// sanitizer definitions for every language live in one place.
package taint

import (
	"gopkg.in/yaml.v3"
)

// Category classifies a sink (and, symmetrically, which categories a
// sanitizer clears).
type Category string

const (
	CategorySql         Category = "sql"
	CategoryCommand     Category = "command"
	CategoryXss         Category = "xss"
	CategoryPath        Category = "path"
	CategoryDeserialize Category = "deserialize"
	CategorySsrf        Category = "ssrf"
	CategoryLdap        Category = "ldap"
	CategoryNosql       Category = "nosql"
)

// AllCategories lists every recognized sink category, used to validate a
// loaded registry document and to iterate "cleared for every category"
// sanitizers like int().
var AllCategories = []Category{
	CategorySql, CategoryCommand, CategoryXss, CategoryPath,
	CategoryDeserialize, CategorySsrf, CategoryLdap, CategoryNosql,
}

// Level is the taint state lattice: `{Untainted, Low,
// Medium, High, Critical}`. Defined as an ordered int so "max level of
// operands" (propagation rule 2) is a plain comparison.
type Level int

const (
	LevelUntainted Level = iota
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "untainted"
	}
}

func maxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// SourcePattern names a taint source: a call target pattern (matched the
// way the original engine's matchesFunctionName does: exact, dotted-suffix, or
// dotted-prefix) and the level it introduces.
type SourcePattern struct {
	Pattern  string `yaml:"pattern"`
	Language string `yaml:"language,omitempty"` // empty = all languages
	Level    string `yaml:"level"`
}

// SinkPattern names a taint sink: a call target pattern, its category, and
// the minimum incoming level that triggers a finding there.
type SinkPattern struct {
	Pattern   string   `yaml:"pattern"`
	Language  string   `yaml:"language,omitempty"`
	Category  Category `yaml:"category"`
	Threshold string   `yaml:"threshold"`
	CWE       string   `yaml:"cwe,omitempty"`
}

// SanitizerPattern names a function that clears one or more sink
// categories when its result replaces a tainted value.
type SanitizerPattern struct {
	Pattern    string     `yaml:"pattern"`
	Language   string     `yaml:"language,omitempty"`
	Categories []Category `yaml:"categories"`
}

// Document is the on-disk YAML shape for a taint configuration: user
// overrides merged under the built-in defaults, per §4.5/§6.
type Document struct {
	Sources    []SourcePattern    `yaml:"sources"`
	Sinks      []SinkPattern      `yaml:"sinks"`
	Sanitizers []SanitizerPattern `yaml:"sanitizers"`
}

// Registry is the single shared source of truth for sources/sinks/
// sanitizers: both the single-file and cross-file security scan tools
// consult the same Registry instance.
type Registry struct {
	Sources    []SourcePattern
	Sinks      []SinkPattern
	Sanitizers []SanitizerPattern
}

// ParseLevel converts a configuration-document level name to a Level,
// defaulting to LevelLow for an unrecognized string so a misconfigured
// entry still participates in analysis rather than being silently inert.
// An empty string, like "untainted", yields LevelUntainted.
func ParseLevel(s string) Level {
	switch s {
	case "low":
		return LevelLow
	case "medium":
		return LevelMedium
	case "high":
		return LevelHigh
	case "critical":
		return LevelCritical
	case "untainted", "":
		return LevelUntainted
	default:
		return LevelLow
	}
}

// DefaultDocument is the minimum recognized set from §4.5: web request
// fields, environment access, subprocess output, file reads, and
// deserialized network payloads as sources; per-language call patterns for
// six of the eight sink categories (sql, command, xss, path, deserialize,
// ssrf; no ldap or nosql sink is built in); int()/html.escape()/shlex.quote() and
// parameterized-query recognition as sanitizers.
func DefaultDocument() Document {
	return Document{
		Sources: []SourcePattern{
			{Pattern: "request.args.get", Language: "python", Level: "high"},
			{Pattern: "request.form.get", Language: "python", Level: "high"},
			{Pattern: "request.GET.get", Language: "python", Level: "high"},
			{Pattern: "request.body", Language: "python", Level: "high"},
			{Pattern: "input", Language: "python", Level: "high"},
			{Pattern: "os.getenv", Language: "python", Level: "medium"},
			{Pattern: "os.environ.get", Language: "python", Level: "medium"},
			{Pattern: "subprocess.check_output", Language: "python", Level: "high"},
			{Pattern: "pickle.loads", Language: "python", Level: "critical"},
			{Pattern: "req.query", Language: "javascript", Level: "high"},
			{Pattern: "req.body", Language: "javascript", Level: "high"},
			{Pattern: "req.params", Language: "javascript", Level: "high"},
			{Pattern: "process.env", Language: "javascript", Level: "medium"},
			{Pattern: "JSON.parse", Language: "javascript", Level: "medium"},
			{Pattern: "request.getParameter", Language: "java", Level: "high"},
			{Pattern: "System.getenv", Language: "java", Level: "medium"},
			{Pattern: "ObjectInputStream.readObject", Language: "java", Level: "critical"},
		},
		Sinks: []SinkPattern{
			{Pattern: "cursor.execute", Language: "python", Category: CategorySql, Threshold: "low", CWE: "CWE-89"},
			{Pattern: "session.execute", Language: "python", Category: CategorySql, Threshold: "low", CWE: "CWE-89"},
			{Pattern: "os.system", Language: "python", Category: CategoryCommand, Threshold: "low", CWE: "CWE-78"},
			{Pattern: "subprocess.call", Language: "python", Category: CategoryCommand, Threshold: "low", CWE: "CWE-78"},
			{Pattern: "subprocess.Popen", Language: "python", Category: CategoryCommand, Threshold: "low", CWE: "CWE-78"},
			{Pattern: "open", Language: "python", Category: CategoryPath, Threshold: "medium", CWE: "CWE-22"},
			{Pattern: "pickle.loads", Language: "python", Category: CategoryDeserialize, Threshold: "low", CWE: "CWE-502"},
			{Pattern: "requests.get", Language: "python", Category: CategorySsrf, Threshold: "medium", CWE: "CWE-918"},
			{Pattern: "format", Language: "python", Category: CategoryXss, Threshold: "low", CWE: "CWE-79"},
			{Pattern: "db.query", Language: "javascript", Category: CategorySql, Threshold: "low", CWE: "CWE-89"},
			{Pattern: "child_process.exec", Language: "javascript", Category: CategoryCommand, Threshold: "low", CWE: "CWE-78"},
			{Pattern: "innerHTML", Language: "javascript", Category: CategoryXss, Threshold: "low", CWE: "CWE-79"},
			{Pattern: "fs.readFile", Language: "javascript", Category: CategoryPath, Threshold: "medium", CWE: "CWE-22"},
			{Pattern: "Statement.execute", Language: "java", Category: CategorySql, Threshold: "low", CWE: "CWE-89"},
			{Pattern: "Runtime.exec", Language: "java", Category: CategoryCommand, Threshold: "low", CWE: "CWE-78"},
			{Pattern: "ObjectInputStream.readObject", Language: "java", Category: CategoryDeserialize, Threshold: "low", CWE: "CWE-502"},
		},
		Sanitizers: []SanitizerPattern{
			{Pattern: "int", Categories: []Category{CategorySql, CategoryCommand, CategoryPath}},
			{Pattern: "html.escape", Categories: []Category{CategoryXss}},
			{Pattern: "shlex.quote", Categories: []Category{CategoryCommand}},
			{Pattern: "urllib.parse.quote", Categories: []Category{CategorySsrf, CategoryPath}},
			{Pattern: "cursor.execute.parameterized", Categories: []Category{CategorySql}},
			{Pattern: "DOMPurify.sanitize", Categories: []Category{CategoryXss}},
			{Pattern: "path.normalize", Categories: []Category{CategoryPath}},
			{Pattern: "Encode.forHtml", Categories: []Category{CategoryXss}},
		},
	}
}

// LoadRegistry parses a YAML configuration document and merges it under
// DefaultDocument() (user entries take precedence: they are placed ahead
// of the built-in ones, and source/sanitizer lookup returns the first
// match; the built-in minimum set is kept rather than replaced), per
// §4.5's "at minimum the following are recognized."
func LoadRegistry(yamlBytes []byte) (*Registry, error) {
	var doc Document
	if len(yamlBytes) > 0 {
		if err := yaml.Unmarshal(yamlBytes, &doc); err != nil {
			return nil, err
		}
	}
	base := DefaultDocument()
	merged := Document{
		Sources:    append(append([]SourcePattern{}, doc.Sources...), base.Sources...),
		Sinks:      append(append([]SinkPattern{}, doc.Sinks...), base.Sinks...),
		Sanitizers: append(append([]SanitizerPattern{}, doc.Sanitizers...), base.Sanitizers...),
	}
	return &Registry{Sources: merged.Sources, Sinks: merged.Sinks, Sanitizers: merged.Sanitizers}, nil
}

// WithoutSanitizers returns a shallow copy of r with every sanitizer
// pattern removed, for a caller operating at a tier where
// sanitizer_recognition (§4.8) is off: sources and sinks still match
// normally, only no call ever clears a category, so a Community-tier scan
// reports every sink a sanitizer would otherwise have hidden.
func (r *Registry) WithoutSanitizers() *Registry {
	return &Registry{Sources: r.Sources, Sinks: r.Sinks, Sanitizers: nil}
}

// DefaultRegistry returns a Registry built purely from the built-in
// minimum set, for callers that haven't loaded a configuration document
// yet (tests, and a fresh dispatcher.Context before config.Config loads
// one from disk).
func DefaultRegistry() *Registry {
	doc := DefaultDocument()
	return &Registry{Sources: doc.Sources, Sinks: doc.Sinks, Sanitizers: doc.Sanitizers}
}
