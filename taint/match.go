package taint

import "strings"

// matchesFunctionName reports whether callTarget (e.g. "request.args.get",
// "cursor.execute(...)") matches pattern, trying exact, dotted-suffix, and
// dotted-prefix comparisons. Ported from the original engine's
// graph/callgraph/analysis/taint.matchesFunctionName — the same call-
// target shapes (a dotted attribute chain, optionally with a trailing
// call's parentheses) recur here since both are matching tree-sitter-
// derived attribute/call expressions.
func matchesFunctionName(callTarget, pattern string) bool {
	clean := callTarget
	if idx := strings.Index(clean, "("); idx >= 0 {
		clean = clean[:idx]
	}
	if clean == pattern {
		return true
	}
	if strings.HasSuffix(clean, "."+pattern) {
		return true
	}
	if strings.HasPrefix(clean, pattern+".") {
		return true
	}
	if lastDot := strings.LastIndex(clean, "."); lastDot >= 0 && lastDot < len(clean)-1 {
		if clean[lastDot+1:] == pattern {
			return true
		}
	}
	return false
}

func languageMatches(patternLanguage, language string) bool {
	return patternLanguage == "" || patternLanguage == language
}

// matchSource returns the first source pattern callTarget matches for the
// given language, or nil.
func (r *Registry) matchSource(callTarget, language string) *SourcePattern {
	for i := range r.Sources {
		s := &r.Sources[i]
		if languageMatches(s.Language, language) && matchesFunctionName(callTarget, s.Pattern) {
			return s
		}
	}
	return nil
}

// matchSinks returns every sink pattern callTarget matches for the given
// language — a call can legitimately be a sink for more than one category
// (e.g. a generic "exec" shell-and-query helper).
func (r *Registry) matchSinks(callTarget, language string) []*SinkPattern {
	var out []*SinkPattern
	for i := range r.Sinks {
		s := &r.Sinks[i]
		if languageMatches(s.Language, language) && matchesFunctionName(callTarget, s.Pattern) {
			out = append(out, s)
		}
	}
	return out
}

// matchSanitizer returns the first sanitizer pattern callTarget matches for
// the given language, or nil.
func (r *Registry) matchSanitizer(callTarget, language string) *SanitizerPattern {
	for i := range r.Sanitizers {
		s := &r.Sanitizers[i]
		if languageMatches(s.Language, language) && matchesFunctionName(callTarget, s.Pattern) {
			return s
		}
	}
	return nil
}
