package dispatcher

import (
	"sort"

	"github.com/agext/levenshtein"
)

// oracleThreshold is the minimum similarity score §4.9 requires
// ("fuzzy-matches... threshold 0.8") for a candidate to be offered.
const oracleThreshold = 0.8

// maxSuggestions bounds the candidate list to "up to five candidates",
// per §4.9.
const maxSuggestions = 5

// SymbolSource supplies the known-name universe an oracle-hint lookup
// fuzzy-matches against. A Context's SymbolSource is typically backed by
// the active project's symbols.Project (every function/class/variable
// name across every indexed module).
type SymbolSource func() []string

// FuzzyMatch scores every candidate in known against target using
// normalized Levenshtein similarity (github.com/agext/levenshtein's
// Match, which returns a 0..1 ratio rather than a raw edit-distance
// count), keeping matches at or above oracleThreshold and returning at
// most maxSuggestions, highest score first.
func FuzzyMatch(target string, known []string) []Suggestion {
	var out []Suggestion
	seen := map[string]bool{}
	for _, k := range known {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		score := levenshtein.Match(target, k, nil)
		if score >= oracleThreshold {
			out = append(out, Suggestion{Name: k, Score: score})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}

// EnhanceNotFound is the dispatcher's oracle-hint post-processing step
// (§4.9): when a handler returns `not_found` for a symbol or path lookup,
// the dispatcher — not the handler — fuzzy-matches the offending name
// against known symbols and, if a good match exists, escalates the
// response to `correction_needed` with suggestions populated. "The
// handler itself need not know it is being enhanced" (§4.9): handlers
// just report not_found with Details["target"] set to the name that
// failed to resolve.
func EnhanceNotFound(err *ErrorObject, knownSymbols SymbolSource) *ErrorObject {
	if err == nil || err.Code != ErrNotFound || knownSymbols == nil {
		return err
	}
	target, _ := err.Details["target"].(string)
	if target == "" {
		return err
	}
	suggestions := FuzzyMatch(target, knownSymbols())
	if len(suggestions) == 0 {
		return err
	}
	enhanced := *err
	enhanced.Code = ErrCorrectionNeeded
	enhanced.Suggestions = suggestions
	return &enhanced
}
