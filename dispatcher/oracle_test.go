package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFuzzyMatchFindsCloseNameAboveThreshold(t *testing.T) {
	suggestions := FuzzyMatch("proces_data", []string{"process_data", "totally_unrelated", "process_event"})
	if assert.NotEmpty(t, suggestions) {
		assert.Equal(t, "process_data", suggestions[0].Name)
		assert.GreaterOrEqual(t, suggestions[0].Score, oracleThreshold)
	}
}

func TestFuzzyMatchExcludesBelowThreshold(t *testing.T) {
	suggestions := FuzzyMatch("xyz", []string{"completely_different_name"})
	assert.Empty(t, suggestions)
}

func TestFuzzyMatchCapsAtFiveCandidates(t *testing.T) {
	known := []string{"process_data", "process_dat", "process_dta", "procss_data", "proces_dat", "prrocess_data", "pprocess_data"}
	suggestions := FuzzyMatch("process_data", known)
	assert.LessOrEqual(t, len(suggestions), maxSuggestions)
}

func TestEnhanceNotFoundLeavesNonNotFoundErrorsAlone(t *testing.T) {
	err := NewError(ErrInvalidInput, "bad input")
	got := EnhanceNotFound(err, func() []string { return []string{"anything"} })
	assert.Same(t, err, got)
}

func TestEnhanceNotFoundWithNoTargetDetailIsUnchanged(t *testing.T) {
	err := NewError(ErrNotFound, "missing")
	got := EnhanceNotFound(err, func() []string { return []string{"process_data"} })
	assert.Same(t, err, got)
}
