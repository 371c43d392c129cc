package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	sarif "github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/codescalpel/scalpel/ir"
	"github.com/codescalpel/scalpel/taint"
)

// SARIFFormatter renders taint.Finding slices as SARIF 2.1.0, so an agent
// that wants CI-annotation-ready output gets it alongside security_scan's
// native JSON data without a second tool call. Grounded in the teacher's
// output/sarif_formatter.go, adapted from dsl.EnrichedDetection (a single
// rule/severity/location-enriched record) to taint.Finding (a bare
// source/sink/chain record with no attached rule metadata) — rule
// identity here is synthesized from the sink category and CWE rather
// than looked up from a rule table, since this package has none.
type SARIFFormatter struct{}

// NewSARIFFormatter constructs a SARIFFormatter. It carries no state; the
// teacher's writer/options fields don't apply here since Format returns
// bytes instead of writing to an io.Writer, matching how dispatcher tool
// handlers build envelope data in memory rather than streaming output.
func NewSARIFFormatter() *SARIFFormatter { return &SARIFFormatter{} }

// Format renders findings (all from a single analysis run, over one or
// more files) as an indented SARIF document.
func (f *SARIFFormatter) Format(findings []taint.Finding) ([]byte, error) {
	report, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, err
	}

	run := sarif.NewRunWithInformationURI("Code Scalpel", "https://github.com/codescalpel/scalpel")
	f.buildRules(findings, run)
	for i := range findings {
		f.buildResult(&findings[i], run)
	}
	report.AddRun(run)

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ruleID identifies a SARIF rule for a finding: sink category plus CWE
// when present, e.g. "sql-CWE-89", or just the category otherwise —
// findings sharing a category and CWE collapse to one rule, mirroring the
// teacher's dedupe-by-Rule.ID behavior without a rule table to dedupe
// against.
func ruleID(f *taint.Finding) string {
	if f.CWE != "" {
		return string(f.SinkCategory) + "-" + f.CWE
	}
	return string(f.SinkCategory)
}

func (f *SARIFFormatter) buildRules(findings []taint.Finding, run *sarif.Run) {
	seen := make(map[string]bool)
	for i := range findings {
		fin := &findings[i]
		id := ruleID(fin)
		if seen[id] {
			continue
		}
		seen[id] = true

		desc := fmt.Sprintf("Tainted data reaches a %s sink", fin.SinkCategory)
		if fin.CWE != "" {
			desc += fmt.Sprintf(" (%s)", fin.CWE)
		}

		rule := run.AddRule(id).
			WithDescription(desc).
			WithName(id).
			WithHelpURI("https://github.com/codescalpel/scalpel")
		rule.WithDefaultConfiguration(sarif.NewReportingConfiguration().WithLevel(severityToLevelString(fin.Severity)))
		rule.WithProperties(buildRuleProperties(fin.Severity))
	}
}

func severityToLevelString(severity string) string {
	switch severity {
	case "Critical", "High":
		return "error"
	case "Medium":
		return "warning"
	default:
		return "note"
	}
}

func buildRuleProperties(severity string) map[string]interface{} {
	return map[string]interface{}{
		"tags":              []string{"security", "taint"},
		"security-severity": severityToScore(severity),
		"precision":         "high",
	}
}

func severityToScore(severity string) string {
	switch severity {
	case "Critical":
		return "9.0"
	case "High":
		return "7.0"
	case "Medium":
		return "5.0"
	default:
		return "3.0"
	}
}

func (f *SARIFFormatter) buildResult(fin *taint.Finding, run *sarif.Run) {
	message := fmt.Sprintf("Taint flows from a source at %s to a %s sink (confidence %.0f%%)",
		fin.Source.String(), fin.SinkCategory, fin.Confidence*100)

	result := run.CreateResultForRule(ruleID(fin)).
		WithMessage(sarif.NewTextMessage(message))

	addLocation(fin.Sink, result)
	if len(fin.Chain) > 0 {
		addCodeFlow(fin, result)
	}
}

func addLocation(span ir.SourceSpan, result *sarif.Result) {
	region := sarif.NewRegion().WithStartLine(span.StartLine)
	if span.StartCol > 0 {
		region.WithStartColumn(span.StartCol)
	}
	location := sarif.NewLocation().WithPhysicalLocation(
		sarif.NewPhysicalLocation().
			WithArtifactLocation(sarif.NewArtifactLocation().WithUri(span.FilePath)).
			WithRegion(region),
	)
	result.AddLocation(location)
}

// addCodeFlow renders a finding's chain as a SARIF thread flow: one
// location per span the taint passed through, source first and sink
// last, the way the teacher's addCodeFlow renders a two-hop source-to-
// sink flow, generalized here to the full chain taint.Finding already
// tracks instead of just its endpoints.
func addCodeFlow(fin *taint.Finding, result *sarif.Result) {
	spans := append([]ir.SourceSpan{fin.Source}, fin.Chain...)
	spans = append(spans, fin.Sink)

	locations := make([]*sarif.ThreadFlowLocation, 0, len(spans))
	for i, span := range spans {
		msg := "Taint propagation step"
		if i == 0 {
			msg = "Taint source"
		} else if i == len(spans)-1 {
			msg = "Taint sink: " + string(fin.SinkCategory)
		}
		loc := sarif.NewLocation().
			WithPhysicalLocation(
				sarif.NewPhysicalLocation().
					WithArtifactLocation(sarif.NewArtifactLocation().WithUri(span.FilePath)).
					WithRegion(sarif.NewRegion().WithStartLine(span.StartLine)),
			).
			WithMessage(sarif.NewTextMessage(msg))
		locations = append(locations, sarif.NewThreadFlowLocation().WithLocation(loc))
	}

	threadFlow := sarif.NewThreadFlow().WithLocations(locations)
	flowMsg := fmt.Sprintf("Taint flow from line %d to line %d", fin.Source.StartLine, fin.Sink.StartLine)
	codeFlow := sarif.NewCodeFlow().WithThreadFlows([]*sarif.ThreadFlow{threadFlow}).WithMessage(sarif.NewTextMessage(flowMsg))
	result.WithCodeFlows([]*sarif.CodeFlow{codeFlow})
}
