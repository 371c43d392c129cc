// Package dispatcher implements the tool-dispatch contract described in
// §4.9: the envelope protocol, the closed error taxonomy,
// oracle-hint suggestion enhancement, audit-record emission, and the
// backup discipline for mutating tools. `mcp` (the JSON-RPC 2.0 server
// the original engine already ships) sits on top of this package: its handlers
// become thin adapters that call into a dispatcher.Context and marshal
// the resulting Envelope as the JSON-RPC result.
package dispatcher

import (
	"encoding/json"
)

// ErrorCode is the closed taxonomy from §4.9.
type ErrorCode string

const (
	ErrInvalidInput      ErrorCode = "invalid_input"
	ErrNotFound          ErrorCode = "not_found"
	ErrCorrectionNeeded  ErrorCode = "correction_needed"
	ErrTierDenied        ErrorCode = "tier_denied"
	ErrLimitExceeded     ErrorCode = "limit_exceeded"
	ErrTimeout           ErrorCode = "timeout"
	ErrInternalError     ErrorCode = "internal_error"
)

// Suggestion is one oracle-hint candidate: a nearly-matching known name
// plus its similarity score.
type Suggestion struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// ErrorObject is `{ error_code, message, error_details?, suggestions? }`
// from §3.
type ErrorObject struct {
	Code        ErrorCode              `json:"error_code"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"error_details,omitempty"`
	Suggestions []Suggestion           `json:"suggestions,omitempty"`
}

// Error satisfies the error interface so ErrorObject can be returned and
// wrapped through ordinary Go error-handling paths before being attached
// to an Envelope.
func (e *ErrorObject) Error() string {
	if e == nil {
		return ""
	}
	return string(e.Code) + ": " + e.Message
}

// ExitErrorCode reports e's taxonomy code as a plain string, letting a
// leaf package (e.g. output's process exit-code mapping) classify a
// dispatcher error by duck-typing an ExitErrorCode() string method rather
// than importing this package.
func (e *ErrorObject) ExitErrorCode() string {
	if e == nil {
		return ""
	}
	return string(e.Code)
}

// NewError builds an ErrorObject with no details/suggestions attached yet.
func NewError(code ErrorCode, message string) *ErrorObject {
	return &ErrorObject{Code: code, Message: message}
}

// WithDetails returns a copy of e with Details set, for chaining at the
// call site: `return nil, NewError(...).WithDetails(...)`.
func (e *ErrorObject) WithDetails(details map[string]interface{}) *ErrorObject {
	cp := *e
	cp.Details = details
	return &cp
}

// TierDenied builds the `tier_denied` error §7 requires, with the
// required tier populated in error_details.required_tier.
func TierDenied(feature, requiredTier string) *ErrorObject {
	return NewError(ErrTierDenied, "feature \""+feature+"\" requires a higher tier").
		WithDetails(map[string]interface{}{"required_tier": requiredTier})
}

// Envelope is the uniform response wrapper from §3: exactly one of Data
// or Error is set (P5), never both and never neither.
type Envelope struct {
	ToolID        string                 `json:"tool_id"`
	RequestID     string                 `json:"request_id"`
	Tier          string                 `json:"tier"`
	Error         *ErrorObject           `json:"error"`
	Data          interface{}            `json:"data"`
	DurationMs    int64                  `json:"duration_ms"`
	TierApplied   string                 `json:"tier_applied"`
	LimitsApplied map[string]int         `json:"limits_applied,omitempty"`
	Truncated     bool                   `json:"truncated,omitempty"`
	Partial       bool                   `json:"partial,omitempty"`
	BackupPath    string                 `json:"backup_path,omitempty"`
	Diagnostics   []string               `json:"diagnostics,omitempty"`
}

// OK builds a successful envelope. data must not be nil — a handler
// reporting "nothing found" returns an empty slice/struct, not nil, so
// Data and Error stay complementary (P5).
func OK(toolID, requestID, tier string, data interface{}) Envelope {
	return Envelope{ToolID: toolID, RequestID: requestID, Tier: tier, Data: data}
}

// Failed builds an error envelope.
func Failed(toolID, requestID, tier string, err *ErrorObject) Envelope {
	return Envelope{ToolID: toolID, RequestID: requestID, Tier: tier, Error: err}
}

// Valid reports whether the envelope satisfies P5 (exactly one of Data or
// Error is set).
func (e Envelope) Valid() bool {
	return (e.Data != nil) != (e.Error != nil)
}

// MarshalResult renders the Envelope for embedding as a JSON-RPC
// `result` field.
func (e Envelope) MarshalResult() ([]byte, error) {
	return json.Marshal(e)
}
