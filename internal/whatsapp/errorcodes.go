package whatsapp

import "fmt"

// Severity buckets for provider error codes.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// ErrorAction is the business action derived from a provider error code.
type ErrorAction struct {
	ShouldBlock bool
	BlockReason string
	Severity    string
}

var errorActions = map[int]ErrorAction{
	131049: {ShouldBlock: true, BlockReason: "ecosystem_protection", Severity: SeverityWarning},
	131021: {ShouldBlock: true, BlockReason: "number_not_on_whatsapp", Severity: SeverityInfo},
	131215: {ShouldBlock: true, BlockReason: "groups_not_eligible", Severity: SeverityInfo},
	131026: {ShouldBlock: false, BlockReason: "rate_limited", Severity: SeverityCritical},
	131047: {ShouldBlock: false, BlockReason: "reengagement_window", Severity: SeverityInfo},
	131048: {ShouldBlock: false, BlockReason: "spam_rate_limit", Severity: SeverityCritical},
}

// MapErrorCode resolves a provider error code to its business action.
// Unknown codes never block and carry an error_<code> reason.
func MapErrorCode(code int) ErrorAction {
	if action, ok := errorActions[code]; ok {
		return action
	}
	return ErrorAction{ShouldBlock: false, BlockReason: fmt.Sprintf("error_%d", code), Severity: SeverityWarning}
}
