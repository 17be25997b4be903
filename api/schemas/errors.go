package schemas

// -- Error Classification Schemas --

// ErrorCategory is the closed set of categories a raw automation error can be classified into.
type ErrorCategory string

const (
	CategoryRateLimit   ErrorCategory = "rate_limit"
	CategoryTier        ErrorCategory = "tier"
	CategoryBatchLimit  ErrorCategory = "batch_limit"
	CategoryChallenge   ErrorCategory = "challenge"
	CategorySession     ErrorCategory = "session"
	CategoryCredentials ErrorCategory = "credentials"
	CategoryNetwork     ErrorCategory = "network"
	CategoryItemError   ErrorCategory = "item_error"
	CategorySyncError   ErrorCategory = "sync_error"
	CategoryUnknown     ErrorCategory = "unknown"
)

// ErrorClassification is the user-facing rendering of a raw error.
type ErrorClassification struct {
	Category ErrorCategory `json:"category"`
	Title    string        `json:"title"`
	Detail   string        `json:"detail,omitempty"`
}
