package types

// FailureCode classifies a failed broadcast target
type FailureCode string

const (
	CodeUnavailable   FailureCode = "unavailable"
	CodeInputNotFound FailureCode = "input_not_found"
	CodeInjection     FailureCode = "injection_failed"
	CodeSurface       FailureCode = "surface_error"
	CodeInternal      FailureCode = "internal"
)

// SubmitMethod records how a prompt was submitted
type SubmitMethod string

const (
	SubmitClicked SubmitMethod = "clicked"
	SubmitEnter   SubmitMethod = "enter"
	SubmitNone    SubmitMethod = "none"
)

// TargetResult is the outcome for one broadcast target
type TargetResult struct {
	Success  bool         `json:"success"`
	Error    string       `json:"error,omitempty"`
	Code     FailureCode  `json:"code,omitempty"`
	Submit   SubmitMethod `json:"submit,omitempty"`
	Attached bool         `json:"attached,omitempty"`
}

// BroadcastResult maps panel id to its outcome
type BroadcastResult map[string]TargetResult

// Succeeded counts successful targets.
func (r BroadcastResult) Succeeded() int {
	n := 0
	for _, res := range r {
		if res.Success {
			n++
		}
	}
	return n
}
