// Package pipelineerrors defines the closed failure taxonomy shared by every
// middleware in the pipeline. Every error that crosses a pipeline boundary is
// a *Error constructed through one of the code-specific helpers below.
package pipelineerrors

// Code is a stable, string-convertible identifier for a class of pipeline
// failure. The set is closed: new codes must be added here, never invented
// ad hoc by a middleware.
type Code uint8

const (
	// CodeUnknown is never intentionally constructed; it signals a bug.
	CodeUnknown Code = iota
	CodeValidation
	CodeAuthentication
	CodeAuthorization
	CodeRateLimit
	CodeBackPressureQueueFull
	CodeBackPressureMemoryPressure
	CodeBackPressureTimeout
	CodeBulkheadRejected
	CodeBulkheadTimeout
	CodeBulkheadFull
	CodeCircuitBreakerOpen
	CodeTimeout
	CodeRetryExhausted
	CodeServiceUnavailable
	CodeExecutionFailed
	CodeCancelled
)

var _codeToString = map[Code]string{
	CodeUnknown:                    "unknown",
	CodeValidation:                 "validation",
	CodeAuthentication:             "authentication",
	CodeAuthorization:              "authorization",
	CodeRateLimit:                  "rateLimit",
	CodeBackPressureQueueFull:      "backPressure.queueFull",
	CodeBackPressureMemoryPressure: "backPressure.memoryPressure",
	CodeBackPressureTimeout:        "backPressure.timeout",
	CodeBulkheadRejected:           "bulkheadRejected",
	CodeBulkheadTimeout:            "bulkheadTimeout",
	CodeBulkheadFull:               "resilience.bulkheadFull",
	CodeCircuitBreakerOpen:         "circuitBreakerOpen",
	CodeTimeout:                    "timeout",
	CodeRetryExhausted:             "resilience.retryExhausted",
	CodeServiceUnavailable:         "serviceUnavailable",
	CodeExecutionFailed:            "executionFailed",
	CodeCancelled:                  "cancelled",
}

// String returns the wire-stable identifier for the code, as used in event
// payloads and tests (spec §6's PipelineError taxonomy).
func (c Code) String() string {
	if s, ok := _codeToString[c]; ok {
		return s
	}
	return "unknown"
}
