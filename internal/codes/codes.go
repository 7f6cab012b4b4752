// Package codes defines the engine's closed error taxonomy. Domain errors
// are returned as *Error and surface to callers verbatim with no retries;
// infrastructure errors (disk I/O, replay gaps) are left as plain errors
// and are fatal to the process.
package codes

import "fmt"

// Code is a stable, user-visible error identifier.
type Code string

const (
	// Ownership.
	EOwnerOnly Code = "E_OWNER_ONLY"

	// Routing.
	ENotInManagedThread Code = "E_NOT_IN_MANAGED_THREAD"
	ESessionNotFound    Code = "E_SESSION_NOT_FOUND"
	EThreadAccessFailed Code = "E_THREAD_ACCESS_FAILED"

	// Project/tool config.
	EProjectNotFound Code = "E_PROJECT_NOT_FOUND"
	EProjectExists   Code = "E_PROJECT_EXISTS"
	EInvalidPath     Code = "E_INVALID_PATH"
	EInvalidToolset  Code = "E_INVALID_TOOLSET"
	EToolNotEnabled  Code = "E_TOOL_NOT_ENABLED"

	// Scheduling.
	EQueueFull       Code = "E_QUEUE_FULL"
	EJobNotRetryable Code = "E_JOB_NOT_RETRYABLE"

	// Adapter runtime.
	ECLITimeout               Code = "E_CLI_TIMEOUT"
	ECLIExitNonzero           Code = "E_CLI_EXIT_NONZERO"
	EAdapterParse             Code = "E_ADAPTER_PARSE"
	EAdapterMissingResult     Code = "E_ADAPTER_MISSING_RESULT"
	EAdapterSessionKeyMissing Code = "E_ADAPTER_SESSION_KEY_MISSING"

	// Transport (owned by the out-of-scope chat client; named here for
	// completeness of the taxonomy per spec §7).
	EDiscordRateLimit Code = "E_DISCORD_RATE_LIMIT"
)

// Error is a domain error carrying a stable code.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New constructs an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Is reports whether target is a *Error with the same Code as e. Enables
// errors.Is(err, codes.New(codes.EQueueFull, "")) style comparisons when only
// the code matters.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}
