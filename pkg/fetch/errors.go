package fetch

import (
	"errors"
	"fmt"
	"strings"
)

// ProtectionError indicates the site served a block page or an anti-bot
// challenge instead of real content. The caller should escalate to a more
// capable fetch method rather than retry the same one.
type ProtectionError struct {
	Domain string
	Method string
	Reason string
}

func (e *ProtectionError) Error() string {
	return fmt.Sprintf("site protection detected on %s via %s: %s", e.Domain, e.Method, e.Reason)
}

// TransientError indicates a failure that may succeed on retry, such as a
// timeout, a 5xx response, or a rate limit
type TransientError struct {
	Domain string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transient failure on %s (status %d): %v", e.Domain, e.Status, e.Err)
	}
	return fmt.Sprintf("transient failure on %s: %v", e.Domain, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// TerminalError indicates a failure no retry or fallback can fix, such as a
// malformed URL or a page that does not exist
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return fmt.Sprintf("terminal failure: %v", e.Err) }

func (e *TerminalError) Unwrap() error { return e.Err }

// terminalPatterns are error message fragments that mark a failure as not
// worth retrying
var terminalPatterns = []string{
	"404",
	"not found",
	"invalid url",
	"malformed",
	"unauthorized",
}

// IsTerminal reports whether an error should stop retries immediately.
// Typed terminal errors are checked first, then known message patterns.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var te *TerminalError
	if errors.As(err, &te) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range terminalPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsRateLimited reports whether an error indicates the domain throttled us
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var tr *TransientError
	if errors.As(err, &tr) && tr.Status == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}
