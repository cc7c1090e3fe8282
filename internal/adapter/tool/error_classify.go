package tool

import (
	"errors"
	"regexp"
	"strings"

	"webscout/internal/domain"
)

// transientMarkers are lower-case fragments of error text that mark a failure
// as transient. The facade reports failures as strings, so the sentinel
// messages appear here as well.
var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"timed out",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
	"rate limit",
	"fetch retries exhausted",
	"host circuit open",
}

// transientStatus matches the final status of an exhausted fetch that is
// worth retrying later: still pending (202), throttled (429) or any 5xx.
var transientStatus = regexp.MustCompile(`\bhttp (202|429|5\d\d)\b`)

// classifyToolError reports whether a failed call may succeed if repeated
// unchanged. Blocked URLs and bad input are always permanent.
func classifyToolError(err error) bool {
	switch {
	case err == nil:
		return false
	case domain.IsRetryableError(err):
		return true
	case errors.Is(err, domain.ErrSSRFBlocked), errors.Is(err, domain.ErrInvalidInput):
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return transientStatus.MatchString(msg)
}
