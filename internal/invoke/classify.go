package invoke

import (
	"net/http"
	"strings"
)

// Class is the failure classification driving tier fallback. It is never
// shown to end users directly.
type Class int

const (
	// ClassOther covers anything not credential-related, including
	// timeouts and transport failures.
	ClassOther Class = iota
	// ClassRateLimited marks quota or too-many-requests failures.
	ClassRateLimited
	// ClassAuthFailed marks invalid, missing, or unauthorized credentials.
	ClassAuthFailed
)

func (c Class) String() string {
	switch c {
	case ClassRateLimited:
		return "rate_limited"
	case ClassAuthFailed:
		return "auth_failed"
	default:
		return "other"
	}
}

var rateLimitedPhrases = []string{
	"rate limit",
	"rate-limit",
	"too many requests",
	"quota",
	"resource_exhausted",
	"resource has been exhausted",
}

var authFailedPhrases = []string{
	"invalid api key",
	"invalid x-api-key",
	"incorrect api key",
	"api key not valid",
	"invalid_api_key",
	"authentication",
	"unauthorized",
	"forbidden",
	"permission denied",
	"permission_denied",
}

// Classify maps a normalized failure descriptor to its class. Providers
// report the same condition with different shapes, so both the HTTP status
// and the message text are consulted; the status wins when it is decisive.
func Classify(statusCode int, message string) Class {
	switch statusCode {
	case http.StatusTooManyRequests:
		return ClassRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return ClassAuthFailed
	}

	msg := strings.ToLower(message)
	for _, p := range rateLimitedPhrases {
		if strings.Contains(msg, p) {
			return ClassRateLimited
		}
	}
	for _, p := range authFailedPhrases {
		if strings.Contains(msg, p) {
			return ClassAuthFailed
		}
	}
	return ClassOther
}
