// Package ratelimit provides fixed-window quota accounting shared across
// request-handling instances. Counting must be atomic per subject: when a
// single slot remains, exactly one concurrent caller is allowed through.
package ratelimit

import (
	"context"
	"time"
)

// Policy is a named rate limit. Policies with different names count in
// distinct key namespaces, so one subject can be tracked under several
// policies in parallel.
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Deployment policies.
var (
	// PasscodeResend throttles verification-code resends per identity.
	PasscodeResend = Policy{Name: "passcode_resend", Limit: 1, Window: time.Minute}
	// SigninIP throttles sign-in attempts per network origin.
	SigninIP = Policy{Name: "signin_ip", Limit: 5, Window: time.Minute}
	// SigninAccount throttles sign-in attempts per account.
	SigninAccount = Policy{Name: "signin_account", Limit: 5, Window: time.Hour}
	// Generate throttles design-generation requests per identity.
	Generate = Policy{Name: "generate", Limit: 1, Window: 2 * time.Minute}
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter is an increment-and-check window counter.
type Limiter interface {
	Allow(ctx context.Context, subjectKey string, policy Policy) (Decision, error)
}

func windowKey(policy Policy, subjectKey string) string {
	return "ratelimit:" + policy.Name + ":" + subjectKey
}
