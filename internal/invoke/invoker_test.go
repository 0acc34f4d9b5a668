package invoke

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/org/archpilot/internal/provider"
	"github.com/org/archpilot/pkg/models"
)

// fakeClient returns a canned outcome per API key.
type fakeClient struct {
	outcomes map[string]outcome
	calls    []string // keys in call order
}

type outcome struct {
	response string
	err      error
}

func (f *fakeClient) Generate(_ context.Context, apiKey string, _ *models.DesignRequest) (string, error) {
	f.calls = append(f.calls, apiKey)
	o := f.outcomes[apiKey]
	return o.response, o.err
}

func pErr(status int, msg string) *provider.Error {
	return &provider.Error{Provider: models.ProviderOpenAI, StatusCode: status, Message: msg}
}

func newTestInvoker(fc *fakeClient) *Invoker {
	return NewInvoker(
		map[models.Provider]provider.Client{models.ProviderOpenAI: fc},
		map[models.Provider]string{models.ProviderOpenAI: "system-key"},
	)
}

func req() *models.DesignRequest {
	return &models.DesignRequest{Prompt: "design a queue", Provider: models.ProviderOpenAI}
}

func TestUserTierSuccess(t *testing.T) {
	fc := &fakeClient{outcomes: map[string]outcome{
		"user-key": {response: "user design"},
	}}
	result, err := newTestInvoker(fc).Invoke(context.Background(), req(), "user-key")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Tier != TierUser {
		t.Errorf("tier = %s, want user", result.Tier)
	}
	if result.Response != "user design" {
		t.Errorf("response = %q", result.Response)
	}
	if len(fc.calls) != 1 {
		t.Errorf("system tier should not be attempted after user success, calls = %v", fc.calls)
	}
}

func TestNoUserKeyGoesStraightToSystem(t *testing.T) {
	fc := &fakeClient{outcomes: map[string]outcome{
		"system-key": {response: "system design"},
	}}
	result, err := newTestInvoker(fc).Invoke(context.Background(), req(), "")
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if result.Tier != TierSystem {
		t.Errorf("tier = %s, want system", result.Tier)
	}
	if len(fc.calls) != 1 || fc.calls[0] != "system-key" {
		t.Errorf("calls = %v, want just system-key", fc.calls)
	}
}

func TestUserFailureFallsBack(t *testing.T) {
	cases := []struct {
		name    string
		userErr error
	}{
		{"auth failed", pErr(http.StatusUnauthorized, "Incorrect API key provided")},
		{"rate limited", pErr(http.StatusTooManyRequests, "Rate limit reached")},
		{"other", pErr(http.StatusInternalServerError, "upstream error")},
		{"timeout", context.DeadlineExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeClient{outcomes: map[string]outcome{
				"user-key":   {err: tc.userErr},
				"system-key": {response: "system design"},
			}}
			result, err := newTestInvoker(fc).Invoke(context.Background(), req(), "user-key")
			if err != nil {
				t.Fatalf("Invoke failed: %v", err)
			}
			if result.Tier != TierSystem {
				t.Errorf("tier = %s, want system", result.Tier)
			}
			if result.AllTiersFailed {
				t.Error("AllTiersFailed should be false on system success")
			}
			if len(fc.calls) != 2 || fc.calls[0] != "user-key" || fc.calls[1] != "system-key" {
				t.Errorf("tier order wrong: calls = %v", fc.calls)
			}
		})
	}
}

func TestExhaustionFlag(t *testing.T) {
	cases := []struct {
		name      string
		systemErr error
	}{
		{"both rate limited", pErr(http.StatusTooManyRequests, "quota exceeded")},
		{"system auth failed", pErr(http.StatusForbidden, "forbidden")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fc := &fakeClient{outcomes: map[string]outcome{
				"user-key":   {err: pErr(http.StatusTooManyRequests, "Rate limit reached")},
				"system-key": {err: tc.systemErr},
			}}
			result, err := newTestInvoker(fc).Invoke(context.Background(), req(), "user-key")
			if err == nil {
				t.Fatal("expected a surfaced error, not silent success")
			}
			if !errors.Is(err, ErrTiersExhausted) {
				t.Errorf("expected ErrTiersExhausted, got %v", err)
			}
			var cause *provider.Error
			if !errors.As(err, &cause) {
				t.Error("original provider error should remain unwrappable")
			}
			if result == nil || !result.AllTiersFailed {
				t.Error("AllTiersFailed should be true")
			}
		})
	}
}

func TestNoSystemKeyKeepsUserFailure(t *testing.T) {
	userErr := pErr(http.StatusUnauthorized, "Incorrect API key provided")
	fc := &fakeClient{outcomes: map[string]outcome{
		"user-key": {err: userErr},
	}}
	invoker := NewInvoker(
		map[models.Provider]provider.Client{models.ProviderOpenAI: fc},
		nil, // no system credential configured
	)

	_, err := invoker.Invoke(context.Background(), req(), "user-key")
	if err == nil {
		t.Fatal("expected error with no system credential")
	}
	// The user-tier failure stays reachable through the wrapping.
	var cause *provider.Error
	if !errors.As(err, &cause) {
		t.Fatalf("user-tier error should remain unwrappable, got %v", err)
	}
	if cause.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong wrapped cause: %v", cause)
	}
}

func TestSystemOtherFailureUnflagged(t *testing.T) {
	fc := &fakeClient{outcomes: map[string]outcome{
		"user-key":   {err: pErr(http.StatusUnauthorized, "bad key")},
		"system-key": {err: pErr(http.StatusServiceUnavailable, "upstream overloaded")},
	}}
	result, err := newTestInvoker(fc).Invoke(context.Background(), req(), "user-key")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrTiersExhausted) {
		t.Error("an Other-class final failure must not be flagged as exhaustion")
	}
	if result.AllTiersFailed {
		t.Error("AllTiersFailed should be false for an Other-class failure")
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		status  int
		message string
		want    Class
	}{
		{429, "", ClassRateLimited},
		{401, "", ClassAuthFailed},
		{403, "", ClassAuthFailed},
		{500, "", ClassOther},
		{0, "connection refused", ClassOther},
		{400, "You exceeded your current quota", ClassRateLimited},
		{400, "Resource has been exhausted (e.g. check quota).", ClassRateLimited},
		{400, "API key not valid. Please pass a valid API key.", ClassAuthFailed},
		{400, "invalid x-api-key", ClassAuthFailed},
		{503, "RATE LIMIT reached for requests", ClassRateLimited},
		{0, "context deadline exceeded", ClassOther},
		{400, "malformed request body", ClassOther},
	}
	for _, tc := range cases {
		if got := Classify(tc.status, tc.message); got != tc.want {
			t.Errorf("Classify(%d, %q) = %s, want %s", tc.status, tc.message, got, tc.want)
		}
	}
}
