package passcode

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/org/archpilot/internal/ratelimit"
	"github.com/org/archpilot/internal/storage"
	"github.com/org/archpilot/pkg/models"
)

// --- fakes ---

type fakeStore struct {
	identities map[string]*models.Identity
	passcodes  map[string]*models.Passcode
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities: map[string]*models.Identity{},
		passcodes:  map[string]*models.Passcode{},
	}
}

func (f *fakeStore) addIdentity(id, email string) {
	f.identities[id] = &models.Identity{ID: id, Email: email}
	f.passcodes[id] = &models.Passcode{IdentityID: id}
}

func (f *fakeStore) GetIdentity(_ context.Context, id string) (*models.Identity, error) {
	i, ok := f.identities[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return i, nil
}

func (f *fakeStore) SetPasscode(_ context.Context, id, code string, expiresAt time.Time) error {
	if _, ok := f.identities[id]; !ok {
		return storage.ErrNotFound
	}
	f.passcodes[id] = &models.Passcode{IdentityID: id, Code: &code, ExpiresAt: &expiresAt}
	return nil
}

func (f *fakeStore) GetPasscode(_ context.Context, id string) (*models.Passcode, error) {
	pc, ok := f.passcodes[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return pc, nil
}

func (f *fakeStore) MarkVerified(_ context.Context, id string) error {
	i, ok := f.identities[id]
	if !ok {
		return storage.ErrNotFound
	}
	i.Verified = true
	f.passcodes[id] = &models.Passcode{IdentityID: id, Consumed: true}
	return nil
}

type fakeMailer struct {
	sent []struct{ to, subject, body string }
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	f.sent = append(f.sent, struct{ to, subject, body string }{to, subject, body})
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore, *fakeMailer) {
	t.Helper()
	store := newFakeStore()
	m := &fakeMailer{}
	svc := NewService(store, ratelimit.NewMemoryLimiter(), m)
	return svc, store, m
}

func currentCode(t *testing.T, store *fakeStore, id string) string {
	t.Helper()
	pc := store.passcodes[id]
	if pc == nil || pc.Code == nil {
		t.Fatal("no active passcode on record")
	}
	return *pc.Code
}

// --- tests ---

var sixDigits = regexp.MustCompile(`^\d{6}$`)

func TestIssueGeneratesSixDigitCode(t *testing.T) {
	svc, store, m := newTestService(t)
	store.addIdentity("u1", "u1@example.com")
	ctx := context.Background()

	if err := svc.Issue(ctx, "u1"); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	code := currentCode(t, store, "u1")
	if !sixDigits.MatchString(code) {
		t.Errorf("code %q should be exactly six digits", code)
	}
	pc := store.passcodes["u1"]
	if got := time.Until(*pc.ExpiresAt); got < 9*time.Minute || got > 10*time.Minute {
		t.Errorf("expiry should be ~10 minutes out, got %v", got)
	}
	if len(m.sent) != 1 || m.sent[0].to != "u1@example.com" {
		t.Errorf("expected one notification to u1@example.com, got %+v", m.sent)
	}
}

func TestIssueUnknownIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Issue(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResendSupersedesPriorCode(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addIdentity("u1", "u1@example.com")
	ctx := context.Background()

	// Pin a known code, then resend.
	if err := store.SetPasscode(ctx, "u1", "482913", time.Now().Add(10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	// Fresh limiter window: first resend passes.
	if err := svc.Resend(ctx, "u1"); err != nil {
		t.Fatalf("Resend failed: %v", err)
	}

	if code := currentCode(t, store, "u1"); code == "482913" {
		t.Error("resend should have replaced the previous code")
	}
	// The superseded code no longer verifies, even though it is unexpired.
	if err := svc.Verify(ctx, "u1", "482913"); !errors.Is(err, ErrMismatch) {
		t.Errorf("superseded code should be ErrMismatch, got %v", err)
	}
}

func TestResendThrottled(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addIdentity("u1", "u1@example.com")
	ctx := context.Background()

	if err := svc.Resend(ctx, "u1"); err != nil {
		t.Fatalf("first Resend failed: %v", err)
	}
	if err := svc.Resend(ctx, "u1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second Resend within 60s should be ErrRateLimited, got %v", err)
	}
}

func TestResendAlreadyVerified(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addIdentity("u1", "u1@example.com")
	store.identities["u1"].Verified = true

	if err := svc.Resend(context.Background(), "u1"); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestResendThrottleWinsOverVerified(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addIdentity("u1", "u1@example.com")
	ctx := context.Background()

	// Exhaust the window, then verify the identity: the denied window
	// must still answer, not the verified state.
	if err := svc.Resend(ctx, "u1"); err != nil {
		t.Fatalf("first Resend failed: %v", err)
	}
	store.identities["u1"].Verified = true

	if err := svc.Resend(ctx, "u1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("exhausted window expected ErrRateLimited, got %v", err)
	}
}

func TestVerifyLifecycle(t *testing.T) {
	svc, store, m := newTestService(t)
	store.addIdentity("u1", "u1@example.com")
	ctx := context.Background()

	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issued }
	if err := store.SetPasscode(ctx, "u1", "482913", issued.Add(600*time.Second)); err != nil {
		t.Fatal(err)
	}

	// Expired: submitted at T+601s.
	svc.now = func() time.Time { return issued.Add(601 * time.Second) }
	if err := svc.Verify(ctx, "u1", "482913"); !errors.Is(err, ErrExpired) {
		t.Errorf("at T+601s expected ErrExpired, got %v", err)
	}

	// Mismatch at T+300s.
	svc.now = func() time.Time { return issued.Add(300 * time.Second) }
	if err := svc.Verify(ctx, "u1", "000000"); !errors.Is(err, ErrMismatch) {
		t.Errorf("wrong digits expected ErrMismatch, got %v", err)
	}

	// Correct code at T+300s succeeds and clears state.
	if err := svc.Verify(ctx, "u1", "482913"); err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !store.identities["u1"].Verified {
		t.Error("identity should be verified")
	}
	if store.passcodes["u1"].Code != nil {
		t.Error("code should be cleared after verification")
	}
	if len(m.sent) == 0 || m.sent[len(m.sent)-1].subject != "Welcome aboard" {
		t.Error("welcome notification should be sent on verification")
	}

	// Replay after success.
	if err := svc.Verify(ctx, "u1", "482913"); !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("replay expected ErrAlreadyVerified, got %v", err)
	}
}

func TestVerifyNoActiveCode(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.addIdentity("u1", "u1@example.com")

	if err := svc.Verify(context.Background(), "u1", "123456"); !errors.Is(err, ErrNoActiveCode) {
		t.Errorf("expected ErrNoActiveCode, got %v", err)
	}
}

func TestVerifyUnknownIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.Verify(context.Background(), "ghost", "123456"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGenerateCodeShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		if err != nil {
			t.Fatalf("generateCode failed: %v", err)
		}
		if !sixDigits.MatchString(code) {
			t.Fatalf("code %q should be exactly six digits", code)
		}
		seen[code] = true
	}
	if len(seen) < 100 {
		t.Errorf("200 draws produced only %d distinct codes", len(seen))
	}
}
