package registroauth

import (
	"errors"
	"testing"
	"time"
)

var testOTPSecret = []byte("12345678901234567890")

func otpTeacher(t *testing.T) *Account {
	t.Helper()
	return &Account{
		ID:           "20",
		Username:     "bianchi.anna",
		PasswordHash: testHash(t, testPassword),
		Role:         RoleTeacher,
		FullName:     "Anna Bianchi",
		Enabled:      true,
		OTPSecret:    testOTPSecret,
	}
}

func otpSettings() *fakeSettings {
	return newFakeSettings(map[string]string{"otp_tipo": "totp"})
}

func TestFormLoginWithOTP(t *testing.T) {
	identity := newFakeIdentity(otpTeacher(t))
	engine := newTestEngine(t, identity, otpSettings())

	code := totpNow(t, testOTPSecret, time.Now())
	req := &Request{
		Username:  "bianchi.anna",
		Password:  testPassword,
		OTPCode:   code,
		CSRFToken: testCSRF,
	}
	if _, err := engine.Authenticate(testContext(), req, newTestSession()); err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if got := identity.account("20").LastOTPUsed; got != code {
		t.Errorf("last otp = %q, want %q", got, code)
	}
	if engine.MetricsSnapshot().Counters[MetricOTPSuccess] != 1 {
		t.Error("otp success counter not incremented")
	}
}

func TestFormLoginOTPRequiredForTeachers(t *testing.T) {
	engine := newTestEngine(t, newFakeIdentity(otpTeacher(t)), otpSettings())

	req := &Request{
		Username:  "bianchi.anna",
		Password:  testPassword,
		CSRFToken: testCSRF,
	}
	_, err := engine.Authenticate(testContext(), req, newTestSession())
	if !errors.Is(err, ErrMissingOTPCredentials) {
		t.Fatalf("err = %v, want ErrMissingOTPCredentials", err)
	}
}

func TestFormLoginOTPWithoutSecret(t *testing.T) {
	teacher := otpTeacher(t)
	teacher.OTPSecret = nil
	engine := newTestEngine(t, newFakeIdentity(teacher), otpSettings())

	req := &Request{
		Username:  "bianchi.anna",
		Password:  testPassword,
		OTPCode:   "123456",
		CSRFToken: testCSRF,
	}
	_, err := engine.Authenticate(testContext(), req, newTestSession())
	if !errors.Is(err, ErrMissingOTPCredentials) {
		t.Fatalf("err = %v, want ErrMissingOTPCredentials", err)
	}
}

func TestFormLoginOTPReplayRejected(t *testing.T) {
	teacher := otpTeacher(t)
	code := totpNow(t, testOTPSecret, time.Now())
	teacher.LastOTPUsed = code

	identity := newFakeIdentity(teacher)
	engine := newTestEngine(t, identity, otpSettings())

	req := &Request{
		Username:  "bianchi.anna",
		Password:  testPassword,
		OTPCode:   code,
		CSRFToken: testCSRF,
	}
	_, err := engine.Authenticate(testContext(), req, newTestSession())
	if !errors.Is(err, ErrOTPReplayed) {
		t.Fatalf("err = %v, want ErrOTPReplayed", err)
	}
	// The replay must be indistinguishable from a wrong code outside.
	if Reason(err) != "invalid_credentials" {
		t.Errorf("reason = %q, want invalid_credentials", Reason(err))
	}
	if engine.MetricsSnapshot().Counters[MetricOTPReplay] != 1 {
		t.Error("otp replay counter not incremented")
	}
}

func TestFormLoginWrongOTP(t *testing.T) {
	engine := newTestEngine(t, newFakeIdentity(otpTeacher(t)), otpSettings())

	req := &Request{
		Username:  "bianchi.anna",
		Password:  testPassword,
		OTPCode:   "000000",
		CSRFToken: testCSRF,
	}
	_, err := engine.Authenticate(testContext(), req, newTestSession())
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if engine.MetricsSnapshot().Counters[MetricOTPFailure] != 1 {
		t.Error("otp failure counter not incremented")
	}
}

func TestFormLoginOptionalOTPForOtherRoles(t *testing.T) {
	staff := formAccount(t)
	staff.OTPSecret = testOTPSecret
	identity := newFakeIdentity(staff)
	engine := newTestEngine(t, identity, otpSettings())

	// Without a code the login passes: the second factor is mandatory for
	// teachers only.
	if _, err := engine.Authenticate(testContext(), formRequest(), newTestSession()); err != nil {
		t.Fatalf("authenticate without code: %v", err)
	}

	// With a code it must verify.
	req := formRequest()
	req.OTPCode = "999999"
	if _, err := engine.Authenticate(testContext(), req, newTestSession()); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
}

func TestFormLoginOTPNotPersistedWhenProfilesPending(t *testing.T) {
	teacher := otpTeacher(t)
	teacher.TaxCode = "BNCNNA80A41H501X"
	sibling := &Account{
		ID:       "21",
		Username: "bianchi.anna.ata",
		Role:     RoleATA,
		FullName: "Anna Bianchi",
		TaxCode:  "BNCNNA80A41H501X",
		Enabled:  true,
	}
	identity := newFakeIdentity(teacher, sibling)
	engine := newTestEngine(t, identity, otpSettings())

	code := totpNow(t, testOTPSecret, time.Now())
	req := &Request{
		Username:  "bianchi.anna",
		Password:  testPassword,
		OTPCode:   code,
		CSRFToken: testCSRF,
	}
	result, err := engine.Authenticate(testContext(), req, newTestSession())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if len(result.LinkedProfiles) == 0 {
		t.Fatal("expected linked profiles")
	}

	// Commit is deferred until the user settles on a profile.
	if identity.account("20").LastOTPUsed == code {
		t.Error("otp persisted before profile selection")
	}
	if !identity.account("20").LastLoginAt.IsZero() {
		t.Error("last login persisted before profile selection")
	}
}
