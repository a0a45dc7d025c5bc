package registroauth

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/scuolasuite/registroauth/password"
	"github.com/scuolasuite/registroauth/session"
)

const (
	testClientIP = "192.0.2.10"
	testCSRF     = "csrf-token-1"
	testPassword = "correct-horse-battery"
)

// fakeIdentity is an in-memory identity store. The compare-and-* methods
// are guarded by one mutex, so concurrent consumers observe the same
// atomicity the real store provides.
type fakeIdentity struct {
	mu         sync.Mutex
	accounts   map[string]*Account
	assertions map[string]*FederatedAssertion
}

func newFakeIdentity(accounts ...*Account) *fakeIdentity {
	f := &fakeIdentity{
		accounts:   make(map[string]*Account),
		assertions: make(map[string]*FederatedAssertion),
	}
	for _, a := range accounts {
		f.accounts[a.ID] = a
	}
	return f
}

func (f *fakeIdentity) addAssertion(a *FederatedAssertion) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assertions[a.ResponseID] = a
}

func (f *fakeIdentity) account(id string) *Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.accounts[id]
}

func (f *fakeIdentity) assertion(responseID string) *FederatedAssertion {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assertions[responseID]
}

func copyAccount(a *Account) *Account {
	if a == nil {
		return nil
	}
	out := *a
	return &out
}

func (f *fakeIdentity) FindByUsername(_ context.Context, username string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Username == username {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (f *fakeIdentity) FindByID(_ context.Context, id string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyAccount(f.accounts[id]), nil
}

func (f *fakeIdentity) FindByDevicePairingKey(_ context.Context, key string) (*Account, error) {
	if key == "" {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.DevicePairingKey == key {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (f *fakeIdentity) FindByTaxCodeGroup(_ context.Context, fullName, taxCode string) (map[Role][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	groups := make(map[Role][]string)
	for _, a := range f.accounts {
		if !a.Enabled || a.TaxCode != taxCode {
			continue
		}
		if fullName != "" && a.FullName != fullName {
			continue
		}
		groups[a.Role] = append(groups[a.Role], a.ID)
	}
	for _, ids := range groups {
		sort.Strings(ids)
	}
	return groups, nil
}

func (f *fakeIdentity) FindAssertion(_ context.Context, responseID string) (*FederatedAssertion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assertions[responseID]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (f *fakeIdentity) CompareAndSetAssertionState(_ context.Context, responseID string, from, to AssertionState) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assertions[responseID]
	if !ok || a.State != from {
		return false, nil
	}
	a.State = to
	return true, nil
}

func (f *fakeIdentity) CompareAndClearPrelogin(_ context.Context, accountID string) (string, string, time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok || a.PreloginToken == "" {
		return "", "", time.Time{}, false, nil
	}
	token, ipHash, createdAt := a.PreloginToken, a.PreloginIPHash, a.PreloginCreatedAt
	a.PreloginToken, a.PreloginIPHash, a.PreloginCreatedAt = "", "", time.Time{}
	return token, ipHash, createdAt, true, nil
}

func (f *fakeIdentity) SetPrelogin(_ context.Context, accountID, token, ipHash string, createdAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return nil
	}
	a.PreloginToken, a.PreloginIPHash, a.PreloginCreatedAt = token, ipHash, createdAt
	return nil
}

func (f *fakeIdentity) UpdateLastLogin(_ context.Context, accountID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[accountID]; ok {
		a.LastLoginAt = at
	}
	return nil
}

func (f *fakeIdentity) UpdateLastOTP(_ context.Context, accountID, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[accountID]; ok {
		a.LastOTPUsed = code
	}
	return nil
}

func (f *fakeIdentity) UpdatePasswordHash(_ context.Context, accountID, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[accountID]; ok {
		a.PasswordHash = hash
	}
	return nil
}

// fakeSettings is a map-backed settings provider. Missing keys yield empty
// values, matching the real table semantics.
type fakeSettings struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakeSettings(values map[string]string) *fakeSettings {
	if values == nil {
		values = make(map[string]string)
	}
	return &fakeSettings{values: values}
}

func (s *fakeSettings) set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

func (s *fakeSettings) Value(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[key], nil
}

// testConfig lowers the password cost to the floor so hashing stays fast,
// and enables metrics so tests can assert on counters.
func testConfig() Config {
	cfg := defaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Gateway.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func testHasher(t *testing.T) *password.Argon2 {
	t.Helper()
	cfg := testConfig()
	h, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		t.Fatalf("build hasher: %v", err)
	}
	return h
}

func testHash(t *testing.T, plain string) string {
	t.Helper()
	hash, err := testHasher(t).Hash(plain)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return hash
}

func newTestEngine(t *testing.T, identity *fakeIdentity, settings *fakeSettings) *Engine {
	t.Helper()
	return newTestEngineConfig(t, identity, settings, testConfig())
}

func newTestEngineConfig(t *testing.T, identity *fakeIdentity, settings *fakeSettings, cfg Config) *Engine {
	t.Helper()
	if settings == nil {
		settings = newFakeSettings(nil)
	}
	engine, err := New().
		WithConfig(cfg).
		WithIdentity(identity).
		WithSettings(settings).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	if err := engine.Settings().Reload(context.Background()); err != nil {
		t.Fatalf("load settings: %v", err)
	}
	return engine
}

// newTestSession returns an in-memory session with the expected CSRF token
// already placed, the way the frontend does before rendering the form.
func newTestSession() *session.Memory {
	s := session.NewMemory()
	s.Set(SessionKeyCSRF, testCSRF)
	return s
}

func testContext() context.Context {
	return WithClientIP(context.Background(), testClientIP)
}

// totpNow computes the code the verifier expects for the given secret at
// the given instant, using the test configuration.
func totpNow(t *testing.T, secret []byte, now time.Time) string {
	t.Helper()
	cfg := testConfig()
	code, err := hotpCode(secret, now.Unix()/int64(cfg.OTP.Period), cfg.OTP.Digits, cfg.OTP.Algorithm)
	if err != nil {
		t.Fatalf("compute otp: %v", err)
	}
	return code
}
