package registroauth

import (
	"encoding/json"
	"errors"
	"testing"
)

const familyTaxCode = "RSSLRA82C44H501Q"

// family builds a natural person holding two parent accounts (one per
// child's school section) and a teacher account at the same school.
func family(t *testing.T) []*Account {
	t.Helper()
	return []*Account{
		{
			ID: "101", Username: "laura.rossi.gen1", Role: RoleParent,
			FullName: "Laura Rossi", TaxCode: familyTaxCode, Enabled: true,
			PasswordHash: testHash(t, testPassword),
		},
		{
			ID: "102", Username: "laura.rossi.gen2", Role: RoleParent,
			FullName: "Laura Rossi", TaxCode: familyTaxCode, Enabled: true,
		},
		{
			ID: "103", Username: "laura.rossi.doc", Role: RoleTeacher,
			FullName: "Laura Rossi", TaxCode: familyTaxCode, Enabled: true,
			PasswordHash: testHash(t, testPassword),
		},
	}
}

func TestParentLoginSeesOnlyParentProfiles(t *testing.T) {
	identity := newFakeIdentity(family(t)...)
	engine := newTestEngine(t, identity, nil)
	sess := newTestSession()

	req := &Request{Username: "laura.rossi.gen1", Password: testPassword, CSRFToken: testCSRF}
	result, err := engine.Authenticate(testContext(), req, sess)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	linked := result.LinkedProfiles
	if len(linked) != 1 {
		t.Fatalf("linked groups = %v, want parent group only", linked)
	}
	ids := linked[RoleParent]
	if len(ids) != 2 || ids[0] != "101" || ids[1] != "102" {
		t.Errorf("parent group = %v, want [101 102]", ids)
	}
	if _, ok := linked[RoleTeacher]; ok {
		t.Error("teacher account leaked into a parent login")
	}

	raw := sess.Get(SessionKeyProfiles, "")
	if raw == "" {
		t.Fatal("profile list not stored in session")
	}
	var stored map[Role][]string
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("decode stored profiles: %v", err)
	}
	if len(stored[RoleParent]) != 2 {
		t.Errorf("stored parent group = %v", stored[RoleParent])
	}

	// Commit deferred until the user picks a profile.
	if !identity.account("101").LastLoginAt.IsZero() {
		t.Error("last login recorded while profile choice is pending")
	}
}

func TestTeacherLoginSeesAllProfiles(t *testing.T) {
	identity := newFakeIdentity(family(t)...)
	engine := newTestEngine(t, identity, nil)

	req := &Request{Username: "laura.rossi.doc", Password: testPassword, CSRFToken: testCSRF}
	result, err := engine.Authenticate(testContext(), req, newTestSession())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	linked := result.LinkedProfiles
	if len(linked[RoleParent]) != 2 || len(linked[RoleTeacher]) != 1 {
		t.Errorf("linked = %v, want both parent accounts and the teacher", linked)
	}
	if engine.MetricsSnapshot().Counters[MetricProfileLinked] != 1 {
		t.Error("profile linked counter not incremented")
	}
}

func TestSingleAccountLoginHasNoProfiles(t *testing.T) {
	accounts := family(t)
	identity := newFakeIdentity(accounts[2]) // teacher only
	engine := newTestEngine(t, identity, nil)

	req := &Request{Username: "laura.rossi.doc", Password: testPassword, CSRFToken: testCSRF}
	result, err := engine.Authenticate(testContext(), req, newTestSession())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if result.LinkedProfiles != nil {
		t.Errorf("linked = %v, want nil for an unambiguous login", result.LinkedProfiles)
	}
	if identity.account("103").LastLoginAt.IsZero() {
		t.Error("last login not recorded for an unambiguous login")
	}
}

func TestLoginFailsWhenAccountOutsideOwnGroup(t *testing.T) {
	// The account's registry name diverged from its siblings: the group
	// lookup no longer returns it, and the login fails closed.
	accounts := family(t)
	accounts[0].FullName = "Laura Maria Rossi"
	identity := newFakeIdentity(accounts...)
	engine := newTestEngine(t, identity, nil)

	req := &Request{Username: "laura.rossi.gen1", Password: testPassword, CSRFToken: testCSRF}
	if _, err := engine.Authenticate(testContext(), req, newTestSession()); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("err = %v, want ErrInvalidUser", err)
	}
}

func TestDisabledSiblingExcludedFromProfiles(t *testing.T) {
	accounts := family(t)
	accounts[1].Enabled = false
	identity := newFakeIdentity(accounts...)
	engine := newTestEngine(t, identity, nil)

	req := &Request{Username: "laura.rossi.gen1", Password: testPassword, CSRFToken: testCSRF}
	result, err := engine.Authenticate(testContext(), req, newTestSession())
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	// The only other parent account is disabled, so the login is
	// unambiguous under the parent constraint.
	if result.LinkedProfiles != nil {
		t.Errorf("linked = %v, want nil", result.LinkedProfiles)
	}
}

func TestPreferredCandidateOrder(t *testing.T) {
	groups := map[Role][]string{
		RoleTeacher: {"3"},
		RoleStudent: {"2"},
		RoleParent:  {"1"},
	}
	id, ok := preferredCandidate(groups)
	if !ok || id != "1" {
		t.Fatalf("candidate = %q/%v, want parent 1", id, ok)
	}

	delete(groups, RoleParent)
	if id, _ := preferredCandidate(groups); id != "2" {
		t.Errorf("candidate = %q, want student 2", id)
	}

	if _, ok := preferredCandidate(nil); ok {
		t.Error("empty groups produced a candidate")
	}
}
