package registroauth

import (
	"context"
	"testing"
	"time"
)

func loadedSettings(t *testing.T, values map[string]string) *Settings {
	t.Helper()
	s := NewSettings(newFakeSettings(values))
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	return s
}

func TestMaintenanceWindow(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local)
	s := loadedSettings(t, map[string]string{
		"manutenzione_inizio": "2026-03-04 09:00",
		"manutenzione_fine":   "2026-03-04 11:00",
	})

	if !s.MaintenanceActive(now) {
		t.Error("window covering now should be active")
	}
	if s.MaintenanceActive(now.Add(2 * time.Hour)) {
		t.Error("time after the window should not be active")
	}
	if s.MaintenanceActive(now.Add(-2 * time.Hour)) {
		t.Error("time before the window should not be active")
	}
}

func TestMaintenanceWindowUnsetOrInverted(t *testing.T) {
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local)

	if loadedSettings(t, nil).MaintenanceActive(now) {
		t.Error("unset window should never be active")
	}

	inverted := loadedSettings(t, map[string]string{
		"manutenzione_inizio": "2026-03-04 11:00",
		"manutenzione_fine":   "2026-03-04 09:00",
	})
	if inverted.MaintenanceActive(now) {
		t.Error("inverted window should never be active")
	}
}

func TestMaintenanceWindowMalformedValueIgnored(t *testing.T) {
	s := loadedSettings(t, map[string]string{
		"manutenzione_inizio": "not a date",
		"manutenzione_fine":   "2026-03-04 11:00",
	})
	if s.MaintenanceActive(time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local)) {
		t.Error("window with a malformed bound should never be active")
	}
}

func TestBlockWindow(t *testing.T) {
	s := loadedSettings(t, map[string]string{
		"blocco_inizio": "08:00",
		"blocco_fine":   "14:00",
	})

	inside := time.Date(2026, 3, 4, 10, 30, 0, 0, time.Local)
	outside := time.Date(2026, 3, 4, 17, 0, 0, 0, time.Local)
	if !s.BlockWindowActive(inside) {
		t.Error("10:30 should be inside 08:00-14:00")
	}
	if s.BlockWindowActive(outside) {
		t.Error("17:00 should be outside 08:00-14:00")
	}
}

func TestBlockWindowWrapsMidnight(t *testing.T) {
	s := loadedSettings(t, map[string]string{
		"blocco_inizio": "22:00",
		"blocco_fine":   "06:00",
	})

	if !s.BlockWindowActive(time.Date(2026, 3, 4, 23, 30, 0, 0, time.Local)) {
		t.Error("23:30 should be inside 22:00-06:00")
	}
	if !s.BlockWindowActive(time.Date(2026, 3, 4, 5, 0, 0, 0, time.Local)) {
		t.Error("05:00 should be inside 22:00-06:00")
	}
	if s.BlockWindowActive(time.Date(2026, 3, 4, 12, 0, 0, 0, time.Local)) {
		t.Error("12:00 should be outside 22:00-06:00")
	}
}

func TestBlockWindowUnset(t *testing.T) {
	if loadedSettings(t, nil).BlockWindowActive(time.Now()) {
		t.Error("unset block window should never be active")
	}
}

func TestHolidays(t *testing.T) {
	s := loadedSettings(t, map[string]string{
		"giorni_festivi_istituto": "25/04, 01/05, bogus, 02/06",
	})

	liberation := time.Date(2026, 4, 25, 10, 0, 0, 0, time.Local) // Saturday anyway
	laborDay := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)    // Friday
	ordinary := time.Date(2026, 5, 6, 10, 0, 0, 0, time.Local)    // Wednesday

	if !s.IsHoliday(liberation) {
		t.Error("configured holiday not recognized")
	}
	if !s.IsHoliday(laborDay) {
		t.Error("configured weekday holiday not recognized")
	}
	if s.IsHoliday(ordinary) {
		t.Error("ordinary wednesday flagged as holiday")
	}

	saturday := time.Date(2026, 5, 2, 10, 0, 0, 0, time.Local)
	sunday := time.Date(2026, 5, 3, 10, 0, 0, 0, time.Local)
	if !s.IsHoliday(saturday) || !s.IsHoliday(sunday) {
		t.Error("weekend not treated as holiday")
	}
}

func TestIPAllowlist(t *testing.T) {
	s := loadedSettings(t, map[string]string{
		"ip_scuola": "192.0.2.0/24, 198.51.100.7",
	})

	cases := []struct {
		ip   string
		want bool
	}{
		{"192.0.2.10", true},
		{"192.0.2.255", true},
		{"198.51.100.7", true},
		{"198.51.100.8", false},
		{"203.0.113.1", false},
		{"not-an-ip", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := s.IPAllowed(tc.ip); got != tc.want {
			t.Errorf("IPAllowed(%q) = %v, want %v", tc.ip, got, tc.want)
		}
	}
}

func TestIPAllowlistEmptyDeniesAll(t *testing.T) {
	if loadedSettings(t, nil).IPAllowed("192.0.2.10") {
		t.Error("empty allowlist must deny everything")
	}
}

func TestIdentityProviderFlags(t *testing.T) {
	s := loadedSettings(t, map[string]string{
		"id_provider":      "spid-gw",
		"id_provider_tipo": "oidc",
		"otp_tipo":         "totp",
	})

	if !s.IdentityProviderActive() {
		t.Error("provider should be active")
	}
	if s.IdentityProviderType() != "oidc" {
		t.Errorf("provider type = %q, want oidc", s.IdentityProviderType())
	}
	if s.OTPType() != "totp" {
		t.Errorf("otp type = %q, want totp", s.OTPType())
	}

	if loadedSettings(t, nil).IdentityProviderActive() {
		t.Error("provider should be inactive without a key")
	}
}

func TestSettingsReloadSwapsSnapshot(t *testing.T) {
	provider := newFakeSettings(map[string]string{"otp_tipo": "totp"})
	s := NewSettings(provider)
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s.OTPType() != "totp" {
		t.Fatalf("otp type = %q", s.OTPType())
	}

	provider.set("otp_tipo", "")
	if err := s.Reload(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s.OTPType() != "" {
		t.Error("stale snapshot after reload")
	}
}
