package registroauth

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"
	"time"
)

// Settings keys read from the external provider.
const (
	settingMaintenanceStart = "manutenzione_inizio"
	settingMaintenanceEnd   = "manutenzione_fine"
	settingBlockStart       = "blocco_inizio"
	settingBlockEnd         = "blocco_fine"
	settingHolidays         = "giorni_festivi_istituto"
	settingSchoolIPs        = "ip_scuola"
	settingOTPType          = "otp_tipo"
	settingIDProvider       = "id_provider"
	settingIDProviderType   = "id_provider_tipo"
)

const (
	maintenanceLayout = "2006-01-02 15:04"
	blockLayout       = "15:04"
	holidayLayout     = "02/01"
)

type settingsSnapshot struct {
	maintenanceStart time.Time
	maintenanceEnd   time.Time

	// Minutes since midnight; -1 when unset.
	blockStart int
	blockEnd   int

	holidays map[string]struct{}

	schoolIPs []netip.Prefix

	otpType        string
	idProvider     string
	idProviderType string
}

// Settings caches the school's runtime configuration keys and parses them
// once per reload. Reads are lock-free; Reload swaps the whole snapshot.
type Settings struct {
	provider SettingsProvider
	snap     atomic.Pointer[settingsSnapshot]
}

// NewSettings wraps the provider with an empty snapshot. Call Reload before
// first use; the engine also reloads after every successful login.
func NewSettings(provider SettingsProvider) *Settings {
	s := &Settings{provider: provider}
	s.snap.Store(&settingsSnapshot{blockStart: -1, blockEnd: -1})
	return s
}

// Reload re-reads every key from the provider and atomically replaces the
// parsed snapshot. Malformed individual values are treated as unset rather
// than failing the whole reload.
func (s *Settings) Reload(ctx context.Context) error {
	if s == nil || s.provider == nil {
		return nil
	}

	read := func(key string) (string, error) {
		v, err := s.provider.Value(ctx, key)
		if err != nil {
			return "", fmt.Errorf("settings: read %s: %w", key, err)
		}
		return strings.TrimSpace(v), nil
	}

	next := &settingsSnapshot{blockStart: -1, blockEnd: -1}

	rawStart, err := read(settingMaintenanceStart)
	if err != nil {
		return err
	}
	rawEnd, err := read(settingMaintenanceEnd)
	if err != nil {
		return err
	}
	if t, perr := time.ParseInLocation(maintenanceLayout, rawStart, time.Local); perr == nil {
		next.maintenanceStart = t
	}
	if t, perr := time.ParseInLocation(maintenanceLayout, rawEnd, time.Local); perr == nil {
		next.maintenanceEnd = t
	}

	rawBlockStart, err := read(settingBlockStart)
	if err != nil {
		return err
	}
	rawBlockEnd, err := read(settingBlockEnd)
	if err != nil {
		return err
	}
	next.blockStart = parseMinuteOfDay(rawBlockStart)
	next.blockEnd = parseMinuteOfDay(rawBlockEnd)

	rawHolidays, err := read(settingHolidays)
	if err != nil {
		return err
	}
	next.holidays = parseHolidays(rawHolidays)

	rawIPs, err := read(settingSchoolIPs)
	if err != nil {
		return err
	}
	next.schoolIPs = parsePrefixList(rawIPs)

	if next.otpType, err = read(settingOTPType); err != nil {
		return err
	}
	if next.idProvider, err = read(settingIDProvider); err != nil {
		return err
	}
	if next.idProviderType, err = read(settingIDProviderType); err != nil {
		return err
	}

	s.snap.Store(next)
	return nil
}

func parseMinuteOfDay(raw string) int {
	t, err := time.Parse(blockLayout, raw)
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

func parseHolidays(raw string) map[string]struct{} {
	if raw == "" {
		return nil
	}
	out := make(map[string]struct{})
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if _, err := time.Parse(holidayLayout, entry); err != nil {
			continue
		}
		out[entry] = struct{}{}
	}
	return out
}

func parsePrefixList(raw string) []netip.Prefix {
	if raw == "" {
		return nil
	}
	var out []netip.Prefix
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if p, err := netip.ParsePrefix(entry); err == nil {
			out = append(out, p)
			continue
		}
		if a, err := netip.ParseAddr(entry); err == nil {
			out = append(out, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return out
}

func (s *Settings) snapshot() *settingsSnapshot {
	if s == nil {
		return &settingsSnapshot{blockStart: -1, blockEnd: -1}
	}
	return s.snap.Load()
}

// MaintenanceActive reports whether now falls inside the configured
// maintenance window. An unset or inverted window is never active.
func (s *Settings) MaintenanceActive(now time.Time) bool {
	snap := s.snapshot()
	if snap.maintenanceStart.IsZero() || snap.maintenanceEnd.IsZero() {
		return false
	}
	if snap.maintenanceEnd.Before(snap.maintenanceStart) {
		return false
	}
	return !now.Before(snap.maintenanceStart) && !now.After(snap.maintenanceEnd)
}

// BlockWindowActive reports whether now falls inside the daily teacher
// block window. A window crossing midnight wraps.
func (s *Settings) BlockWindowActive(now time.Time) bool {
	snap := s.snapshot()
	if snap.blockStart < 0 || snap.blockEnd < 0 {
		return false
	}
	minute := now.Hour()*60 + now.Minute()
	if snap.blockStart <= snap.blockEnd {
		return minute >= snap.blockStart && minute <= snap.blockEnd
	}
	return minute >= snap.blockStart || minute <= snap.blockEnd
}

// IsHoliday reports whether now is a configured school holiday or a
// weekend day.
func (s *Settings) IsHoliday(now time.Time) bool {
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return true
	}
	snap := s.snapshot()
	if len(snap.holidays) == 0 {
		return false
	}
	_, ok := snap.holidays[now.Format(holidayLayout)]
	return ok
}

// IPAllowed reports whether the address belongs to the school allowlist.
// An empty allowlist denies everything: the reader transport only works
// from addresses the school declared.
func (s *Settings) IPAllowed(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, p := range s.snapshot().schoolIPs {
		if p.Contains(addr.Unmap()) {
			return true
		}
	}
	return false
}

// OTPType returns the configured second-factor mode, empty when disabled.
func (s *Settings) OTPType() string {
	return s.snapshot().otpType
}

// IdentityProviderActive reports whether an external identity provider is
// configured for the school.
func (s *Settings) IdentityProviderActive() bool {
	return s.snapshot().idProvider != ""
}

// IdentityProviderType returns the configured provider flavor.
func (s *Settings) IdentityProviderType() string {
	return s.snapshot().idProviderType
}
