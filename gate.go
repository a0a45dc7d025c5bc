package registroauth

import "time"

// gateGuard evaluates the stateless security gates against the current
// settings snapshot. Gates never mutate anything; they only veto.
type gateGuard struct {
	settings *Settings
}

// checkMaintenance blocks every role except Administrator while the
// configured maintenance window is active.
func (g *gateGuard) checkMaintenance(role Role, now time.Time) error {
	if role == RoleAdministrator {
		return nil
	}
	if g.settings.MaintenanceActive(now) {
		return ErrMaintenanceActive
	}
	return nil
}

// checkTimeWindow applies the daily block window. It concerns teachers
// only, on working days, and is waived when the account carries an active
// second factor.
func (g *gateGuard) checkTimeWindow(role Role, otpActive bool, now time.Time) error {
	if role != RoleTeacher || otpActive {
		return nil
	}
	if g.settings.IsHoliday(now) {
		return nil
	}
	if g.settings.BlockWindowActive(now) {
		return ErrTimeWindowBlocked
	}
	return nil
}

// checkTransportRole denies local transports to roles that must go through
// the external identity provider when one is configured.
func (g *gateGuard) checkTransportRole(transport Transport, role Role) error {
	if !g.settings.IdentityProviderActive() {
		return nil
	}
	if role != RoleTeacher && role != RoleStudent {
		return nil
	}
	switch transport {
	case TransportForm, TransportCard, TransportToken:
		return ErrProviderUserType
	}
	return nil
}

// checkIPAllowlist admits only addresses inside the school allowlist.
// Reader transport only.
func (g *gateGuard) checkIPAllowlist(ip string) error {
	if !g.settings.IPAllowed(ip) {
		return ErrIPBlocked
	}
	return nil
}
