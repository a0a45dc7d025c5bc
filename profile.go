package registroauth

import "context"

// rolePriority orders the candidate roles when a federated tax code maps
// to several enabled accounts and no constraint applies. First match wins;
// the remaining groups still surface as linked profiles.
var rolePriority = []Role{
	RoleParent,
	RoleStudent,
	RoleTeacher,
	RoleATA,
	RoleStaff,
	RolePrincipal,
	RoleAdministrator,
	RoleUser,
}

// resolveProfiles determines which other role-scoped accounts the same
// natural person holds. It only reads across accounts sharing (fullName,
// taxCode); it never mutates them. constraint, when set, discards every
// group outside that role so a weaker-trust transport cannot escalate.
//
// The returned map is nil when the login is unambiguous. An account that
// vanished from its own group (disabled concurrently) fails closed.
func resolveProfiles(ctx context.Context, identity IdentityProvider, account *Account, constraint Role) (map[Role][]string, error) {
	if account.TaxCode == "" {
		return nil, nil
	}

	groups, err := identity.FindByTaxCodeGroup(ctx, account.FullName, account.TaxCode)
	if err != nil {
		return nil, err
	}

	if constraint != "" {
		filtered := make(map[Role][]string, 1)
		if ids, ok := groups[constraint]; ok {
			filtered[constraint] = ids
		}
		groups = filtered
	}

	found := false
	total := 0
	for _, ids := range groups {
		total += len(ids)
		for _, id := range ids {
			if id == account.ID {
				found = true
			}
		}
	}

	if !found {
		return nil, ErrInvalidUser
	}
	if total == 1 {
		return nil, nil
	}

	return groups, nil
}

// preferredCandidate picks the account id a federated login resolves to
// when the tax code alone is ambiguous across roles.
func preferredCandidate(groups map[Role][]string) (string, bool) {
	for _, role := range rolePriority {
		if ids := groups[role]; len(ids) > 0 {
			return ids[0], true
		}
	}
	return "", false
}
