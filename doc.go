// Package registroauth authenticates users of a school information
// platform across seven credential transports (login form, smartcard
// certificate, fingerprint-reader token, federated identity, Google
// OAuth2, the OIDC gateway variant of the federated login, and an
// ephemeral app-to-app handoff) and resolves which of a person's
// role-scoped accounts is authoritative for the login.
//
// Every transport runs the same pipeline: extract the raw credentials,
// resolve the candidate account, disambiguate linked profiles sharing the
// same tax code, validate the proof together with the security gates
// (maintenance window, time window, transport/role compatibility, IP
// allowlist), and initialize the session. Single-use material such as
// one-time codes, prelogin handoff tokens, and federated assertions is
// consumed atomically at the storage layer, so concurrent replays lose.
//
// Construct the engine through the Builder:
//
//	engine, err := registroauth.New().
//		WithIdentity(store).
//		WithSettings(settings).
//		WithAuditSink(sink).
//		Build()
//
// Rejections are *AuthError values carrying a stable reason code; Reason
// maps any error to the code the HTTP layer should translate.
package registroauth
