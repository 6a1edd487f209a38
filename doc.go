// Package shield provides pluggable login strategies and a role/privilege
// authorization cache for applications that keep users in a relational store.
//
// Token drivers:
//   - opaque: random bearer tokens persisted in access_tokens, tagged with the
//     user's role slugs as abilities. Revocation is a row delete.
//   - delegated: grants issued and revoked by a GrantAuthority with their own
//     expiry. The default authority is backed by the oauth_grants table.
//   - signed: stateless JWT access/refresh pairs. Logout places the access
//     token jti on a Denylist until it would have expired (plus a grace period).
//
// The Orchestrator runs the credential, suspension and verification gates and
// then hands off to the configured Strategy. Strategies never repeat those gates.
//
// Authorization cache:
//   - AuthorizationCache memoizes each user's resolved roles and privileges with
//     no TTL. Correctness relies on invalidation: every Admin mutation computes
//     the affected users inside its transaction and publishes a MutationEvent
//     that the cache consumes synchronously, before and after commit.
//
// Transport and CLI collaborators live in httpapi and cmd/shieldctl.
package shield
