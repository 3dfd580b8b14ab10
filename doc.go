// Package identity implements the identity and token subsystem: issuance and
// verification of signed session tokens, password and API-key credential
// checks, external identity-provider bridging, and the primitives consumed by
// the request authorization middleware.
//
// Tokens are stateless JWTs; a token is trusted until its expiry and there is
// no revocation list. Token purpose (access, refresh, confirm-email,
// forgot-password) is discriminated by the audience claim and must be
// re-checked by every consumer, see TokenPurpose.
package identity
