// Package statetoken mints and verifies the opaque state tokens carried
// through third-party OAuth authorization redirects.
//
// A token is self-describing: it encodes the user ID, session ID, a random
// nonce and a Unix timestamp, pipe-delimited and base64url-encoded without
// padding. When a signing secret is configured the tuple is protected by an
// HMAC-SHA256 signature verified in constant time, so authenticity and
// freshness can be checked before any server-side lookup. This bounds the
// cost of malicious or garbage callback requests.
//
// # Quick Start
//
// Initialize the codec using environment variables:
//
//	import "github.com/luminastack/fusekit/statetoken"
//
//	// Uses FUSE_STATE_SECRET, FUSE_STATE_MAX_AGE, FUSE_STATE_REQUIRE_SIGNING
//	err := statetoken.Init()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	token, err := statetoken.MakeState("user-42", "sess-9")
//
//	// On the provider callback:
//	claims, err := statetoken.ParseAndVerifyState(token, 0) // 0 = default max age
//
// # Unsigned Mode
//
// When no secret is configured the codec runs in unsigned mode and trusts
// client-supplied fields verbatim. This is an explicit, security-relevant
// configuration switch: the codec logs a loud warning on construction, and
// production deployments should set RequireSigning so that New refuses to
// build an unsigned codec.
//
// # Replay Prevention
//
// The codec does not enforce single-use. Replay prevention is the caller's
// responsibility via the oauthtx transaction store's status transitions.
//
// # Errors
//
//   - ErrStateInvalid: malformed token, wrong field count, or signature mismatch
//   - ErrStateExpired: well-formed and correctly signed but past the max age
//
// Both gate a security boundary and must be surfaced to the caller
// uninterpreted.
package statetoken
