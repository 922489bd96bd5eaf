// Package apierr defines the error taxonomy shared by the gateway and the
// storage node: one zeebo/errs class per failure category, so callers branch
// on class membership instead of string-matching messages.
package apierr

import "github.com/zeebo/errs"

var (
	// Transport covers connection refusal, outbound failure, and deadline
	// expiry on a peer-to-peer request.
	Transport = errs.Class("transport")
	// Verification covers signature, peer-id, or freshness mismatches on a
	// signed response.
	Verification = errs.Class("verification")
	// Cryptography covers AEAD decrypt failures and content-hash mismatches.
	Cryptography = errs.Class("cryptography")
	// Capacity covers node-full and request-body/manifest size caps.
	Capacity = errs.Class("capacity")
	// Policy covers geofence, autonomous-system, and allowlist denials.
	Policy = errs.Class("policy")
	// Catalog covers relational-store errors, including uniqueness
	// violations.
	Catalog = errs.Class("catalog")
	// Integrity covers insufficient-shards, decode failure, and CID
	// mismatch during reconstruction.
	Integrity = errs.Class("integrity")
	// Auth covers missing/invalid credentials and CSRF mismatches.
	Auth = errs.Class("auth")
	// NotFound covers missing catalog rows.
	NotFound = errs.Class("not_found")
)
