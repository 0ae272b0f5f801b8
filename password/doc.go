// Package password implements the salted digest primitive used for account
// passwords and recovery codes.
//
// # Salt format
//
// A salt is a small PHC-style string that embeds the algorithm identifier and
// its parameters:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>
//
// Hashing is deterministic for a fixed salt, so the same salt can digest both
// the account password and its recovery code, and verification is a
// constant-time comparison of recomputed and stored digests.
//
// # Architecture boundaries
//
// This package owns salt generation and digest computation only. Password
// policy (length bounds, confirmation matching) is enforced by the flows.
package password
