// Package password hashes and verifies passwords with Argon2id.
//
// Hashes are stored in PHC string format
// ($argon2id$v=19$m=...,t=...,p=...$salt$hash) so parameters travel with the
// hash and can be upgraded without a flag day. Verification re-derives the
// key with the stored parameters and compares in constant time relative to
// the stored hash, never the input.
//
// The default parameters (19 MiB memory, time cost 2, parallelism 1,
// 32-byte key) follow the OWASP memory-hard baseline.
package password
