// Package password provides Argon2id password hashing for Circuito staff
// and user accounts (ambassadors, partner staff, students).
//
// Hashes use the PHC string format and are verified with a constant-time
// compare. Parameters can be tuned via environment variables; decoding is
// bounded to keep attacker-controlled hash strings from causing
// pathological resource usage.
package password
