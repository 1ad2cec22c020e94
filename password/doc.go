// Package password implements one-way password hashing and verification.
//
// # Output formats
//
// Argon2id hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Bcrypt hashes use the standard modular crypt format ($2a$, $2b$, $2y$) with
// the cost factor embedded in the hash.
//
// [Auto] hashes with a primary [Hasher] and verifies any format it knows,
// reporting hashes from a non-primary format as needing an upgrade so the
// engine can rehash on the next successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other shopauth package.
//   - Log plaintext passwords or hashes.
package password
