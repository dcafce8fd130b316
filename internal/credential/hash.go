package credential

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// Derivation constants. Changing any of them invalidates every stored hash.
const (
	// DomainSeparator is appended to the cleartext before the first digest
	DomainSeparator = "f1dafbdcab924862a198deaa5b6bae29aef7f2a442f841da975f1c515529d254"

	// StretchRounds is the number of chained SHA-256 rounds
	StretchRounds = 5000

	// Iterations is the PBKDF2 iteration count
	Iterations = 512000

	// KeyLength is the derived key length in bytes
	KeyLength = 32

	// SaltLength is the salt length in bytes
	SaltLength = 16
)

// Credential is the stored form of a user password
type Credential struct {
	Username string
	Salt     []byte
	Hash     string
}

// NewSalt returns SaltLength random bytes
func NewSalt() ([]byte, error) {
	return readSalt(rand.Reader)
}

func readSalt(r io.Reader) ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// DeriveHash stretches cleartext with SHA-256 and derives the stored hash
// with PBKDF2-HMAC-SHA256 over the raw digest of the stretched value. The
// result is hex encoded.
func DeriveHash(cleartext, username string, salt []byte) (string, error) {
	if len(salt) != SaltLength {
		return "", fmt.Errorf("salt must be %d bytes, got %d", SaltLength, len(salt))
	}

	intermediate := hexDigest([]byte(cleartext + DomainSeparator + username))
	for i := 0; i < StretchRounds; i++ {
		intermediate = hexDigest([]byte(intermediate))
	}

	sum := sha256.Sum256([]byte(intermediate))
	key := pbkdf2.Key(sum[:], salt, Iterations, KeyLength, sha256.New)
	return hex.EncodeToString(key), nil
}

// Verify reports whether cleartext matches the stored credential
func Verify(cleartext string, cred *Credential) bool {
	hash, err := DeriveHash(cleartext, cred.Username, cred.Salt)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(hash), []byte(cred.Hash)) == 1
}

func hexDigest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
