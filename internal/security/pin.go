/**
 * @description
 * This file implements transaction PIN hashing and verification using Argon2id.
 * Hashes are stored in PHC string format so the parameters and salt travel with
 * the hash. A server-side pepper is mixed into the PIN before hashing so a
 * database dump alone is not enough to brute-force 4-digit PINs offline.
 *
 * @dependencies
 * - crypto/rand, crypto/subtle, encoding/base64: Standard Go libraries.
 * - golang.org/x/crypto/argon2: The Argon2id key derivation function.
 */

package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	saltLen      = 16
)

var ErrInvalidPINHash = errors.New("invalid pin hash format")

// PINHasher hashes and verifies transaction PINs.
type PINHasher struct {
	pepper string
}

// NewPINHasher creates a PINHasher with the given server-side pepper.
// An empty pepper is allowed but weakens offline resistance.
func NewPINHasher(pepper string) *PINHasher {
	return &PINHasher{pepper: pepper}
}

// Hash derives an Argon2id hash of the PIN and encodes it in PHC format.
func (h *PINHasher) Hash(pin string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(pin+h.pepper), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// Verify reports whether the PIN matches the stored PHC-encoded hash.
// Comparison is constant-time.
func (h *PINHasher) Verify(pin, encoded string) (bool, error) {
	salt, key, params, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(pin+h.pepper), salt, params.time, params.memory, params.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func decodeHash(encoded string) (salt, key []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, params, ErrInvalidPINHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, params, ErrInvalidPINHash
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, ErrInvalidPINHash
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, ErrInvalidPINHash
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, ErrInvalidPINHash
	}
	return salt, key, params, nil
}

// ValidPINFormat reports whether the PIN is exactly four ASCII digits.
func ValidPINFormat(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
