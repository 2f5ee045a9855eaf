package password

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used for new hashes.
const DefaultCost = 12

var legacyHashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Hasher hashes and verifies passwords with bcrypt and upgrades accounts
// still carrying the legacy unsalted SHA-256 digests.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher with the given bcrypt cost. Costs outside the
// valid bcrypt range fall back to DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a salted bcrypt hash of the password.
func (h *Hasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether the password matches a bcrypt hash.
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IsLegacyHash detects the pre-migration unsalted SHA-256 format: exactly
// 64 lowercase hex characters.
func IsLegacyHash(hash string) bool {
	return legacyHashPattern.MatchString(hash)
}

// MigrateLegacyHash recomputes the legacy digest over the supplied password.
// If it matches the stored legacy hash, a new bcrypt hash is returned for
// the caller to persist; otherwise it returns "" and the login must be
// denied.
func (h *Hasher) MigrateLegacyHash(password, legacyHash string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	computed := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(computed), []byte(legacyHash)) != 1 {
		return "", nil
	}
	return h.Hash(password)
}

// ValidateStrength enforces the password policy for new passwords:
// at least 8 characters with one upper, one lower and one digit.
func ValidateStrength(password string) (bool, string) {
	if len(password) < 8 {
		return false, "password must be at least 8 characters"
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper {
		return false, "password must contain at least one uppercase letter"
	}
	if !hasLower {
		return false, "password must contain at least one lowercase letter"
	}
	if !hasDigit {
		return false, "password must contain at least one digit"
	}
	return true, ""
}
