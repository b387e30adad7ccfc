package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Hasher produces password digests for new or reset passwords.
type Hasher interface {
	Hash(password string) (string, error)
}

// SHA256Hasher is a fast deterministic digest: hex(sha256(password)).
type SHA256Hasher struct{}

func (SHA256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

// BcryptHasher is a salted slow hash.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// NewHasher returns the hasher named by the auth.password_hasher setting.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", "sha256":
		return SHA256Hasher{}, nil
	case "bcrypt":
		return BcryptHasher{}, nil
	default:
		return nil, fmt.Errorf("unsupported password hasher: %s", name)
	}
}

// matchMode describes which rule accepted a password.
type matchMode int

const (
	noMatch matchMode = iota
	matchBcrypt
	matchSHA256
	matchPlaintext
)

// matchPassword checks candidate against stored, which may be a bcrypt hash,
// a sha256 hex digest, or a plaintext password left from before hashing was introduced.
// TODO: drop the plaintext rule once no stored password is left unhashed.
func matchPassword(stored, candidate string) matchMode {
	if stored == "" {
		return noMatch
	}
	if strings.HasPrefix(stored, "$2") {
		if bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil {
			return matchBcrypt
		}
		return noMatch
	}
	sum := sha256.Sum256([]byte(candidate))
	if subtle.ConstantTimeCompare([]byte(stored), []byte(hex.EncodeToString(sum[:]))) == 1 {
		return matchSHA256
	}
	// A stored digest must never match itself as a plaintext password.
	if !isHexDigest(stored) && subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1 {
		return matchPlaintext
	}
	return noMatch
}

func isHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
