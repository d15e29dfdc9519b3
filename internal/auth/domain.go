package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tillpoint/tillpoint/internal/shared"
)

// Scheme identifies how a stored password was hashed.
type Scheme int

const (
	SchemeUnknown Scheme = iota
	// SchemeSHA256Legacy is an unsalted hex SHA-256 digest written by old installs.
	SchemeSHA256Legacy
	SchemeBcrypt
)

func (s Scheme) String() string {
	switch s {
	case SchemeSHA256Legacy:
		return "sha256-legacy"
	case SchemeBcrypt:
		return "bcrypt"
	default:
		return "unknown"
	}
}

// PasswordHash is a stored password tagged with its scheme.
type PasswordHash struct {
	Scheme Scheme
	Value  string
}

// ParseHash detects the scheme of a stored password column.
func ParseHash(stored string) PasswordHash {
	stored = strings.TrimSpace(stored)
	switch {
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return PasswordHash{Scheme: SchemeBcrypt, Value: stored}
	case len(stored) == sha256.Size*2 && isHex(stored):
		return PasswordHash{Scheme: SchemeSHA256Legacy, Value: strings.ToLower(stored)}
	default:
		return PasswordHash{Scheme: SchemeUnknown, Value: stored}
	}
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// HashPassword hashes plain with bcrypt at cost.
func HashPassword(plain string, cost int) (PasswordHash, error) {
	raw, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return PasswordHash{}, err
	}
	return PasswordHash{Scheme: SchemeBcrypt, Value: string(raw)}, nil
}

// LegacyHash returns the SHA-256 form used before bcrypt.
func LegacyHash(plain string) PasswordHash {
	sum := sha256.Sum256([]byte(plain))
	return PasswordHash{Scheme: SchemeSHA256Legacy, Value: hex.EncodeToString(sum[:])}
}

// Verify reports whether plain matches the hash.
func (h PasswordHash) Verify(plain string) bool {
	switch h.Scheme {
	case SchemeBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(h.Value), []byte(plain)) == nil
	case SchemeSHA256Legacy:
		want := LegacyHash(plain).Value
		return subtle.ConstantTimeCompare([]byte(want), []byte(h.Value)) == 1
	default:
		return false
	}
}

// NeedsUpgrade reports whether the hash should be rewritten with bcrypt.
func (h PasswordHash) NeedsUpgrade() bool {
	return h.Scheme != SchemeBcrypt
}

// User represents an account allowed to operate the till.
type User struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Username string       `json:"username"`
	Role     string       `json:"role"`
	Phone    string       `json:"phone"`
	Active   bool         `json:"active"`
	Created  string       `json:"created"`
	Password PasswordHash `json:"-"`
}

// Actor converts the account into the caller identity of ledger operations.
func (u User) Actor() shared.Actor {
	return shared.Actor{ID: u.ID, Username: u.Username, Name: u.Name, Role: u.Role}
}

// CreateUserInput carries a new account.
type CreateUserInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,min=4,max=72"`
	Name     string `json:"name" validate:"max=200"`
	Role     string `json:"role" validate:"omitempty,oneof=admin manager staff"`
	Phone    string `json:"phone" validate:"max=32"`
}

// LockoutError reports a username locked out after repeated failures.
type LockoutError struct {
	Username string
	Wait     time.Duration
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("auth: too many attempts for %s, retry in %s", e.Username, e.Wait.Round(time.Second))
}

// Is matches shared.ErrRateLimited.
func (e *LockoutError) Is(target error) bool {
	return target == shared.ErrRateLimited
}
