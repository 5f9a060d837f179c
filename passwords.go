package platform

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// bcryptCost matches the original platform's work factor.
const bcryptCost = 12

// tempPasswordLength is the fixed length of generated temporary passwords.
const tempPasswordLength = 12

// tempPasswordAlphabet omits visually ambiguous characters (0/O, 1/l/I) so a
// password read from an email or over the phone cannot be mistyped.
const tempPasswordAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

// passwordSymbols is the punctuation set accepted by the strength check.
const passwordSymbols = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

// HashPassword generates a bcrypt hash safe to persist.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", goerrors.New("password must not be empty", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

// ComparePasswordAndHash validates the given cleartext password against the
// stored hash. The comparison is constant-time via bcrypt.
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// GenerateTemporaryPassword produces a 12-character one-time secret from the
// unambiguous alphabet using crypto/rand. The plaintext exists only in the
// return value; callers must deliver it immediately or surface it through
// the operator log, since it cannot be re-derived.
func GenerateTemporaryPassword() string {
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	var b strings.Builder
	b.Grow(tempPasswordLength)
	for i := 0; i < tempPasswordLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; a secret from a degraded source must never be issued.
			panic("platform: entropy source unavailable: " + err.Error())
		}
		b.WriteByte(tempPasswordAlphabet[n.Int64()])
	}
	return b.String()
}

// PasswordStrength is the accumulated result of a strength validation. All
// unmet criteria are reported at once so a form can show the full list.
type PasswordStrength struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// ValidatePasswordStrength checks the platform password rules: at least 12
// characters with an uppercase letter, a lowercase letter, a digit, and a
// symbol.
func ValidatePasswordStrength(password string) PasswordStrength {
	var errs []string

	if len(password) < 12 {
		errs = append(errs, "Password must contain at least 12 characters")
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSymbols, r):
			symbol = true
		}
	}

	if !upper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !lower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !digit {
		errs = append(errs, "Password must contain at least one number")
	}
	if !symbol {
		errs = append(errs, "Password must contain at least one symbol (!@#$%^&*...)")
	}

	return PasswordStrength{
		IsValid: len(errs) == 0,
		Errors:  errs,
	}
}
