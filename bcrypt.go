package auth

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode("password_mismatch").
	WithCode(goerrors.CodeUnauthorized)

// BcryptAuthenticator hashes passwords with bcrypt at the given cost.
type BcryptAuthenticator struct {
	Cost int
}

var _ PasswordAuthenticator = BcryptAuthenticator{}

// DefaultPasswordAuthenticator uses the build's default bcrypt cost.
func DefaultPasswordAuthenticator() PasswordAuthenticator {
	return BcryptAuthenticator{Cost: passwordHashCost()}
}

func (b BcryptAuthenticator) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := b.Cost
	if cost == 0 {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

func (b BcryptAuthenticator) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return BcryptAuthenticator{}.HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// RandomPasswordHash returns the digest of a random secret made with hasher.
// Login compares against it when the email is unknown so both branches cost
// the same.
func RandomPasswordHash(hasher PasswordAuthenticator) (string, error) {
	if hasher == nil {
		hasher = DefaultPasswordAuthenticator()
	}
	return hasher.HashPassword(uuid.NewString())
}
