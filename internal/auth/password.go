package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor for hashes made by hash-password.
// Verification reads the cost from the stored hash, so raising it later
// does not invalidate existing hashes.
const defaultCost = 12

var (
	// ErrInvalidPassword means the password did not match the stored hash.
	ErrInvalidPassword = errors.New("auth: invalid password")
	// ErrInvalidCredentials means the username, the password or both were wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// PasswordService hashes and checks the moderator password. The hash is
// produced once with the hash-password command and stored in config as
// ADMIN_PASSWORD_HASH.
type PasswordService struct {
	cost int
}

func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceWithCost is for tests; bcrypt.MinCost keeps them fast.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

func (p *PasswordService) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", errors.New("auth: admin password must not be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", errors.New("auth: admin password must be 72 bytes or fewer")
	}
	if err != nil {
		return "", fmt.Errorf("auth: hashing admin password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports ErrInvalidPassword on a mismatch. A hash that bcrypt cannot
// parse is a configuration problem and comes back as a different error.
func (p *PasswordService) Verify(hash, plaintext string) error {
	switch err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)); {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrInvalidPassword
	default:
		return fmt.Errorf("auth: reading admin password hash: %w", err)
	}
}

// VerifyLogin checks a moderator login against the configured username and
// hash. The password is always compared, even when the username is wrong,
// so both failure paths cost one bcrypt round.
func (p *PasswordService) VerifyLogin(wantUsername, hash, username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(wantUsername)) == 1
	err := p.Verify(hash, password)
	if err != nil && !errors.Is(err, ErrInvalidPassword) {
		return err
	}
	if !userOK || err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
