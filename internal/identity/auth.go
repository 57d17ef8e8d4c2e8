package identity

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcSaltLen = 16

// UserAuth hashes and verifies passwords with Argon2id. Hashes are
// stored in PHC form ($argon2id$v=19$m=...,t=...,p=...$salt$hash) with
// the parameters embedded, so verification works across parameter
// changes and the two constructors below.
type UserAuth struct {
	time    uint32
	memory  uint32
	threads uint8
	keyLen  uint32
}

// NewUserAuth uses the OWASP-recommended Argon2id cost settings.
func NewUserAuth() *UserAuth {
	return &UserAuth{
		time:    3,
		memory:  64 * 1024,
		threads: 4,
		keyLen:  32,
	}
}

// NewUserAuthFast trades hash strength for speed. Tests only.
func NewUserAuthFast() *UserAuth {
	return &UserAuth{
		time:    1,
		memory:  16 * 1024,
		threads: 2,
		keyLen:  32,
	}
}

// HashPassword hashes a password with a fresh random salt.
func (a *UserAuth) HashPassword(password string) (string, error) {
	salt := make([]byte, phcSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt, a.time, a.memory, a.threads, a.keyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, a.memory, a.time, a.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyPassword checks a password against a stored PHC hash. Malformed
// hashes and mismatches both come back as ErrInvalidPassword; callers
// cannot tell a corrupt row from a wrong password, which is the point.
func (a *UserAuth) VerifyPassword(encodedHash, password string) error {
	salt, want, memory, time, threads, err := parsePHC(encodedHash)
	if err != nil {
		return ErrInvalidPassword
	}

	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return ErrInvalidPassword
	}
	return nil
}

func parsePHC(encoded string) (salt, hash []byte, memory, time uint32, threads uint8, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, fmt.Errorf("malformed hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, nil, 0, 0, 0, err
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	return salt, hash, memory, time, threads, nil
}

// Authenticate resolves a username and checks the password. The error
// distinguishes unknown user from bad password; the HTTP layer collapses
// both into one response.
func (a *UserAuth) Authenticate(ctx context.Context, repo PartyRepo, username, password string) (*User, error) {
	user, err := repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := a.VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, err
	}
	return user, nil
}
