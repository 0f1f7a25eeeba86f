package user

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/redmonkez12/todo-api/internal/apperror"
)

const (
	argon2KeyLen = 32
	saltLen      = 16
	argon2Prefix = "$argon2id$"

	// bcrypt only reads the first 72 bytes of its input.
	bcryptMaxBytes = 72
)

var ErrPasswordTooLong = apperror.Validation(apperror.FieldError{
	Field:    "password",
	Location: "body",
	Messages: []string{`"password" length must be at most 72 bytes`},
})

// HasherOptions configures password hashing. Algorithm selects the scheme
// for new hashes; verification always follows the stored hash.
type HasherOptions struct {
	Algorithm     string // argon2id or bcrypt
	Argon2Time    uint32
	Argon2Memory  uint32 // KiB
	Argon2Threads uint8
	BcryptCost    int
	Concurrency   int64
}

// Hasher derives and verifies password hashes. Derivations are CPU bound,
// so the number running at once is bounded by a weighted semaphore.
type Hasher struct {
	opts HasherOptions
	sem  *semaphore.Weighted
}

func NewHasher(opts HasherOptions) *Hasher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Hasher{
		opts: opts,
		sem:  semaphore.NewWeighted(opts.Concurrency),
	}
}

// Hash returns an encoded hash of password. Under bcrypt, passwords longer
// than 72 bytes are rejected with ErrPasswordTooLong.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	if h.opts.Algorithm == "bcrypt" && len(password) > bcryptMaxBytes {
		return "", ErrPasswordTooLong
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	if h.opts.Algorithm == "bcrypt" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), h.opts.BcryptCost)
		if err != nil {
			return "", err
		}
		return string(hash), nil
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password),
		salt,
		h.opts.Argon2Time,
		h.opts.Argon2Memory,
		h.opts.Argon2Threads,
		argon2KeyLen,
	)

	// $argon2id$v=19$m=65536,t=3,p=4$salt$hash
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.opts.Argon2Memory,
		h.opts.Argon2Time,
		h.opts.Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify reports whether password matches encodedHash. A malformed hash
// never matches.
func (h *Hasher) Verify(ctx context.Context, encodedHash, password string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	if strings.HasPrefix(encodedHash, argon2Prefix) {
		return verifyArgon2id(encodedHash, password), nil
	}

	// Anything that is not argon2id is treated as bcrypt; an unknown format
	// fails comparison.
	if err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)); err != nil {
		return false, nil
	}
	return true, nil
}

func verifyArgon2id(encodedHash, password string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}

	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	decodedHash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(decodedHash) == 0 {
		return false
	}

	inputHash := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(decodedHash)))

	return subtle.ConstantTimeCompare(decodedHash, inputHash) == 1
}
