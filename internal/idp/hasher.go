// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package idp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// HashParams are the argon2id cost parameters.
type HashParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	SaltLen int
	KeyLen  uint32
}

// DefaultHashParams follows the OWASP argon2id recommendation.
func DefaultHashParams() HashParams {
	return HashParams{Time: 1, Memory: 64 * 1024, Threads: 4, SaltLen: 16, KeyLen: 32}
}

// Hasher stores passwords as PHC-formatted argon2id strings:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
type Hasher struct {
	params HashParams
}

// NewHasher creates a Hasher with the given parameters.
func NewHasher(params HashParams) *Hasher {
	return &Hasher{params: params}
}

// Hash encodes password with a fresh random salt.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", oops.Code("IDP_EMPTY_PASSWORD").Errorf("password cannot be empty")
	}
	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("IDP_SALT_FAILED").Wrap(err)
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. The parameters stored in
// encoded are used, not the Hasher's own, so hashes survive a cost change.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, oops.Code("IDP_INVALID_HASH").Errorf("not an argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("IDP_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("IDP_INVALID_HASH").With("version", version).Errorf("unsupported argon2 version")
	}

	var memory, t, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &t, &threads); err != nil {
		return false, oops.Code("IDP_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("IDP_INVALID_HASH").Errorf("threads value %d out of range", threads)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("IDP_INVALID_HASH").Wrap(err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("IDP_INVALID_HASH").Wrap(err)
	}
	if len(want) == 0 || len(want) > 1<<10 {
		return false, oops.Code("IDP_INVALID_HASH").Errorf("invalid key length: %d", len(want))
	}

	got := argon2.IDKey([]byte(password), salt, t, memory, uint8(threads), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// NeedsRehash reports whether encoded was produced with different
// parameters than the Hasher's current ones.
func (h *Hasher) NeedsRehash(encoded string) bool {
	prefix := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$",
		argon2.Version, h.params.Memory, h.params.Time, h.params.Threads)
	return !strings.HasPrefix(encoded, prefix)
}
