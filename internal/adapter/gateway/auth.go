package gateway

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"wiiblue/internal/domain"
)

// ClientInfo holds metadata about an authenticated gateway client.
type ClientInfo struct {
	Name string
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// TokenEntry is one credential accepted by StaticTokenAuth. Exactly one of
// Token (plaintext) or Argon2Hash (output of HashToken) is set.
type TokenEntry struct {
	Name       string
	Token      string
	Argon2Hash string
}

type authEntry struct {
	token []byte // plaintext token, nil when hashed
	hash  string // encoded argon2id hash, "" when plaintext
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison to prevent timing attacks.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from a set of token entries.
func NewStaticTokenAuth(entries []TokenEntry) *StaticTokenAuth {
	a := &StaticTokenAuth{
		entries: make([]authEntry, len(entries)),
	}
	for i, e := range entries {
		a.entries[i] = authEntry{
			hash: e.Argon2Hash,
			info: &ClientInfo{Name: e.Name},
		}
		if e.Token != "" {
			a.entries[i].token = []byte(e.Token)
		}
	}
	return a
}

// Authenticate returns client info if the token is valid.
// Uses constant-time comparison to prevent timing attacks.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if e.token != nil {
			if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
				return e.info, nil
			}
			continue
		}
		if verifyToken(token, e.hash) {
			return e.info, nil
		}
	}
	return nil, domain.ErrAuthInvalid
}

// NoAuth accepts every connection. Used when no tokens are configured and
// the gateway listens on loopback only.
type NoAuth struct{}

func (NoAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}

// argon2id parameters, fixed so hashes stay verifiable across releases.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// HashToken derives a salted argon2id hash suitable for the Argon2Hash
// field of a TokenEntry.
func HashToken(token string) (string, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("argon2id$%s$%s",
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func verifyToken(token, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != "argon2id" {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(token), salt, argonTime, argonMemory, argonThreads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
