package subwire

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// legacyPasswordPrefix marks a reversibly encoded password on the wire.
const legacyPasswordPrefix = "enc:"

// saltBytes is the entropy drawn for each salted-digest request.
const saltBytes = 16

// Credentials identify the user against the server. The password is only ever
// sent in encoded form and is never logged.
type Credentials struct {
	Username string
	Password string
}

// String hides the password so credentials can be passed to loggers safely.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: <redacted>}", c.Username)
}

// EncodeReversible returns the lowercase hex encoding of secret's bytes. It is
// not a security boundary; older servers expect it prefixed with "enc:".
func EncodeReversible(secret string) string {
	return hex.EncodeToString([]byte(secret))
}

// DecodeReversible inverts EncodeReversible. The "enc:" prefix is optional.
func DecodeReversible(encoded string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(encoded, legacyPasswordPrefix))
	if err != nil {
		return "", fmt.Errorf("decode reversible credential: %w", err)
	}
	return string(raw), nil
}

// SaltedDigest returns hex(md5(secret + salt)) with no separator between the two.
func SaltedDigest(secret, salt string) string {
	sum := md5.Sum([]byte(secret + salt))
	return hex.EncodeToString(sum[:])
}

// NewSalt returns a fresh hex salt carrying 16 bytes of entropy.
func NewSalt() (string, error) {
	b := make([]byte, saltBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}
