package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Session token errors.
var (
	ErrTokenMalformed = errors.New("crypto/session: malformed token")
	ErrTokenExpired   = errors.New("crypto/session: token expired")
	ErrTokenInvalid   = errors.New("crypto/session: signature mismatch")
)

// SessionAuth mints and verifies resume tokens. A token binds an address to
// an expiry with an HMAC-SHA256 tag, so a client that drops its socket can
// prove identity on reconnect without repeating the full handshake.
type SessionAuth struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionAuth creates a SessionAuth with the given signing secret and
// token lifetime.
func NewSessionAuth(secret string, ttl time.Duration) (*SessionAuth, error) {
	if secret == "" {
		return nil, errors.New("crypto/session: secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("crypto/session: ttl must be positive")
	}
	return &SessionAuth{secret: []byte(secret), ttl: ttl}, nil
}

// Issue returns a resume token for address valid for the configured lifetime.
// Token layout: address.expiryUnix.base64url(hmac).
func (a *SessionAuth) Issue(address string) string {
	return a.IssueAt(address, time.Now())
}

// IssueAt is like Issue but lets the caller supply the issue time (useful for
// deterministic testing).
func (a *SessionAuth) IssueAt(address string, now time.Time) string {
	exp := strconv.FormatInt(now.Add(a.ttl).Unix(), 10)
	sig := hmacSHA256URL(a.secret, address+"."+exp)
	return address + "." + exp + "." + sig
}

// Verify checks a token and returns the address it was issued for.
func (a *SessionAuth) Verify(token string) (string, error) {
	return a.VerifyAt(token, time.Now())
}

// VerifyAt is like Verify but lets the caller supply the current time.
func (a *SessionAuth) VerifyAt(token string, now time.Time) (string, error) {
	// Addresses never contain dots, so the last two segments are always the
	// expiry and the tag.
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", ErrTokenMalformed
	}
	address, expStr, sig := parts[0], parts[1], parts[2]

	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad expiry", ErrTokenMalformed)
	}

	want := hmacSHA256URL(a.secret, address+"."+expStr)
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return "", ErrTokenInvalid
	}
	if now.Unix() > exp {
		return "", ErrTokenExpired
	}
	return address, nil
}

// hmacSHA256URL computes HMAC-SHA256 of message using key and returns the
// result as an unpadded base64url string.
func hmacSHA256URL(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
