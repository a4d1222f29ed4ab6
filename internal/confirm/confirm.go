// Package confirm issues and verifies stateless signup confirmation codes.
//
// A code is an HMAC over the account's mutable state and the issue
// timestamp, so nothing is persisted: any change to the account, or the
// passage of the validity window, invalidates every outstanding code.
package confirm

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/reviewdb/apiserver/types"
	"golang.org/x/crypto/hkdf"
)

// ErrInvalidCode means the code is malformed or was not issued for the
// account's current state.
var ErrInvalidCode = errors.New("invalid confirmation code")

// ErrExpiredCode means the code was genuine but its validity window has
// passed. Callers surface it to clients identically to ErrInvalidCode;
// the distinction exists for logs.
var ErrExpiredCode = errors.New("expired confirmation code")

const (
	keySize = 32
	macSize = 12

	// maxClockSkew tolerates codes stamped slightly ahead of this
	// server's clock.
	maxClockSkew = time.Minute
)

// Codec derives and checks confirmation codes for a fixed secret and TTL.
type Codec struct {
	key []byte
	ttl time.Duration
}

// New builds a Codec. The MAC key is expanded from the server secret so
// the secret itself is never used directly as key material.
func New(secret string, ttl time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("confirm: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("confirm: ttl must be positive")
	}

	key := make([]byte, keySize)
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("signup-confirmation-code"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}

	return &Codec{key: key, ttl: ttl}, nil
}

// Issue returns a code bound to the user's current state and to now.
func (c *Codec) Issue(user types.User, now time.Time) string {
	stamp := now.Unix()
	return strconv.FormatInt(stamp, 36) + "-" + c.mac(user, stamp)
}

// Verify checks a code against the user's current state.
func (c *Codec) Verify(user types.User, code string, now time.Time) error {
	rawStamp, rawMAC, ok := strings.Cut(code, "-")
	if !ok {
		return ErrInvalidCode
	}
	stamp, err := strconv.ParseInt(rawStamp, 36, 64)
	if err != nil {
		return ErrInvalidCode
	}

	want := c.mac(user, stamp)
	if !hmac.Equal([]byte(rawMAC), []byte(want)) {
		return ErrInvalidCode
	}

	issued := time.Unix(stamp, 0)
	if issued.After(now.Add(maxClockSkew)) {
		return ErrInvalidCode
	}
	if now.Sub(issued) > c.ttl {
		return ErrExpiredCode
	}
	return nil
}

// mac computes the truncated hex MAC over the state fingerprint and stamp.
func (c *Codec) mac(user types.User, stamp int64) string {
	mac := hmac.New(sha256.New, c.key)
	writeField(mac, strconv.Itoa(user.ID))
	writeField(mac, user.Username)
	writeField(mac, user.Email)
	writeField(mac, string(user.Role))
	writeField(mac, strconv.FormatBool(user.IsStaff))
	writeField(mac, strconv.FormatBool(user.IsSuperuser))
	writeField(mac, user.FirstName)
	writeField(mac, user.LastName)
	writeField(mac, user.Bio)
	writeField(mac, strconv.FormatInt(stamp, 10))
	return hex.EncodeToString(mac.Sum(nil)[:macSize])
}

func writeField(w io.Writer, field string) {
	io.WriteString(w, field)
	w.Write([]byte{0})
}
