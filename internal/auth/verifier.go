package auth

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

var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer credential to a user identity. The portal's
// account system is the real issuer; this package only needs the
// token-to-identity half of it.
type Verifier interface {
	Verify(token string) (string, error)
}

// HMACVerifier validates self-contained tokens of the form
// "userID.expiryUnix.signature" signed with a shared secret.
type HMACVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{
		secret: []byte(secret),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue mints a token for userID valid for ttl. Used by tests and the
// portal's login flow.
func (v *HMACVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.Contains(userID, ".") {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	expiry := v.now().Add(ttl).Unix()
	payload := fmt.Sprintf("%s.%d", userID, expiry)
	return payload + "." + v.sign(payload), nil
}

func (v *HMACVerifier) Verify(token string) (string, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}
	userID, rawExpiry, sig := parts[0], parts[1], parts[2]
	if userID == "" {
		return "", ErrInvalidToken
	}

	payload := userID + "." + rawExpiry
	if !hmac.Equal([]byte(v.sign(payload)), []byte(sig)) {
		return "", ErrInvalidToken
	}

	expiry, err := strconv.ParseInt(rawExpiry, 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if v.now().Unix() > expiry {
		return "", fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	return userID, nil
}

func (v *HMACVerifier) sign(payload string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
