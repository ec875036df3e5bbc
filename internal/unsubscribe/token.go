// Package unsubscribe builds and verifies the signed opt-out links
// embedded in every campaign message.
package unsubscribe

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidToken = errors.New("invalid unsubscribe token")

// Signer mints and checks per-recipient unsubscribe tokens. A token is
// the base64url address plus an HMAC-SHA256 signature over it, so the
// endpoint needs no server-side state.
type Signer struct {
	key     []byte
	baseURL string
}

func NewSigner(secret, baseURL string) *Signer {
	return &Signer{
		key:     []byte(secret),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Token returns the opaque token for an address.
func (s *Signer) Token(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	encoded := base64.RawURLEncoding.EncodeToString([]byte(email))
	return encoded + "." + s.sign(email)
}

// URL returns the full unsubscribe link for an address.
func (s *Signer) URL(email string) string {
	return fmt.Sprintf("%s/unsubscribe?token=%s", s.baseURL, url.QueryEscape(s.Token(email)))
}

// Verify checks a token and returns the address it was minted for.
func (s *Signer) Verify(token string) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidToken
	}
	email := string(decoded)
	if !hmac.Equal([]byte(s.sign(email)), []byte(sig)) {
		return "", ErrInvalidToken
	}
	return email, nil
}

func (s *Signer) sign(data string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
