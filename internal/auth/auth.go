// Package auth implements HMAC-signed stateless bearer tokens and the
// role-to-app-access matrix (spec §4.8). No server-side session storage
// exists; verification recomputes the HMAC and checks expiry.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TokenTTL is how long a minted token remains valid.
const TokenTTL = 6 * time.Hour

// Roles.
const (
	RoleDispatch = "Dispatch"
	RoleLead     = "Lead"
	RoleMgmt     = "Mgmt"
)

// App scopes.
const (
	AppDispatch = "dispatch"
	AppLead     = "lead"
	AppMgmt     = "mgmt"
)

// ErrInvalidToken covers malformed tokens and HMAC mismatches.
var ErrInvalidToken = errors.New("invalid token")

// ErrExpiredToken is returned by Verify for a structurally valid but
// expired token.
var ErrExpiredToken = errors.New("expired token")

// Payload is the signed content of a bearer token.
type Payload struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	ExpAt    int64  `json:"expAt"` // unix seconds
}

// Signer mints and verifies tokens with a single HMAC key.
type Signer struct {
	key []byte
}

// NewSigner returns a Signer using key for HMAC-SHA256.
func NewSigner(key []byte) *Signer {
	return &Signer{key: key}
}

// Mint issues a token of the form base64url(payload).base64url(HMAC-SHA256(payload)).
func (s *Signer) Mint(username, role string, issuedAt time.Time) (string, error) {
	payload := Payload{Username: username, Role: role, ExpAt: issuedAt.Add(TokenTTL).Unix()}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(data)
	sig := s.sign(encodedPayload)
	return encodedPayload + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

func (s *Signer) sign(encodedPayload string) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(encodedPayload))
	return mac.Sum(nil)
}

// Verify recomputes the HMAC and checks expiry, returning the decoded
// payload on success.
func (s *Signer) Verify(token string, now time.Time) (*Payload, error) {
	encodedPayload, encodedSig, found := strings.Cut(token, ".")
	if !found {
		return nil, ErrInvalidToken
	}

	gotSig, err := base64.RawURLEncoding.DecodeString(encodedSig)
	if err != nil {
		return nil, ErrInvalidToken
	}
	wantSig := s.sign(encodedPayload)
	if !hmac.Equal(gotSig, wantSig) {
		return nil, ErrInvalidToken
	}

	data, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, ErrInvalidToken
	}

	if now.Unix() > payload.ExpAt {
		return nil, ErrExpiredToken
	}
	return &payload, nil
}

// HasAccess implements the role -> app-access matrix from spec §4.8.
func HasAccess(role, app string) bool {
	switch role {
	case RoleDispatch:
		return app == AppDispatch
	case RoleLead:
		return app == AppLead
	case RoleMgmt:
		return app == AppDispatch || app == AppLead || app == AppMgmt
	default:
		return false
	}
}

// AccessList returns every app scope role has access to, in a stable order.
func AccessList(role string) []string {
	var apps []string
	for _, app := range []string{AppDispatch, AppLead, AppMgmt} {
		if HasAccess(role, app) {
			apps = append(apps, app)
		}
	}
	return apps
}

// ConstantTimeCompare compares two plaintext secrets (the login PIN) in
// constant time. Inputs are hashed to a fixed length first so the
// comparison isn't simplified to a length check; see DESIGN.md for why
// the PIN itself stays plaintext in storage.
func ConstantTimeCompare(a, b string) bool {
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}
