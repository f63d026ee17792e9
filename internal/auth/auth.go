// Package auth issues and verifies the admin bearer tokens. Tokens
// are HMAC-SHA256 over an expiry timestamp with a shared signing
// secret, so verification needs no storage and survives restarts as
// long as the secret is stable.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/smazurov/audionode/internal/logging"
)

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 12 * time.Hour

var (
	ErrBadCredentials = errors.New("invalid username or password")
	ErrBadToken       = errors.New("invalid or expired token")
)

// Service verifies admin credentials and signs bearer tokens.
type Service struct {
	username string
	password string
	secret   []byte
}

// NewService builds the auth service from the admin credentials and
// TOKEN_SIGNING_SECRET. An empty secret gets a random fallback: tokens
// then die with the process, which is loudly logged rather than
// silently accepted.
func NewService(username, password string) *Service {
	secret := []byte(os.Getenv("TOKEN_SIGNING_SECRET"))
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("auth: cannot generate fallback secret: %v", err))
		}
		logging.GetLogger("auth").Warn(
			"TOKEN_SIGNING_SECRET not set; using a random secret, tokens will not survive restart")
	}
	return &Service{username: username, password: password, secret: secret}
}

// Enabled reports whether credentials are configured at all. With no
// admin password the token endpoint is disabled.
func (s *Service) Enabled() bool {
	return s.username != "" && s.password != ""
}

// CheckCredentials verifies a username/password pair in constant time.
func (s *Service) CheckCredentials(username, password string) error {
	if !s.Enabled() {
		return ErrBadCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userOK || !passOK {
		return ErrBadCredentials
	}
	return nil
}

// IssueToken signs a bearer token valid for TokenTTL.
func (s *Service) IssueToken() (token string, expiresAt time.Time) {
	expiresAt = time.Now().Add(TokenTTL).UTC()
	payload := strconv.FormatInt(expiresAt.Unix(), 10)
	return payload + "." + s.sign(payload), expiresAt
}

// VerifyToken checks a token's signature and expiry.
func (s *Service) VerifyToken(token string) error {
	payload, sig, ok := strings.Cut(token, ".")
	if !ok {
		return ErrBadToken
	}
	if subtle.ConstantTimeCompare([]byte(sig), []byte(s.sign(payload))) != 1 {
		return ErrBadToken
	}
	exp, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || time.Now().Unix() >= exp {
		return ErrBadToken
	}
	return nil
}

// VerifyBearer extracts and checks a token from an Authorization
// header value.
func (s *Service) VerifyBearer(header string) error {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ErrBadToken
	}
	return s.VerifyToken(token)
}

func (s *Service) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// DecodeBasic parses a Basic authorization header into its
// credentials.
func DecodeBasic(header string) (username, password string, err error) {
	encoded, ok := strings.CutPrefix(header, "Basic ")
	if !ok {
		return "", "", ErrBadCredentials
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", ErrBadCredentials
	}
	username, password, ok = strings.Cut(string(raw), ":")
	if !ok {
		return "", "", ErrBadCredentials
	}
	return username, password, nil
}
