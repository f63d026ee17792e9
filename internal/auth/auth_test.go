package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"
)

func testService(t *testing.T) *Service {
	t.Helper()
	t.Setenv("TOKEN_SIGNING_SECRET", "test-secret")
	return NewService("admin", "hunter2")
}

func TestCheckCredentials(t *testing.T) {
	s := testService(t)

	if err := s.CheckCredentials("admin", "hunter2"); err != nil {
		t.Errorf("Valid credentials rejected: %v", err)
	}
	if err := s.CheckCredentials("admin", "wrong"); err == nil {
		t.Error("Wrong password accepted")
	}
	if err := s.CheckCredentials("root", "hunter2"); err == nil {
		t.Error("Wrong username accepted")
	}
}

func TestCheckCredentials_Disabled(t *testing.T) {
	t.Setenv("TOKEN_SIGNING_SECRET", "test-secret")
	s := NewService("", "")
	if s.Enabled() {
		t.Error("Service without credentials must report disabled")
	}
	if err := s.CheckCredentials("", ""); err == nil {
		t.Error("Disabled service must reject even empty credentials")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	s := testService(t)

	token, expiresAt := s.IssueToken()
	if err := s.VerifyToken(token); err != nil {
		t.Errorf("Fresh token rejected: %v", err)
	}
	if time.Until(expiresAt) < 11*time.Hour {
		t.Errorf("Expiry too soon: %v", expiresAt)
	}

	if err := s.VerifyBearer("Bearer " + token); err != nil {
		t.Errorf("Bearer form rejected: %v", err)
	}
	if err := s.VerifyBearer(token); err == nil {
		t.Error("Missing Bearer prefix accepted")
	}
}

func TestVerifyToken_Tampered(t *testing.T) {
	s := testService(t)
	token, _ := s.IssueToken()

	// Flip the expiry to the far future, keeping the old signature.
	_, sig, _ := strings.Cut(token, ".")
	forged := "9999999999." + sig
	if err := s.VerifyToken(forged); err == nil {
		t.Error("Forged payload accepted")
	}

	if err := s.VerifyToken("garbage"); err == nil {
		t.Error("Malformed token accepted")
	}
}

func TestVerifyToken_DifferentSecret(t *testing.T) {
	t.Setenv("TOKEN_SIGNING_SECRET", "secret-one")
	first := NewService("admin", "pw")
	token, _ := first.IssueToken()

	t.Setenv("TOKEN_SIGNING_SECRET", "secret-two")
	second := NewService("admin", "pw")
	if err := second.VerifyToken(token); err == nil {
		t.Error("Token signed with another secret accepted")
	}
}

func TestDecodeBasic(t *testing.T) {
	header := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:hunter2"))
	user, pass, err := DecodeBasic(header)
	if err != nil || user != "admin" || pass != "hunter2" {
		t.Errorf("DecodeBasic = %q/%q, %v", user, pass, err)
	}

	if _, _, err := DecodeBasic("Bearer xyz"); err == nil {
		t.Error("Non-basic header accepted")
	}
	if _, _, err := DecodeBasic("Basic !!!"); err == nil {
		t.Error("Bad base64 accepted")
	}
}
