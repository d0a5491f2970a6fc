package gateway

import (
	"errors"
	"net/http/httptest"
	"testing"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.GatewayToken{
		{Token: "secret-123", Name: "phone"},
		{Token: "secret-456", Name: "laptop"},
	})

	info, err := auth.Authenticate("secret-456")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "laptop" {
		t.Errorf("Name = %q", info.Name)
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.GatewayToken{{Token: "secret-123", Name: "phone"}})

	_, err := auth.Authenticate("wrong-token")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, domain.ErrGatewayAuthFailed) {
		t.Errorf("err = %v, want ErrGatewayAuthFailed", err)
	}
	if _, err := auth.Authenticate(""); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestStaticTokenAuthEmpty(t *testing.T) {
	auth := NewStaticTokenAuth(nil)

	_, err := auth.Authenticate("anything")
	if err == nil {
		t.Fatal("expected error for empty token list")
	}
}

func TestNewAuthenticatorOpenWithoutTokens(t *testing.T) {
	info, err := NewAuthenticator(nil).Authenticate("")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "anonymous" {
		t.Errorf("Name = %q", info.Name)
	}

	if _, err := NewAuthenticator([]config.GatewayToken{{Token: "x"}}).Authenticate(""); err == nil {
		t.Error("expected static auth when tokens are configured")
	}
}

func TestRequestToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/switches?token=q", nil)
	if got := requestToken(r); got != "q" {
		t.Errorf("query token = %q", got)
	}
	r.Header.Set("Authorization", "Bearer h")
	if got := requestToken(r); got != "h" {
		t.Errorf("header token = %q", got)
	}
	r.Header.Set("Authorization", "Basic abc")
	if got := requestToken(r); got != "q" {
		t.Errorf("non-bearer header should fall back, got %q", got)
	}
}
