package auth

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestIssueAndVerify(t *testing.T) {
	a := New("test-secret")

	token, err := a.IssueAdminToken("ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueAdminToken: %v", err)
	}

	claims, err := a.VerifyAdmin(token)
	if err != nil {
		t.Fatalf("VerifyAdmin: %v", err)
	}
	if claims.Subject != "ops@example.com" || claims.Role != "admin" {
		t.Errorf("claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := New("secret-a").IssueAdminToken("ops", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New("secret-b").VerifyAdmin(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyAdmin = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	a := New("test-secret")
	token, err := a.IssueAdminToken("ops", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.VerifyAdmin(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("VerifyAdmin(expired) = %v, want ErrInvalidToken", err)
	}
}

func TestVerifyRejectsNonAdminRole(t *testing.T) {
	a := New("test-secret")
	claims := Claims{
		Role: "viewer",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.VerifyAdmin(token); !errors.Is(err, ErrForbidden) {
		t.Errorf("VerifyAdmin(viewer) = %v, want ErrForbidden", err)
	}
}

func TestFromRequest(t *testing.T) {
	a := New("test-secret")
	token, err := a.IssueAdminToken("ops", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	r := httptest.NewRequest("GET", "/admin", nil)
	if _, err := a.FromRequest(r); !errors.Is(err, ErrNoToken) {
		t.Errorf("FromRequest(no header) = %v, want ErrNoToken", err)
	}

	r.Header.Set("Authorization", token)
	if _, err := a.FromRequest(r); !errors.Is(err, ErrNoToken) {
		t.Errorf("FromRequest(no Bearer prefix) = %v, want ErrNoToken", err)
	}

	r.Header.Set("Authorization", "Bearer "+token)
	if _, err := a.FromRequest(r); err != nil {
		t.Errorf("FromRequest: %v", err)
	}
}
