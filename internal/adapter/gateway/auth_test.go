package gateway

import (
	"errors"
	"testing"

	"wiiblue/internal/domain"
)

func TestStaticTokenAuth(t *testing.T) {
	auth := NewStaticTokenAuth([]TokenEntry{
		{Token: "secret-a", Name: "dashboard"},
		{Token: "secret-b", Name: "cli"},
	})

	info, err := auth.Authenticate("secret-b")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "cli" {
		t.Errorf("Name = %q, want cli", info.Name)
	}

	if _, err := auth.Authenticate("wrong"); !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("err = %v, want ErrAuthInvalid", err)
	}
	if _, err := auth.Authenticate(""); !errors.Is(err, domain.ErrAuthInvalid) {
		t.Errorf("empty token err = %v, want ErrAuthInvalid", err)
	}
}

func TestHashedTokenRoundTrip(t *testing.T) {
	hash, err := HashToken("hunter2")
	if err != nil {
		t.Fatalf("HashToken: %v", err)
	}

	auth := NewStaticTokenAuth([]TokenEntry{
		{Argon2Hash: hash, Name: "hashed"},
	})

	info, err := auth.Authenticate("hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "hashed" {
		t.Errorf("Name = %q", info.Name)
	}

	if _, err := auth.Authenticate("hunter3"); err == nil {
		t.Error("expected rejection for wrong token")
	}
}

func TestHashTokenSalted(t *testing.T) {
	a, err := HashToken("same")
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashToken("same")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two hashes of the same token share a salt")
	}
}

func TestVerifyTokenMalformedHash(t *testing.T) {
	for _, encoded := range []string{"", "argon2id", "bcrypt$a$b", "argon2id$!!$!!"} {
		if verifyToken("x", encoded) {
			t.Errorf("verifyToken accepted malformed hash %q", encoded)
		}
	}
}

func TestNoAuth(t *testing.T) {
	info, err := NoAuth{}.Authenticate("")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "anonymous" {
		t.Errorf("Name = %q", info.Name)
	}
}
