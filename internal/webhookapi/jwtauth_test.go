package webhookapi

import (
	"testing"
	"time"
)

func TestTokenIssuerMintAndValidateRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("a reasonably long signing secret")
	token, err := issuer.Mint("operator", 0)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "operator" {
		t.Errorf("Subject = %q, want operator", claims.Subject)
	}
}

func TestTokenIssuerRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("a reasonably long signing secret")
	token, err := issuer.Mint("operator", -time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := issuer.Validate(token); err != ErrExpiredToken {
		t.Errorf("Validate() error = %v, want ErrExpiredToken", err)
	}
}

func TestTokenIssuerRejectsWrongSecret(t *testing.T) {
	minter := NewTokenIssuer("secret-one")
	verifier := NewTokenIssuer("secret-two")

	token, _ := minter.Mint("operator", 0)
	if _, err := verifier.Validate(token); err != ErrInvalidToken {
		t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuerRejectsGarbageToken(t *testing.T) {
	issuer := NewTokenIssuer("a reasonably long signing secret")
	if _, err := issuer.Validate("not-a-jwt"); err != ErrInvalidToken {
		t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenIssuerPermanentTokenNeverExpires(t *testing.T) {
	issuer := NewTokenIssuer("a reasonably long signing secret")
	token, err := issuer.Mint("operator", 0)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.ExpiresAt != nil {
		t.Error("expected a zero-ttl token to carry no expiry claim")
	}
}
