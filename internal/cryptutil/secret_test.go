package cryptutil

import "testing"

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := NewBox([]byte("a reasonably long master secret"), "profile-a")
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := box.Seal("super-secret-anilist-token")
	if err != nil {
		t.Fatal(err)
	}
	if sealed == "super-secret-anilist-token" {
		t.Error("expected ciphertext to differ from plaintext")
	}

	plain, err := box.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "super-secret-anilist-token" {
		t.Errorf("Open() = %q, want original plaintext", plain)
	}
}

func TestNewBoxRejectsEmptySecret(t *testing.T) {
	if _, err := NewBox(nil, "salt"); err == nil {
		t.Error("expected error for empty master secret")
	}
}

func TestDifferentSaltsProduceDifferentCiphertext(t *testing.T) {
	secret := []byte("a reasonably long master secret")
	boxA, _ := NewBox(secret, "profile-a")
	boxB, _ := NewBox(secret, "profile-b")

	sealedA, _ := boxA.Seal("token")
	sealedB, _ := boxB.Seal("token")
	if sealedA == sealedB {
		t.Error("expected different salts to derive different keys")
	}

	if _, err := boxB.Open(sealedA); err == nil {
		t.Error("expected boxB to fail decrypting boxA's ciphertext")
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	box, _ := NewBox([]byte("a reasonably long master secret"), "salt")
	sealed, _ := box.Seal("token")

	tampered := []byte(sealed)
	tampered[len(tampered)-1] ^= 0xFF
	if _, err := box.Open(string(tampered)); err == nil {
		t.Error("expected tampered ciphertext to fail authentication")
	}
}

func TestOpenRejectsGarbage(t *testing.T) {
	box, _ := NewBox([]byte("a reasonably long master secret"), "salt")
	if _, err := box.Open("not-valid-base64!!"); err == nil {
		t.Error("expected error for non-base64 input")
	}
	if _, err := box.Open(""); err == nil {
		t.Error("expected error for too-short ciphertext")
	}
}
