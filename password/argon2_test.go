package password

import (
	"strings"
	"testing"
)

func testHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
	})
	if err != nil {
		t.Fatalf("new hasher: %v", err)
	}
	return h
}

func TestHashDeterministicForFixedSalt(t *testing.T) {
	h := testHasher(t)

	salt, err := h.NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	if !strings.HasPrefix(salt, "$argon2id$") {
		t.Fatalf("salt must embed the algorithm identifier, got %q", salt)
	}

	d1, err := h.Hash(salt, "longenough1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	d2, err := h.Hash(salt, "longenough1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if d1 != d2 {
		t.Fatal("digest must be deterministic for a fixed salt")
	}

	d3, err := h.Hash(salt, "different-password")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if d3 == d1 {
		t.Fatal("different plaintexts must not collide")
	}
}

func TestFreshSaltsProduceDifferentDigests(t *testing.T) {
	h := testHasher(t)

	s1, err := h.NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	s2, err := h.NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	if s1 == s2 {
		t.Fatal("salts must be random")
	}

	d1, err := h.Hash(s1, "longenough1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	d2, err := h.Hash(s2, "longenough1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if d1 == d2 {
		t.Fatal("same plaintext under different salts must not collide")
	}
}

func TestVerify(t *testing.T) {
	h := testHasher(t)

	salt, err := h.NewSalt()
	if err != nil {
		t.Fatalf("new salt: %v", err)
	}
	digest, err := h.Hash(salt, "longenough1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ok, err := h.Verify(salt, "longenough1", digest)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("correct password must verify")
	}

	ok, err = h.Verify(salt, "wrong-password", digest)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("wrong password must not verify")
	}
}

func TestHashRejectsMalformedSalt(t *testing.T) {
	h := testHasher(t)

	for _, salt := range []string{
		"",
		"no-dollar-signs",
		"$md5$v=19$m=8192,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA",
		"$argon2id$v=18$m=8192,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA",
		"$argon2id$v=19$m=1,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA",
		"$argon2id$v=19$m=8192,t=1,p=1$!!!",
	} {
		if _, err := h.Hash(salt, "longenough1"); err == nil {
			t.Errorf("expected error for salt %q", salt)
		}
	}
}

func TestNewHasherValidation(t *testing.T) {
	if _, err := NewHasher(Config{Memory: 1, Time: 1, Parallelism: 1, SaltLength: 16}); err == nil {
		t.Fatal("expected error for tiny memory")
	}
	if _, err := NewHasher(Config{Memory: 8 * 1024, Time: 0, Parallelism: 1, SaltLength: 16}); err == nil {
		t.Fatal("expected error for zero time")
	}
	if _, err := NewHasher(Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 4}); err == nil {
		t.Fatal("expected error for short salt")
	}
}
