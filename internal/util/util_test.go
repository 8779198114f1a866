package util

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptAES(t *testing.T) {
	key, err := HKDF([]byte("test secret"), nil, []byte("test"))
	if err != nil {
		t.Fatalf("HKDF failed: %v", err)
	}

	t.Run("RoundTrip", func(t *testing.T) {
		plain := []byte("hello world")
		aad := []byte("record:session")
		sealed, err := EncryptAES(plain, key, aad)
		if err != nil {
			t.Fatalf("EncryptAES failed: %v", err)
		}
		opened, err := DecryptAES(sealed, key, aad)
		if err != nil {
			t.Fatalf("DecryptAES failed: %v", err)
		}
		if !bytes.Equal(plain, opened) {
			t.Error("decrypted text does not match plaintext")
		}
	})

	t.Run("WrongAAD", func(t *testing.T) {
		sealed, err := EncryptAES([]byte("payload"), key, []byte("record:cart"))
		if err != nil {
			t.Fatalf("EncryptAES failed: %v", err)
		}
		if _, err := DecryptAES(sealed, key, []byte("record:session")); err == nil {
			t.Error("expected decryption failure with mismatched AAD")
		}
	})

	t.Run("BadKeySize", func(t *testing.T) {
		if _, err := EncryptAES([]byte("x"), []byte("short"), nil); err == nil {
			t.Error("expected error for short key")
		}
	})

	t.Run("TruncatedCiphertext", func(t *testing.T) {
		if _, err := DecryptAES([]byte{1, 2, 3}, key, nil); err == nil {
			t.Error("expected error for truncated ciphertext")
		}
	})
}

func TestNormalize(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	if Normalize(composed) != Normalize(decomposed) {
		t.Error("expected NFKD to unify composed and decomposed forms")
	}
}

func TestHKDFDistinctInfo(t *testing.T) {
	seed := []byte("configured secret")
	a, err := HKDF(seed, nil, []byte("cipher"))
	if err != nil {
		t.Fatalf("HKDF failed: %v", err)
	}
	b, err := HKDF(seed, nil, []byte("checksum"))
	if err != nil {
		t.Fatalf("HKDF failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("expected distinct keys for distinct info strings")
	}
	if len(a) != HKDFKeyLength {
		t.Errorf("got key length %d, want %d", len(a), HKDFKeyLength)
	}
}
