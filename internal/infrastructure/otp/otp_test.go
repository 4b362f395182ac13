package otp

import "testing"

func TestGenerateAndVerify(t *testing.T) {
	codec := New()
	code, hash, err := codec.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(code) != codeDigits {
		t.Fatalf("code %q, want %d digits", code, codeDigits)
	}
	if hash == "" || hash == code {
		t.Fatalf("hash must not expose the code")
	}
	if !codec.Verify(hash, code) {
		t.Fatal("expected code to verify against its hash")
	}
	if codec.Verify(hash, "000000") && code != "000000" {
		t.Fatal("wrong code must not verify")
	}
}

func TestVerifyGarbageHash(t *testing.T) {
	codec := New()
	if codec.Verify("not-a-bcrypt-hash", "123456") {
		t.Fatal("garbage hash must not verify")
	}
}
