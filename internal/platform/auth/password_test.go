package auth

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "s3cret!" {
		t.Fatal("hash must not equal the plain password")
	}
	if !CheckPassword(hash, "s3cret!") {
		t.Error("expected matching password to check")
	}
	if CheckPassword(hash, "wrong") {
		t.Error("expected wrong password to fail")
	}
	if CheckPassword("not-a-hash", "s3cret!") {
		t.Error("expected malformed hash to fail")
	}
}

func TestValidateEmail(t *testing.T) {
	for _, ok := range []string{"a@b.co", "lab.one@clinic.example"} {
		if err := ValidateEmail(ok); err != nil {
			t.Errorf("ValidateEmail(%q) = %v", ok, err)
		}
	}
	for _, bad := range []string{"", "plain", "a@b", "Name <a@b.co>", "@b.co"} {
		if err := ValidateEmail(bad); err == nil {
			t.Errorf("ValidateEmail(%q) expected error", bad)
		}
	}
}

func TestValidateNewPassword(t *testing.T) {
	if err := ValidateNewPassword("12345", "12345", true); err == nil {
		t.Error("expected short password to fail")
	}
	if err := ValidateNewPassword("123456", "654321", true); err == nil {
		t.Error("expected mismatch to fail")
	}
	if err := ValidateNewPassword("123456", "", false); err != nil {
		t.Errorf("unexpected error without confirmation: %v", err)
	}
	if err := ValidateNewPassword("123456", "123456", true); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  Jane@Example.COM "); got != "jane@example.com" {
		t.Errorf("NormalizeEmail = %q", got)
	}
}
