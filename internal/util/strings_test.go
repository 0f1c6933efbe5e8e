package util

import "testing"

func TestDefaultString(t *testing.T) {
	if got := DefaultString("hello", "fallback"); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if got := DefaultString("  ", "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestEmptyDash(t *testing.T) {
	if got := EmptyDash(""); got != "-" {
		t.Fatalf("got %q", got)
	}
	if got := EmptyDash("deploy"); got != "deploy" {
		t.Fatalf("got %q", got)
	}
}

func TestValidatePort(t *testing.T) {
	if err := ValidatePort(22); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidatePort(0); err == nil {
		t.Fatal("expected error for port 0")
	}
	if err := ValidatePort(70000); err == nil {
		t.Fatal("expected error for port 70000")
	}
}
