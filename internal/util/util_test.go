package util

import (
	"errors"
	"fmt"
	"testing"
)

func TestSanitizeTextRemovesNulAndControls(t *testing.T) {
	in := "ab\x00cd\x01\x02\n\txy"
	out := SanitizeText(in)
	if out != "abcd\n\txy" {
		t.Fatalf("unexpected sanitized output: %q", out)
	}
}

func TestCountWords(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"one two\tthree\nfour", 4},
		{"  padded  words  ", 2},
	}
	for _, c := range cases {
		if got := CountWords(c.in); got != c.want {
			t.Fatalf("CountWords(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestFingerprintStableAndShort(t *testing.T) {
	a := Fingerprint("secret-key")
	b := Fingerprint("secret-key")
	c := Fingerprint("other-key")
	if a != b {
		t.Fatalf("fingerprint not stable: %q vs %q", a, b)
	}
	if a == c {
		t.Fatal("different secrets must differ")
	}
	if len(a) != 16 {
		t.Fatalf("len = %d", len(a))
	}
}

func TestIsPrecondition(t *testing.T) {
	err := Precondition("topic is required")
	if !IsPrecondition(err) {
		t.Fatal("expected precondition")
	}
	if err.Error() != "topic is required" {
		t.Fatalf("message = %q", err.Error())
	}
	wrapped := fmt.Errorf("generate: %w", err)
	if !IsPrecondition(wrapped) {
		t.Fatal("wrapped precondition not detected")
	}
	if IsPrecondition(errors.New("plain")) {
		t.Fatal("plain error misclassified")
	}
}
