package common

import (
	"strconv"
	"testing"
)

// ---------- MakeRandNumericCode ----------

func TestMakeRandNumericCode_LengthAndRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		s, err := MakeRandNumericCode(4)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(s) != 4 {
			t.Fatalf("expected 4 digits, got %q", s)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			t.Fatalf("code is not numeric: %q", s)
		}
		if n < 1000 || n > 9999 {
			t.Fatalf("code out of range: %d", n)
		}
	}
}

func TestMakeRandNumericCode_SingleDigit(t *testing.T) {
	s, err := MakeRandNumericCode(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s) != 1 {
		t.Fatalf("expected 1 digit, got %q", s)
	}
}

func TestMakeRandNumericCode_InvalidLength(t *testing.T) {
	if _, err := MakeRandNumericCode(0); err == nil {
		t.Fatalf("expected error for digits=0")
	}
}

func TestMakeRandNumericCode_EntropyHint(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		s, err := MakeRandNumericCode(4)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[s] = true
	}
	if len(seen) == 1 {
		t.Logf("warning: 50 generated codes are all identical; extremely unlikely")
	}
}
