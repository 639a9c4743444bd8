package money

import (
	"math/big"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"", 0, true},
		{"0", 0, true},
		{"1", 1000000, true},
		{"1.5", 1500000, true},
		{"1.500000", 1500000, true},
		{"0.000001", 1, true},
		{"100.123456", 100123456, true},
		{"100.1234567", 0, false}, // excess precision
		{"1.0000009", 0, false},
		{"-1", 0, false},
		{"1.2.3", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Parse(tt.in)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got.Int64() != tt.want {
				t.Errorf("Parse(%q) = %d, want %d", tt.in, got.Int64(), tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.000000"},
		{1, "0.000001"},
		{1500000, "1.500000"},
		{100000000, "100.000000"},
	}

	for _, tt := range tests {
		if got := Format(big.NewInt(tt.in)); got != tt.want {
			t.Errorf("Format(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := Format(nil); got != "0.000000" {
		t.Errorf("Format(nil) = %q", got)
	}
}

func TestAdd(t *testing.T) {
	got, ok := Add("100", "0.5")
	if !ok || got != "100.500000" {
		t.Errorf("Add = %q, %v", got, ok)
	}

	// Empty balance counts as zero.
	got, ok = Add("", "75")
	if !ok || !Equal(got, "75") {
		t.Errorf("Add with empty = %q, %v", got, ok)
	}

	if _, ok := Add("abc", "1"); ok {
		t.Error("Add accepted garbage")
	}
}

func TestIsPositive(t *testing.T) {
	for _, s := range []string{"1", "0.000001", "100.5"} {
		if !IsPositive(s) {
			t.Errorf("IsPositive(%q) = false", s)
		}
	}
	for _, s := range []string{"", "0", "0.000000", "-1", "x"} {
		if IsPositive(s) {
			t.Errorf("IsPositive(%q) = true", s)
		}
	}
}

func TestEqual(t *testing.T) {
	if !Equal("100", "100.000000") {
		t.Error("trailing zeros must not matter")
	}
	if !Equal("300", "300.0") {
		t.Error("fractional zero must not matter")
	}
	if Equal("100", "100.000001") {
		t.Error("different amounts compared equal")
	}
	if Equal("x", "x") {
		t.Error("garbage compared equal")
	}
}
