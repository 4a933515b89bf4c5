package domain

import (
	"errors"
	"testing"
)

func TestParseKilograms(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"2", 2000},
		{"0.75", 750},
		{"1.250", 1250},
		{".5", 500},
		{" 3.1 ", 3100},
		{"0.001", 1},
	}
	for _, tc := range cases {
		got, err := ParseKilograms(tc.in)
		if err != nil {
			t.Fatalf("ParseKilograms(%q): unexpected error %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseKilograms(%q): expected %d grams, got %d", tc.in, tc.want, got)
		}
	}
}

func TestParseKilogramsRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "0", "0.000", "-1", "-0.5", "abc", "1.2345", "1,5", "+2"} {
		if _, err := ParseKilograms(in); !errors.Is(err, ErrInvalidQuantity) {
			t.Fatalf("ParseKilograms(%q): expected ErrInvalidQuantity, got %v", in, err)
		}
	}
}

func TestFormatKilograms(t *testing.T) {
	cases := []struct {
		grams int64
		want  string
	}{
		{2000, "2"},
		{750, "0.75"},
		{1250, "1.25"},
		{1, "0.001"},
	}
	for _, tc := range cases {
		if got := FormatKilograms(tc.grams); got != tc.want {
			t.Fatalf("FormatKilograms(%d): expected %q, got %q", tc.grams, tc.want, got)
		}
	}
}
