package core

import "testing"

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in  string
		out float64
	}{
		{"1500.5", 1500.5},
		{"  42", 42},
		{"12abc", 12},
		{"-3.25", -3.25},
		{".5", 0.5},
		{"1.", 1},
		{"3.5e2x", 350},
		{"2e", 2},
		{"1,5", 1},
		{"abc", 0},
		{"", 0},
		{"-", 0},
		{"-0", 0},
		{"1e400", 0},
	}
	for _, tc := range cases {
		if got := ParseNumber(tc.in); got != tc.out {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.out, got)
		}
	}
}

func TestParseCommaNumber(t *testing.T) {
	cases := []struct {
		in  string
		out float64
	}{
		{"1000", 1000},
		{"1234,56", 1234.56},
		{"1.234,56", 1.234},
		{"", 0},
		{"x", 0},
	}
	for _, tc := range cases {
		if got := ParseCommaNumber(tc.in); got != tc.out {
			t.Fatalf("%q expected %v, got %v", tc.in, tc.out, got)
		}
	}
}

func TestParseIntPrefix(t *testing.T) {
	cases := []struct {
		in string
		n  int
		ok bool
	}{
		{"2025", 2025, true},
		{" 2025.7", 2025, true},
		{"2025abc", 2025, true},
		{"Ano", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		n, ok := ParseIntPrefix(tc.in)
		if n != tc.n || ok != tc.ok {
			t.Fatalf("%q expected (%d,%v), got (%d,%v)", tc.in, tc.n, tc.ok, n, ok)
		}
	}
}
