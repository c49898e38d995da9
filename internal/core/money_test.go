package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"2600", 260000, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"1.२", 0, false},
		{"2600.५०", 0, false},
		{"२६००", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Paisa != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Paisa, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyFormat(t *testing.T) {
	cases := []struct {
		m    Money
		want string
	}{
		{Rupees(2600), "NPR 2,600.00"},
		{Money{Paisa: 5}, "NPR 0.05"},
		{Money{Paisa: 123456789}, "NPR 1,234,567.89"},
		{Money{Paisa: -1050}, "-NPR 10.50"},
	}
	for _, tc := range cases {
		if got := tc.m.Format(); got != tc.want {
			t.Errorf("Format(%d) = %q, want %q", tc.m.Paisa, got, tc.want)
		}
	}
}
