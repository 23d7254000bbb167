// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package lualex

import (
	"math"
	"testing"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		s    string
		want float64
		err  bool
	}{
		{s: "0", want: 0},
		{s: "345", want: 345},
		{s: "3.1416", want: 3.1416},
		{s: "314.16e-2", want: 3.1416},
		{s: "0.31416E1", want: 3.1416},
		{s: ".5", want: 0.5},
		{s: "  42  ", want: 42},
		{s: "-7", want: -7},
		{s: "1e400", want: math.Inf(1)},
		{s: "", err: true},
		{s: "abc", err: true},
		{s: "0x10", err: true},
		{s: "inf", err: true},
		{s: "nan", err: true},
		{s: "1_000", err: true},
	}
	for _, test := range tests {
		got, err := ParseNumber(test.s)
		if test.err {
			if err == nil {
				t.Errorf("ParseNumber(%q) = %g, <nil>; want error", test.s, got)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("ParseNumber(%q) = %g, %v; want %g, <nil>", test.s, got, err, test.want)
		}
	}
}
