// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package lualex

import (
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestScanner(t *testing.T) {
	tests := []struct {
		s    string
		want []Token
		bad  bool
	}{
		{s: "", want: []Token{}},
		{
			s: "foo",
			want: []Token{
				{Kind: IdentifierToken, Position: Pos(1, 1), Value: "foo"},
			},
		},
		{
			s: "  foo  ",
			want: []Token{
				{Kind: IdentifierToken, Position: Pos(1, 3), Value: "foo"},
			},
		},
		{
			s: "345",
			want: []Token{
				{Kind: NumeralToken, Position: Pos(1, 1), Value: "345"},
			},
		},
		{
			s: "3.1416",
			want: []Token{
				{Kind: NumeralToken, Position: Pos(1, 1), Value: "3.1416"},
			},
		},
		{
			s: "314.16e-2",
			want: []Token{
				{Kind: NumeralToken, Position: Pos(1, 1), Value: "314.16e-2"},
			},
		},
		{
			s: ".5",
			want: []Token{
				{Kind: NumeralToken, Position: Pos(1, 1), Value: ".5"},
			},
		},
		{
			s:   "3x",
			bad: true,
		},
		{
			s: "while i <= 3 do end",
			want: []Token{
				{Kind: WhileToken, Position: Pos(1, 1)},
				{Kind: IdentifierToken, Position: Pos(1, 7), Value: "i"},
				{Kind: LessEqualToken, Position: Pos(1, 9)},
				{Kind: NumeralToken, Position: Pos(1, 12), Value: "3"},
				{Kind: DoToken, Position: Pos(1, 14)},
				{Kind: EndToken, Position: Pos(1, 17)},
			},
		},
		{
			s: "a = b ~= c",
			want: []Token{
				{Kind: IdentifierToken, Position: Pos(1, 1), Value: "a"},
				{Kind: AssignToken, Position: Pos(1, 3)},
				{Kind: IdentifierToken, Position: Pos(1, 5), Value: "b"},
				{Kind: NotEqualToken, Position: Pos(1, 7)},
				{Kind: IdentifierToken, Position: Pos(1, 10), Value: "c"},
			},
		},
		{
			s: "%up",
			want: []Token{
				{Kind: UpvalueToken, Position: Pos(1, 1)},
				{Kind: IdentifierToken, Position: Pos(1, 2), Value: "up"},
			},
		},
		{
			s: "a .. b ... c",
			want: []Token{
				{Kind: IdentifierToken, Position: Pos(1, 1), Value: "a"},
				{Kind: ConcatToken, Position: Pos(1, 3)},
				{Kind: IdentifierToken, Position: Pos(1, 6), Value: "b"},
				{Kind: DotsToken, Position: Pos(1, 8)},
				{Kind: IdentifierToken, Position: Pos(1, 12), Value: "c"},
			},
		},
		{
			s: "t.x:y",
			want: []Token{
				{Kind: IdentifierToken, Position: Pos(1, 1), Value: "t"},
				{Kind: DotToken, Position: Pos(1, 2)},
				{Kind: IdentifierToken, Position: Pos(1, 3), Value: "x"},
				{Kind: ColonToken, Position: Pos(1, 4)},
				{Kind: IdentifierToken, Position: Pos(1, 5), Value: "y"},
			},
		},
		{
			s: `'hello'`,
			want: []Token{
				{Kind: StringToken, Position: Pos(1, 1), Value: "hello"},
			},
		},
		{
			s: `"a\nb\ttab\65"`,
			want: []Token{
				{Kind: StringToken, Position: Pos(1, 1), Value: "a\nb\ttabA"},
			},
		},
		{
			s: `"\q"`,
			want: []Token{
				{Kind: StringToken, Position: Pos(1, 1), Value: "q"},
			},
		},
		{
			s:   `"\256"`,
			bad: true,
		},
		{
			s:   "\"unterminated\n\"",
			bad: true,
		},
		{
			s: "[[long string]]",
			want: []Token{
				{Kind: StringToken, Position: Pos(1, 1), Value: "long string"},
			},
		},
		{
			s: "[[outer [[inner]] outer]]",
			want: []Token{
				{Kind: StringToken, Position: Pos(1, 1), Value: "outer [[inner]] outer"},
			},
		},
		{
			s: "[[\nfirst line skipped]]",
			want: []Token{
				{Kind: StringToken, Position: Pos(1, 1), Value: "first line skipped"},
			},
		},
		{
			s:   "[[never closed",
			bad: true,
		},
		{
			s: "t[1]",
			want: []Token{
				{Kind: IdentifierToken, Position: Pos(1, 1), Value: "t"},
				{Kind: LBracketToken, Position: Pos(1, 2)},
				{Kind: NumeralToken, Position: Pos(1, 3), Value: "1"},
				{Kind: RBracketToken, Position: Pos(1, 4)},
			},
		},
		{
			s: "x = 1 -- comment\ny = 2",
			want: []Token{
				{Kind: IdentifierToken, Position: Pos(1, 1), Value: "x"},
				{Kind: AssignToken, Position: Pos(1, 3)},
				{Kind: NumeralToken, Position: Pos(1, 5), Value: "1"},
				{Kind: IdentifierToken, Position: Pos(2, 1), Value: "y"},
				{Kind: AssignToken, Position: Pos(2, 3)},
				{Kind: NumeralToken, Position: Pos(2, 5), Value: "2"},
			},
		},
		{
			s: "a - -b",
			want: []Token{
				{Kind: IdentifierToken, Position: Pos(1, 1), Value: "a"},
				{Kind: SubToken, Position: Pos(1, 3)},
				{Kind: SubToken, Position: Pos(1, 5)},
				{Kind: IdentifierToken, Position: Pos(1, 6), Value: "b"},
			},
		},
		{
			s:   "~",
			bad: true,
		},
		{
			s:   "#",
			bad: true,
		},
	}

	for _, test := range tests {
		s := NewScanner(strings.NewReader(test.s))
		got := []Token{}
		var err error
		for {
			var tok Token
			tok, err = s.Scan()
			if err != nil {
				break
			}
			got = append(got, tok)
		}
		if diff := cmp.Diff(test.want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("tokens for %q (-want +got):\n%s", test.s, diff)
		}
		if test.bad {
			if err == io.EOF {
				t.Errorf("scanning %q did not return an error", test.s)
			}
		} else if err != io.EOF {
			t.Errorf("scanning %q returned %v; want io.EOF", test.s, err)
		}
	}
}

func TestQuote(t *testing.T) {
	tests := []struct {
		s    string
		want string
	}{
		{"", `""`},
		{"abc", `"abc"`},
		{"a\nb", `"a\nb"`},
		{`back\slash`, `"back\\slash"`},
		{`say "hi"`, `"say \"hi\""`},
		{"\x00", `"\0"`},
	}
	for _, test := range tests {
		if got := Quote(test.s); got != test.want {
			t.Errorf("Quote(%q) = %s; want %s", test.s, got, test.want)
		}
	}
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		s    string
		want string
		err  bool
	}{
		{s: `"abc"`, want: "abc"},
		{s: `'abc'`, want: "abc"},
		{s: `"a\nb"`, want: "a\nb"},
		{s: "[[abc]]", want: "abc"},
		{s: "[[a [[b]] c]]", want: "a [[b]] c"},
		{s: `"abc`, err: true},
		{s: `abc`, err: true},
		{s: `""extra`, err: true},
		{s: ``, err: true},
	}
	for _, test := range tests {
		got, err := Unquote(test.s)
		if test.err {
			if err == nil {
				t.Errorf("Unquote(%q) = %q, <nil>; want error", test.s, got)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("Unquote(%q) = %q, %v; want %q, <nil>", test.s, got, err, test.want)
		}
	}
}
