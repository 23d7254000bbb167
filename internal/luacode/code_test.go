// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package luacode

import (
	"testing"
)

func newTestFunction(p *parser) *funcState {
	return p.openFunction(nil, "")
}

func TestStringConstantReuse(t *testing.T) {
	p := new(parser)
	fs := newTestFunction(p)

	c1, err := p.stringConstant(fs, "foo")
	if err != nil {
		t.Fatal(err)
	}
	c2, err := p.stringConstant(fs, "bar")
	if err != nil {
		t.Fatal(err)
	}
	c3, err := p.stringConstant(fs, "foo")
	if err != nil {
		t.Fatal(err)
	}
	if c1 == c2 {
		t.Errorf("stringConstant(\"foo\") == stringConstant(\"bar\") (%d)", c1)
	}
	if c1 != c3 {
		t.Errorf("stringConstant(\"foo\") = %d, then %d; want same index", c1, c3)
	}
	if len(fs.StringConstants) != 2 {
		t.Errorf("len(StringConstants) = %d; want 2", len(fs.StringConstants))
	}
}

func TestNumberConstantWindow(t *testing.T) {
	p := new(parser)
	fs := newTestFunction(p)

	// Fill the pool past the search window.
	for i := range numberConstantWindow + 5 {
		if _, err := p.numberConstant(fs, float64(i)); err != nil {
			t.Fatal(err)
		}
	}
	size := len(fs.NumberConstants)

	// A recent value is reused.
	c, err := p.numberConstant(fs, float64(numberConstantWindow+4))
	if err != nil {
		t.Fatal(err)
	}
	if c != size-1 {
		t.Errorf("numberConstant(recent) = %d; want %d", c, size-1)
	}
	if len(fs.NumberConstants) != size {
		t.Errorf("len(NumberConstants) = %d; want %d", len(fs.NumberConstants), size)
	}

	// A value outside the window is appended again.
	c, err = p.numberConstant(fs, 0)
	if err != nil {
		t.Fatal(err)
	}
	if c != size {
		t.Errorf("numberConstant(old) = %d; want a new entry at %d", c, size)
	}
}

func TestFixJump(t *testing.T) {
	p := new(parser)
	fs := newTestFunction(p)

	pc, err := p.codeS(fs, OpJump, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	p.code(fs, OpInstruction(OpAdd))
	p.code(fs, OpInstruction(OpAdd))
	if err := fs.fixJump(pc, 3); err != nil {
		t.Fatal(err)
	}
	if got, want := fs.Code[pc].ArgS(), int32(2); got != want {
		t.Errorf("jump offset = %d; want %d", got, want)
	}

	// Backward jump.
	pc2, err := p.codeS(fs, OpJump, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := fs.fixJump(pc2, 0); err != nil {
		t.Fatal(err)
	}
	if got, want := fs.Code[pc2].ArgS(), int32(-4); got != want {
		t.Errorf("backward jump offset = %d; want %d", got, want)
	}

	if err := fs.fixJump(1, 0); err == nil {
		t.Error("fixJump on a non-jump instruction did not fail")
	}
}

func TestDeltaStackLimit(t *testing.T) {
	p := new(parser)
	fs := newTestFunction(p)

	if err := p.deltaStack(fs, maxStack); err != nil {
		t.Fatal(err)
	}
	if fs.MaxStackSize != maxStack {
		t.Errorf("MaxStackSize = %d; want %d", fs.MaxStackSize, maxStack)
	}
	if err := p.deltaStack(fs, 1); err == nil {
		t.Error("deltaStack past the limit did not fail")
	}
}
