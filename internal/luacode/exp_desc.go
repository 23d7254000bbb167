// Copyright (C) 1994-2000 Lua.org, PUC-Rio.
// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package luacode

// expDesc describes the location of the result of an expression
// and how to materialise it onto the operand stack.
// Materialisation is deferred so that a bare name
// can still become a store target
// and a call's result count can still be negotiated.
type expDesc struct {
	kind expKind
	// info is interpreted based on kind:
	// the slot of a local variable,
	// the string constant index of a global name,
	// or the code index of an open call (zero once materialised).
	info int
}

// localExpDesc returns an [expDesc] for the local variable in the given slot.
func localExpDesc(slot int) expDesc {
	return expDesc{kind: expKindLocal, info: slot}
}

// globalExpDesc returns an [expDesc] for a global
// named by the given string constant.
func globalExpDesc(constIndex int) expDesc {
	return expDesc{kind: expKindGlobal, info: constIndex}
}

// indexedExpDesc returns an [expDesc] for a table access
// whose table and key have already been pushed.
func indexedExpDesc() expDesc {
	return expDesc{kind: expKindIndexed}
}

// openCallExpDesc returns an [expDesc] for a function call
// whose result count has not been fixed yet.
// pc is the code index of the call instruction.
func openCallExpDesc(pc int) expDesc {
	return expDesc{kind: expKindExpression, info: pc}
}

// closedExpDesc returns an [expDesc] for a value
// that is already on top of the operand stack.
func closedExpDesc() expDesc {
	return expDesc{kind: expKindExpression}
}

// slot returns the local variable slot of an [expKindLocal] descriptor.
func (e expDesc) slot() int {
	if e.kind != expKindLocal {
		panic("slot on non-local expression")
	}
	return e.info
}

// constIndex returns the string constant index of an [expKindGlobal] descriptor.
func (e expDesc) constIndex() int {
	if e.kind != expKindGlobal {
		panic("constIndex on non-global expression")
	}
	return e.info
}

// callPC returns the code index of the open call instruction,
// or zero if the expression is already materialised.
func (e expDesc) callPC() int {
	if e.kind != expKindExpression {
		panic("callPC on non-expression")
	}
	return e.info
}

// isOpenCall reports whether the descriptor
// references a call whose result count is still negotiable.
func (e expDesc) isOpenCall() bool {
	return e.kind == expKindExpression && e.info != 0
}

type expKind int

const (
	// local variable; info = slot index
	expKindLocal expKind = iota
	// global variable; info = index of name in string constants
	expKindGlobal
	// table access; table and key are already on the operand stack
	expKindIndexed
	// expression; info = code index of an open call, or 0 if materialised
	expKindExpression
)

// listDesc describes an expression list:
// the number of expressions parsed,
// and the code index of the last expression's call instruction
// if its result count is still negotiable
// (zero if the list is closed).
type listDesc struct {
	n  int
	pc int
}

// constructorKind classifies one half of a table constructor.
type constructorKind int

const (
	constructorKindEmpty constructorKind = iota
	constructorKindList
	constructorKindRecord
)

// constructorDesc describes one half of a table constructor.
type constructorDesc struct {
	n    int
	kind constructorKind
}
