// Copyright (C) 1994-2000 Lua.org, PUC-Rio.
// Copyright 2025 Roxy Light
// SPDX-License-Identifier: MIT

package luacode

import (
	"fmt"
	"math"

	"lua3.256lights.llc/pkg/internal/lualex"
)

// numberConstantWindow is how many trailing entries of the number pool
// are scanned for a match before a new entry is appended.
// Bounded cost; the occasional duplicate is tolerated.
//
// Equivalent to `LIM` in upstream Lua.
const numberConstantWindow = 20

// deltaStack applies an instruction's net effect
// on the symbolic operand stack,
// raising the prototype's high-water mark as needed.
//
// Equivalent to `deltastack` in upstream Lua.
func (p *parser) deltaStack(fs *funcState, delta int) error {
	fs.stackDepth += delta
	if delta > 0 && fs.stackDepth > fs.MaxStackSize {
		if err := p.checkLimit(fs, fs.stackDepth, maxStack, "temporaries or local variables"); err != nil {
			return err
		}
		fs.MaxStackSize = fs.stackDepth
	}
	return nil
}

// code appends an instruction to the function's code
// without touching the symbolic stack depth.
// It returns the index of the new instruction.
//
// Equivalent to `luaK_primitivecode` in upstream Lua.
func (p *parser) code(fs *funcState, i Instruction) int {
	pc := fs.pc()
	fs.Code = append(fs.Code, i)
	return pc
}

// code0 appends an operand-less instruction.
//
// Equivalent to `code_0` in upstream Lua.
func (p *parser) code0(fs *funcState, op OpCode, delta int) (int, error) {
	if err := p.deltaStack(fs, delta); err != nil {
		return 0, err
	}
	return p.code(fs, OpInstruction(op)), nil
}

// codeU appends an instruction with an unsigned operand.
//
// Equivalent to `code_U` in upstream Lua.
func (p *parser) codeU(fs *funcState, op OpCode, u int, delta int) (int, error) {
	if err := p.deltaStack(fs, delta); err != nil {
		return 0, err
	}
	return p.code(fs, UInstruction(op, uint32(u))), nil
}

// codeS appends an instruction with a signed operand.
//
// Equivalent to `code_S` in upstream Lua.
func (p *parser) codeS(fs *funcState, op OpCode, s int, delta int) (int, error) {
	if err := p.deltaStack(fs, delta); err != nil {
		return 0, err
	}
	return p.code(fs, SInstruction(op, int32(s))), nil
}

// codeAB appends an instruction with upper and lower operands.
//
// Equivalent to `code_AB` in upstream Lua.
func (p *parser) codeAB(fs *funcState, op OpCode, a, b int, delta int) (int, error) {
	if err := p.deltaStack(fs, delta); err != nil {
		return 0, err
	}
	return p.code(fs, ABInstruction(op, uint16(a), uint8(b))), nil
}

// checkDebugLine emits an [OpSetLine] instruction
// if debug information is enabled
// and the current token's line differs from the last marked line.
//
// Equivalent to `check_debugline` in upstream Lua.
func (p *parser) checkDebugLine(fs *funcState) error {
	if !p.debugInfo() || p.curr.Position.Line == fs.lastSetLine {
		return nil
	}
	line := p.curr.Position.Line
	if err := p.checkLimit(fs, line, MaxArgU, "lines in a chunk"); err != nil {
		return err
	}
	if _, err := p.codeU(fs, OpSetLine, line, 0); err != nil {
		return err
	}
	fs.lastSetLine = line
	return nil
}

// stringConstant returns the index of s
// in the function's string constant pool,
// appending it if not present.
//
// Equivalent to `string_constant` in upstream Lua.
func (p *parser) stringConstant(fs *funcState, s string) (int, error) {
	if c, ok := fs.stringConstantIndex[s]; ok {
		return c, nil
	}
	if err := p.checkLimit(fs, len(fs.StringConstants)+1, MaxArgU, "string constants"); err != nil {
		return 0, err
	}
	c := len(fs.StringConstants)
	fs.StringConstants = append(fs.StringConstants, s)
	fs.stringConstantIndex[s] = c
	return c, nil
}

// codeStringIndex pushes the string constant with the given pool index.
//
// Equivalent to `code_kstr` in upstream Lua.
func (p *parser) codeStringIndex(fs *funcState, c int) error {
	_, err := p.codeU(fs, OpPushString, c, 1)
	return err
}

// codeString pushes the given string.
//
// Equivalent to `code_string` in upstream Lua.
func (p *parser) codeString(fs *funcState, s string) error {
	c, err := p.stringConstant(fs, s)
	if err != nil {
		return err
	}
	return p.codeStringIndex(fs, c)
}

// numberConstant returns the index of f
// in the function's number constant pool.
// Only the last [numberConstantWindow] entries are scanned for a match;
// on a miss, a new entry is appended.
//
// Equivalent to `real_constant` in upstream Lua.
func (p *parser) numberConstant(fs *funcState, f float64) (int, error) {
	lim := max(len(fs.NumberConstants)-numberConstantWindow, 0)
	for c := len(fs.NumberConstants) - 1; c >= lim; c-- {
		if fs.NumberConstants[c] == f {
			return c, nil
		}
	}
	if err := p.checkLimit(fs, len(fs.NumberConstants)+1, MaxArgU, "number constants"); err != nil {
		return 0, err
	}
	fs.NumberConstants = append(fs.NumberConstants, f)
	return len(fs.NumberConstants) - 1, nil
}

// codeNumber pushes the given number,
// using [OpPushInt] when the value has a short integer representation.
//
// Equivalent to `code_number` in upstream Lua.
func (p *parser) codeNumber(fs *funcState, f float64) error {
	if -float64(MaxArgS) <= f && f <= float64(MaxArgS) && math.Trunc(f) == f {
		_, err := p.codeS(fs, OpPushInt, int(f), 1)
		return err
	}
	c, err := p.numberConstant(fs, f)
	if err != nil {
		return err
	}
	_, err = p.codeU(fs, OpPushNum, c, 1)
	return err
}

// registerLocalVariable records a local variable declaration
// in the debug information.
//
// Equivalent to `luaI_registerlocalvar` in upstream Lua.
func (p *parser) registerLocalVariable(fs *funcState, name string, line int) {
	if p.debugInfo() {
		fs.LocalVariables = append(fs.LocalVariables, LocalVariable{Name: name, Line: line})
	}
}

// unregisterLocalVariable records a scope exit in the debug information.
//
// Equivalent to `luaI_unregisterlocalvar` in upstream Lua.
func (p *parser) unregisterLocalVariable(fs *funcState, line int) {
	p.registerLocalVariable(fs, "", line)
}

// storeLocalVariable reserves (but does not activate)
// the n'th slot after the current local variable count.
// The name stays invisible to expressions
// until [parser.adjustLocalVariables] activates it.
//
// Equivalent to `store_localvar` in upstream Lua.
func (p *parser) storeLocalVariable(fs *funcState, name string, n int) error {
	if err := p.checkLimit(fs, fs.numLocalVariables+n+1, maxLocals, "local variables"); err != nil {
		return err
	}
	fs.localVariables[fs.numLocalVariables+n] = name
	return nil
}

// adjustLocalVariables activates the next n reserved local variables,
// registering each in the debug information with its declaration line.
//
// Equivalent to `adjustlocalvars` in upstream Lua.
func (p *parser) adjustLocalVariables(fs *funcState, n int, line int) {
	fs.numLocalVariables += n
	for i := fs.numLocalVariables - n; i < fs.numLocalVariables; i++ {
		p.registerLocalVariable(fs, fs.localVariables[i], line)
	}
}

// addLocalVariable declares and immediately activates a local variable.
//
// Equivalent to `add_localvar` in upstream Lua.
func (p *parser) addLocalVariable(fs *funcState, name string) error {
	if err := p.storeLocalVariable(fs, name, 0); err != nil {
		return err
	}
	p.adjustLocalVariables(fs, 1, 0)
	return nil
}

// singleVariable resolves an identifier in the scope of fs:
// a local of fs, or otherwise a global.
// A name that is a local of some function enclosing fs is an error;
// capturing it requires the explicit upvalue syntax.
//
// Equivalent to `singlevar` in upstream Lua.
func (p *parser) singleVariable(fs *funcState, name string) (expDesc, error) {
	if i := fs.searchLocalVariable(name); i >= 0 {
		return localExpDesc(i), nil
	}
	for level := fs.prev; level != nil; level = level.prev {
		if level.searchLocalVariable(name) >= 0 {
			return expDesc{}, p.syntaxError(fs, fmt.Sprintf("cannot access a variable in outer scope (%q)", name))
		}
	}
	c, err := p.stringConstant(fs, name)
	if err != nil {
		return expDesc{}, err
	}
	return globalExpDesc(c), nil
}

// indexUpvalue resolves name in the enclosing function's scope
// and returns the index of a matching upvalue descriptor,
// appending a new one on first reference.
//
// Equivalent to `indexupvalue` in upstream Lua.
func (p *parser) indexUpvalue(fs *funcState, name string) (int, error) {
	v, err := p.singleVariable(fs.prev, name)
	if err != nil {
		return 0, err
	}
	if i, found := fs.searchUpvalue(v); found {
		return i, nil
	}
	if err := p.checkLimit(fs, len(fs.upvalues)+1, maxUpvalues, "upvalues"); err != nil {
		return 0, err
	}
	fs.upvalues = append(fs.upvalues, v)
	return len(fs.upvalues) - 1, nil
}

// pushUpvalue emits a push of the upvalue with the given name,
// binding it on first reference.
//
// Equivalent to `pushupvalue` in upstream Lua.
func (p *parser) pushUpvalue(fs *funcState, name string) error {
	if fs.prev == nil {
		return p.syntaxError(fs, fmt.Sprintf("cannot access upvalue in main (%q)", name))
	}
	if fs.searchLocalVariable(name) >= 0 {
		return p.syntaxError(fs, fmt.Sprintf("cannot access an upvalue in current scope (%q)", name))
	}
	i, err := p.indexUpvalue(fs, name)
	if err != nil {
		return err
	}
	_, err = p.codeU(fs, OpPushUpvalue, i, 1)
	return err
}

// adjustStack pops n values (n > 0) or pushes -n nils (n < 0).
//
// Equivalent to `adjuststack` in upstream Lua.
func (p *parser) adjustStack(fs *funcState, n int) error {
	switch {
	case n > 0:
		_, err := p.codeU(fs, OpPop, n, -n)
		return err
	case n < 0:
		_, err := p.codeU(fs, OpPushNil, -n-1, -n)
		return err
	default:
		return nil
	}
}

// closeCall fixes the result count of an open call instruction.
// pc is zero when the expression list is already closed, in which case
// closeCall is a no-op.
//
// Equivalent to `close_call` in upstream Lua.
func (p *parser) closeCall(fs *funcState, pc int, numResults int) error {
	if pc == 0 {
		return nil
	}
	i, ok := fs.Code[pc].WithArgB(uint8(numResults))
	if !ok {
		return fmt.Errorf("internal error: call expression references %v instruction", fs.Code[pc].OpCode())
	}
	fs.Code[pc] = i
	if numResults != MultipleReturns {
		return p.deltaStack(fs, numResults)
	}
	return nil
}

// adjustMultipleAssignment reconciles the number of values
// produced by an expression list
// with the number of variables that consume them,
// negotiating an open trailing call's result count when there is one.
//
// Equivalent to `adjust_mult_assign` in upstream Lua.
func (p *parser) adjustMultipleAssignment(fs *funcState, numVariables int, d listDesc) error {
	diff := d.n - numVariables
	if d.pc == 0 {
		// Closed list: push or pop the difference.
		return p.adjustStack(fs, diff)
	}
	// Do not count the open call itself.
	diff--
	if diff <= 0 {
		// More variables than values; the call provides the rest.
		return p.closeCall(fs, d.pc, -diff)
	}
	// More values than variables; the call provides none
	// and the surplus is popped.
	if err := p.closeCall(fs, d.pc, 0); err != nil {
		return err
	}
	return p.adjustStack(fs, diff)
}

// variableName returns the string constant index of the name
// of a local or global variable descriptor.
//
// Equivalent to `getvarname` in upstream Lua.
func (p *parser) variableName(fs *funcState, v expDesc) (int, error) {
	switch v.kind {
	case expKindGlobal:
		return v.constIndex(), nil
	case expKindLocal:
		return p.stringConstant(fs, fs.localVariables[v.slot()])
	default:
		return 0, p.syntaxError(fs, "unexpected token")
	}
}

// closeExpression materialises the described value
// onto the top of the operand stack
// and returns the closed descriptor.
//
// Equivalent to `close_exp` in upstream Lua.
func (p *parser) closeExpression(fs *funcState, v expDesc) (expDesc, error) {
	var err error
	switch v.kind {
	case expKindLocal:
		_, err = p.codeU(fs, OpPushLocal, v.slot(), 1)
	case expKindGlobal:
		_, err = p.codeU(fs, OpGetGlobal, v.constIndex(), 1)
	case expKindIndexed:
		// Table and key are already on the stack.
		_, err = p.code0(fs, OpGetTable, -1)
	case expKindExpression:
		// An open call must produce exactly one value.
		err = p.closeCall(fs, v.callPC(), 1)
	}
	if err != nil {
		return expDesc{}, err
	}
	return closedExpDesc(), nil
}

// storeVariable emits a store of the value on top of the stack
// into the described variable.
//
// Equivalent to `storevar` in upstream Lua.
func (p *parser) storeVariable(fs *funcState, v expDesc) error {
	var err error
	switch v.kind {
	case expKindLocal:
		_, err = p.codeU(fs, OpSetLocal, v.slot(), -1)
	case expKindGlobal:
		_, err = p.codeU(fs, OpSetGlobal, v.constIndex(), -1)
	case expKindIndexed:
		_, err = p.code0(fs, OpSetTablePop, -3)
	default:
		err = fmt.Errorf("internal error: invalid variable kind to store")
	}
	return err
}

// closureOnStack materialises a closed inner function in its parent:
// it pushes the inner function's captured upvalues
// (each a local or global of the parent),
// appends the inner prototype to the parent's function list,
// and emits the [OpClosure] instruction.
// The upvalues must be pushed first
// so that the closure captures their current values.
//
// Equivalent to `func_onstack` in upstream Lua.
func (p *parser) closureOnStack(fs *funcState, inner *funcState) error {
	for _, up := range inner.upvalues {
		if _, err := p.closeExpression(fs, up); err != nil {
			return err
		}
	}
	if err := p.checkLimit(fs, len(fs.Functions)+1, MaxArgA, "nested functions"); err != nil {
		return err
	}
	fs.Functions = append(fs.Functions, inner.Prototype)
	// CLOSURE puts one extra element on the stack before popping the upvalues.
	if err := p.deltaStack(fs, 1); err != nil {
		return err
	}
	_, err := p.codeAB(fs, OpClosure, len(fs.Functions)-1, len(inner.upvalues), -len(inner.upvalues))
	return err
}

// Operator indices for the expression engine.
// The unary operators come first;
// binary operators follow in order of non-decreasing priority.
const (
	operatorIndexNot   = 0
	operatorIndexMinus = 1

	// firstBinaryOperator is the index of the first binary operator.
	firstBinaryOperator = 2

	// operatorIndexPow is the index of the power operator (the last operator).
	// It needs special treatment because it is right-associative.
	operatorIndexPow = 13
)

var operatorPriority = [operatorIndexPow + 1]int{
	5, 5, // not, unary minus
	1, 1, 1, 1, 1, 1, // == ~= > < <= >=
	2,    // ..
	3, 3, // + -
	4, 4, // * /
	6, // ^
}

var operatorOpCodes = [operatorIndexPow + 1]OpCode{
	OpNot, OpMinus,
	OpEqual, OpNotEqual, OpGreater, OpLess, OpLessEqual, OpGreaterEqual,
	OpConcat,
	OpAdd, OpSub,
	OpMul, OpDiv,
	OpPow,
}

// binaryOperatorIndex returns the operator index of a binary operator token,
// or -1 if the token is not a binary operator.
//
// Equivalent to `binop` in upstream Lua.
func binaryOperatorIndex(kind lualex.TokenKind) int {
	switch kind {
	case lualex.EqualToken:
		return firstBinaryOperator
	case lualex.NotEqualToken:
		return firstBinaryOperator + 1
	case lualex.GreaterToken:
		return firstBinaryOperator + 2
	case lualex.LessToken:
		return firstBinaryOperator + 3
	case lualex.LessEqualToken:
		return firstBinaryOperator + 4
	case lualex.GreaterEqualToken:
		return firstBinaryOperator + 5
	case lualex.ConcatToken:
		return firstBinaryOperator + 6
	case lualex.AddToken:
		return firstBinaryOperator + 7
	case lualex.SubToken:
		return firstBinaryOperator + 8
	case lualex.MulToken:
		return firstBinaryOperator + 9
	case lualex.DivToken:
		return firstBinaryOperator + 10
	case lualex.PowToken:
		return firstBinaryOperator + 11
	default:
		return -1
	}
}

// maxOperators is the size of the pending-operator stack.
const maxOperators = 20

// operatorStack is the pending-operator stack of the expression engine.
//
// Equivalent to `stack_op` in upstream Lua.
type operatorStack struct {
	ops [maxOperators]int
	top int
}

// pushOperator pushes a pending operator.
//
// Equivalent to `push` in upstream Lua.
func (p *parser) pushOperator(fs *funcState, s *operatorStack, op int) error {
	if s.top >= maxOperators {
		return p.syntaxError(fs, "expression too complex")
	}
	s.ops[s.top] = op
	s.top++
	return nil
}

// popOperators emits all pending operators
// whose priority is at least the given one.
//
// Equivalent to `pop_to` in upstream Lua.
func (p *parser) popOperators(fs *funcState, s *operatorStack, priority int) error {
	for s.top > 0 {
		op := s.ops[s.top-1]
		if operatorPriority[op] < priority {
			break
		}
		delta := -1
		if op < firstBinaryOperator {
			delta = 0
		}
		if _, err := p.code0(fs, operatorOpCodes[op], delta); err != nil {
			return err
		}
		s.top--
	}
	return nil
}
